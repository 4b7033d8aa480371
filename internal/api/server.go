package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/speicherwald/speicherwald/internal/api/handlers"
	"github.com/speicherwald/speicherwald/internal/db"
	"github.com/speicherwald/speicherwald/internal/scan"
	"github.com/speicherwald/speicherwald/internal/scheduler"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires every route named in SPEC_FULL.md §4 and returns a Server ready
// to Run.
func New(addr string, store *db.Store, mgr *scan.Manager, bus *scan.EventBus, sched *scheduler.Scheduler, version string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Sched: sched, Version: version}
	scansH := &handlers.ScansHandler{Store: store, Manager: mgr, Bus: bus}

	r.Get("/status", statusH.ServeHTTP)

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", scansH.Create)
		r.Get("/", scansH.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", scansH.Get)
			r.Delete("/", scansH.Delete)
			r.Get("/events", scansH.Events)
			r.Get("/nodes", scansH.Nodes)
			r.Get("/top", scansH.Top)
		})
	})

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
