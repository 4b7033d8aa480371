package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/speicherwald/speicherwald/internal/db"
	"github.com/speicherwald/speicherwald/internal/scan"
)

// ScansHandler handles every /scans endpoint: start, list, get, cancel/purge,
// the SSE event stream, and the node/top-N drill-down queries.
type ScansHandler struct {
	Store   *db.Store
	Manager *scan.Manager
	Bus     *scan.EventBus
}

// Create handles POST /scans — body is a scan.Options object (spec.md §6).
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	opts := scan.DefaultOptions()
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	id, err := h.Manager.Start(r.Context(), opts)
	if err != nil {
		slog.Error("scans: start", "error", err)
		writeError(w, http.StatusBadRequest, "INVALID_OPTIONS", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// List handles GET /scans — scan summaries, newest first.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	scans, err := h.Store.ListScans(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[db.ScanSummary]{
		Items: scans, Total: len(scans), Limit: limit, Offset: offset,
	})
}

// Get handles GET /scans/{id}.
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.Store.GetScan(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Delete handles DELETE /scans/{id} — cancels if running, then purges the row
// and its descendants (spec.md §4.H "purge").
func (h *ScansHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Manager.Purge(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /scans/{id}/events — a Server-Sent Events stream of the
// scan's Event Bus messages (spec.md §4.G), scoped to this scan id.
func (h *ScansHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub, unsubscribe := h.Bus.Subscribe()
	defer unsubscribe()

	bw := bufio.NewWriter(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.ScanID != id {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("events: marshal", "error", err)
				continue
			}
			fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Nodes handles GET /scans/{id}/nodes?parent_path= — one level of the
// aggregated tree (spec.md §6, the `(scan_id, parent_path)` index).
func (h *ScansHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	parent := r.URL.Query().Get("parent_path")

	nodes, err := h.Store.ChildNodes(r.Context(), id, parent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[db.NodeRow]{Items: nodes, Total: len(nodes)})
}

// Top handles GET /scans/{id}/top?kind=files|dirs&limit= — top-N by
// allocated_size (spec.md §6, the `allocated_size desc` indices).
func (h *ScansHandler) Top(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := r.URL.Query().Get("kind")
	limit, offset := parsePagination(r)

	switch kind {
	case "", "dirs":
		nodes, err := h.Store.TopNodes(r.Context(), id, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[db.NodeRow]{Items: nodes, Total: len(nodes), Limit: limit, Offset: offset})
	case "files":
		files, err := h.Store.TopFiles(r.Context(), id, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[db.FileRow]{Items: files, Total: len(files), Limit: limit, Offset: offset})
	default:
		writeError(w, http.StatusBadRequest, "INVALID_KIND", "kind must be \"files\" or \"dirs\"")
	}
}

// parsePagination extracts limit and offset from query parameters.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return
}
