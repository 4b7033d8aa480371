package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/speicherwald/speicherwald/internal/db"
)

// ErrScanNotFound is returned when Cancel targets an id with no active job.
var ErrScanNotFound = errors.New("scan not found")

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the Job Manager (spec §4.H): for each new scan it generates a
// UUID, persists the Scan row with status running, creates a cancellation
// token, starts the walker+aggregator pair, and tracks completion. It keeps
// a map from scan id to {cancellation token, completion handle}.
type Manager struct {
	store  *db.Store
	bus    *EventBus
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// NewManager constructs a Manager. A nil logger falls back to slog.Default().
func NewManager(store *db.Store, bus *EventBus, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, bus: bus, cfg: cfg, logger: logger, jobs: make(map[string]*job)}
}

// Start validates opts as an input error (spec §7) before creating anything,
// persists a running Scan row, and launches the walker+aggregator pipeline
// in the background. Returns the new scan id.
func (m *Manager) Start(parentCtx context.Context, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	matcher, err := NewMatcher(opts.Excludes)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	startedAt := time.Now().UTC()
	if err := m.store.CreateScan(parentCtx, id, opts.RootPaths, opts, startedAt); err != nil {
		return "", fmt.Errorf("create scan: %w", err)
	}

	probe, err := NewProbe(m.cfg.SizeCacheEntries)
	if err != nil {
		return "", fmt.Errorf("create size probe: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(Event{Kind: EventStarted, ScanID: id, Roots: opts.RootPaths, StartedAt: startedAt})
	}

	go func() {
		defer close(j.done)
		defer probe.Close()
		m.run(ctx, id, opts, matcher, probe)
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
	}()

	return id, nil
}

// run wires the Directory Walker and Aggregator together for one scan and
// finalizes the Scan row on completion (spec §2 "Dataflow").
func (m *Manager) run(ctx context.Context, id string, opts Options, matcher *Matcher, probe *Probe) {
	agg := NewAggregator(m.store, m.cfg, m.bus, id)
	records := make(chan Record, m.cfg.BatchSize*2)

	var aggErr error
	aggDone := make(chan struct{})
	go func() {
		aggErr = agg.Run(ctx, records)
		close(aggDone)
	}()

	Walk(ctx, opts, m.cfg, matcher, probe, records, agg.Warn)
	<-aggDone

	status := StatusFinished
	switch {
	case ctx.Err() != nil:
		status = StatusCanceled
	case aggErr != nil:
		status = StatusFailed
		m.logger.Error("scan failed", "scan_id", id, "error", aggErr)
	}

	totals := agg.FinalTotals()
	finishedAt := time.Now().UTC()
	if err := m.store.FinalizeScan(context.Background(), id, status,
		totals.LogicalSize, totals.AllocatedSize, totals.DirCount, totals.FileCount, totals.WarningCount,
		finishedAt); err != nil {
		m.logger.Error("finalize scan", "scan_id", id, "error", err)
	}

	if m.bus == nil {
		return
	}
	if status == StatusCanceled {
		m.bus.Publish(Event{Kind: EventCanceled, ScanID: id, FinishedAt: finishedAt})
		return
	}
	m.bus.Publish(Event{
		Kind: EventFinished, ScanID: id, Status: status, FinishedAt: finishedAt,
		Totals: &Totals{
			LogicalSize: totals.LogicalSize, AllocatedSize: totals.AllocatedSize,
			DirCount: totals.DirCount, FileCount: totals.FileCount, WarningCount: totals.WarningCount,
		},
	})
}

// Cancel trips the cancellation token for a running scan. The pipeline shuts
// down cooperatively; Cancel does not block for completion.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrScanNotFound
	}
	j.cancel()
	return nil
}

// Purge cancels the scan if running, waits for it to finish, then deletes
// the scan row. Cascading foreign keys remove its nodes/files/warnings.
func (m *Manager) Purge(ctx context.Context, id string) error {
	m.mu.Lock()
	j, running := m.jobs[id]
	m.mu.Unlock()
	if running {
		j.cancel()
		<-j.done
	}
	return m.store.DeleteScan(ctx, id)
}

// Wait blocks until id's job completes, or ctx is cancelled. It returns
// immediately, with no error, if id has no active job (already finished, or
// never started by this Manager instance).
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether id currently has an active job.
func (m *Manager) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}
