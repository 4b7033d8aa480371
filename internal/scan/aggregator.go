package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speicherwald/speicherwald/internal/db"
)

// nodeFrame is the Aggregator's per-directory rollup (spec §4.E): sizes and
// counts accumulate here until the directory closes, at which point the
// frame is flushed to a node row and freed.
type nodeFrame struct {
	path, parentPath    string
	depth               int
	logical, allocated  int64
	fileCount, dirCount int64
	mtime, atime        time.Time
	parent              *nodeFrame
}

// AggregatorStats is a snapshot of the running counters the Event Bus
// publishes as progress events.
type AggregatorStats struct {
	DirsEnumerated, FilesFound, BytesLogical, BytesAllocated, Warnings int64
}

// FinalTotals is the scan-level rollup persisted on completion and broadcast
// in the finished event (spec §8 invariant 1, Conservation): each size and
// count field is the sum of that same field over every root-depth node, not
// an independent running counter, so it agrees with the root nodes by
// construction. WarningCount is the running count of Warn calls.
type FinalTotals struct {
	LogicalSize, AllocatedSize, FileCount, DirCount, WarningCount int64
}

// Aggregator is the single consumer of the walker's record channel (spec
// §4.E): it folds records into per-directory rollups, batches rows for the
// Store under the placeholder-count clamp, and publishes throttled progress.
type Aggregator struct {
	store  *db.Store
	cfg    Config
	bus    *EventBus
	scanID string

	frames map[string]*nodeFrame // touched only by Run's goroutine

	nodeBuf   []db.NodeRow
	fileBuf   []db.FileRow
	lastFlush time.Time

	dirs, files                  atomic.Int64
	bytesLogical, bytesAllocated atomic.Int64
	warnCount                    atomic.Int64

	// rootLogical..rootDirs accumulate only from nodes at depth 0 (roots),
	// so they equal the sum-over-roots the Conservation property requires
	// instead of drifting from the live dirs/files counters above, which
	// also count the roots themselves as entries within their own subtree.
	rootLogical, rootAllocated, rootFiles, rootDirs atomic.Int64

	warnMu  sync.Mutex
	warnBuf []db.WarningRow
}

// NewAggregator constructs an Aggregator for one scan.
func NewAggregator(store *db.Store, cfg Config, bus *EventBus, scanID string) *Aggregator {
	return &Aggregator{
		store:  store,
		cfg:    cfg,
		bus:    bus,
		scanID: scanID,
		frames: make(map[string]*nodeFrame),
	}
}

// Warn records a non-fatal per-entry error (spec §3 Warning, §7). Safe for
// concurrent use by any walker goroutine.
func (a *Aggregator) Warn(w Warning) {
	a.warnMu.Lock()
	a.warnBuf = append(a.warnBuf, db.WarningRow{Path: w.Path, Code: w.Code, Message: w.Message, CreatedAt: w.CreatedAt})
	full := len(a.warnBuf) >= a.cfg.FlushThreshold
	a.warnMu.Unlock()
	a.warnCount.Add(1)
	if a.bus != nil {
		a.bus.Publish(Event{Kind: EventWarning, ScanID: a.scanID, Warning: &w})
	}
	if full {
		a.flushWarnings(context.Background())
	}
}

// Stats returns a snapshot of the running counters.
func (a *Aggregator) Stats() AggregatorStats {
	return AggregatorStats{
		DirsEnumerated: a.dirs.Load(),
		FilesFound:     a.files.Load(),
		BytesLogical:   a.bytesLogical.Load(),
		BytesAllocated: a.bytesAllocated.Load(),
		Warnings:       a.warnCount.Load(),
	}
}

// FinalTotals returns the scan-level totals to persist and broadcast on
// completion, derived from the root nodes rather than the live dirs/files
// counters (spec §8 invariant 1).
func (a *Aggregator) FinalTotals() FinalTotals {
	return FinalTotals{
		LogicalSize:   a.rootLogical.Load(),
		AllocatedSize: a.rootAllocated.Load(),
		FileCount:     a.rootFiles.Load(),
		DirCount:      a.rootDirs.Load(),
		WarningCount:  a.warnCount.Load(),
	}
}

// Run consumes records until the channel closes or ctx is cancelled,
// performing a final flush either way, and returns any store error
// encountered.
func (a *Aggregator) Run(ctx context.Context, records <-chan Record) error {
	a.lastFlush = time.Now()

	progressTicker := time.NewTicker(time.Duration(a.cfg.ProgressIntervalMs) * time.Millisecond)
	defer progressTicker.Stop()
	flushTicker := time.NewTicker(time.Duration(a.cfg.FlushIntervalMs) * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				err := a.flush(context.Background())
				a.flushWarnings(context.Background())
				a.publishProgress()
				return err
			}
			a.apply(rec)
			if a.bufferedRows() >= a.cfg.FlushThreshold {
				if err := a.flush(ctx); err != nil {
					return err
				}
			}

		case <-flushTicker.C:
			if a.bufferedRows() > 0 && a.bufferedRows() >= a.cfg.BatchSize && time.Since(a.lastFlush) >= time.Duration(a.cfg.FlushIntervalMs)*time.Millisecond {
				if err := a.flush(ctx); err != nil {
					return err
				}
			}

		case <-progressTicker.C:
			a.publishProgress()

		case <-ctx.Done():
			err := a.flush(context.Background())
			a.flushWarnings(context.Background())
			return err
		}
	}
}

func (a *Aggregator) bufferedRows() int {
	return len(a.nodeBuf) + len(a.fileBuf)
}

func (a *Aggregator) apply(rec Record) {
	switch {
	case rec.DirOpen != nil:
		a.ensureFrame(rec.DirOpen.Path, rec.DirOpen.ParentPath, rec.DirOpen.Depth)
	case rec.File != nil:
		a.applyFile(rec.File)
	case rec.DirClose != nil:
		a.applyDirClose(rec.DirClose)
	}
}

func (a *Aggregator) ensureFrame(path, parentPath string, depth int) *nodeFrame {
	if f, ok := a.frames[path]; ok {
		return f
	}
	var parent *nodeFrame
	if parentPath != "" {
		parent = a.frames[parentPath]
	}
	f := &nodeFrame{path: path, parentPath: parentPath, depth: depth, parent: parent}
	a.frames[path] = f
	return f
}

// applyFile folds a FileRecord into the files batch and eagerly propagates
// its size up the full parent chain (spec §9: eager propagation), so a
// directory's frame always holds its complete subtree totals the moment it
// closes, regardless of depth.
func (a *Aggregator) applyFile(fr *FileRecord) {
	a.fileBuf = append(a.fileBuf, db.FileRow{
		Path: fr.Path, ParentPath: fr.ParentPath,
		Logical: fr.LogicalSize, Allocated: fr.AllocatedSize,
		MTime: unixPtr(fr.MTime), ATime: unixPtr(fr.ATime),
	})
	a.files.Add(1)
	a.bytesLogical.Add(fr.LogicalSize)
	a.bytesAllocated.Add(fr.AllocatedSize)

	f := a.frames[fr.ParentPath]
	for f != nil {
		f.logical += fr.LogicalSize
		f.allocated += fr.AllocatedSize
		f.fileCount++
		f = f.parent
	}
}

// applyDirClose finalizes a directory's rollup into a node row (spec §4.E).
// The frame's totals already reflect every descendant via eager propagation
// at file-arrival time, so only the parent's dir_count needs an update here.
func (a *Aggregator) applyDirClose(dc *DirCloseRecord) {
	f, ok := a.frames[dc.Path]
	if !ok {
		f = a.ensureFrame(dc.Path, dc.ParentPath, dc.Depth)
	}

	a.nodeBuf = append(a.nodeBuf, db.NodeRow{
		Path: f.path, ParentPath: f.parentPath, Depth: f.depth,
		Logical: f.logical, Allocated: f.allocated,
		FileCount: f.fileCount, DirCount: f.dirCount,
		MTime: unixPtr(f.mtime), ATime: unixPtr(f.atime),
	})
	a.dirs.Add(1)

	if f.parent != nil {
		f.parent.dirCount++
	} else {
		a.rootLogical.Add(f.logical)
		a.rootAllocated.Add(f.allocated)
		a.rootFiles.Add(f.fileCount)
		a.rootDirs.Add(f.dirCount)
	}
	delete(a.frames, dc.Path)
}

func (a *Aggregator) flush(ctx context.Context) error {
	if len(a.nodeBuf) > 0 {
		if err := a.store.InsertNodes(ctx, a.scanID, a.nodeBuf); err != nil {
			return err
		}
		a.nodeBuf = a.nodeBuf[:0]
	}
	if len(a.fileBuf) > 0 {
		if err := a.store.InsertFiles(ctx, a.scanID, a.fileBuf); err != nil {
			return err
		}
		a.fileBuf = a.fileBuf[:0]
	}
	a.lastFlush = time.Now()
	return nil
}

func (a *Aggregator) flushWarnings(ctx context.Context) {
	a.warnMu.Lock()
	batch := a.warnBuf
	a.warnBuf = nil
	a.warnMu.Unlock()
	if len(batch) == 0 {
		return
	}
	// Warnings are best-effort bookkeeping; a failure here must not fail the
	// scan (spec §7: warnings never block completion).
	_ = a.store.InsertWarnings(ctx, a.scanID, batch)
}

func (a *Aggregator) publishProgress() {
	if a.bus == nil {
		return
	}
	s := a.Stats()
	a.bus.Publish(Event{
		Kind: EventProgress, ScanID: a.scanID,
		Progress: &ProgressPayload{
			Dirs: s.DirsEnumerated, Files: s.FilesFound,
			BytesLogical: s.BytesLogical, BytesAllocated: s.BytesAllocated,
			Warnings: s.Warnings,
		},
	})
}

func unixPtr(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}
