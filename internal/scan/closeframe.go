package scan

import (
	"sync"
	"sync/atomic"
)

// closeFrame tracks, per directory, how many outstanding things must finish
// before the directory can be considered closed: its own entry-read, plus
// one per child directory discovered while reading it. The walker owns this
// bookkeeping; the Aggregator's own per-directory rollup frame (nodeFrame,
// in aggregator.go) is a separate structure.
type closeFrame struct {
	path, parentPath string
	depth            int
	pending          atomic.Int64
	parent           *closeFrame // nil for roots
}

// closeTracker owns the set of live closeFrames for one root's walk.
type closeTracker struct {
	mu     sync.Mutex
	frames map[string]*closeFrame
}

func newCloseTracker() *closeTracker {
	return &closeTracker{frames: make(map[string]*closeFrame)}
}

// open registers a directory about to be read. pending starts at 1,
// representing "own read not finished yet"; it is incremented once more per
// child directory discovered (see childDiscovered).
func (t *closeTracker) open(path, parentPath string, depth int, parent *closeFrame) *closeFrame {
	f := &closeFrame{path: path, parentPath: parentPath, depth: depth, parent: parent}
	f.pending.Store(1)
	t.mu.Lock()
	t.frames[path] = f
	t.mu.Unlock()
	return f
}

// childDiscovered must be called before pushing a subdirectory onto the work
// queue, incrementing the parent frame's pending count by one.
func (t *closeTracker) childDiscovered(f *closeFrame) {
	f.pending.Add(1)
}

// closeOne decrements f's pending count by one — either "own read finished"
// or "one child subtree closed". When it reaches zero the directory is fully
// closed: emit is invoked with f, and the cascade continues into f.parent,
// since closing f also resolves one pending unit on its parent.
func (t *closeTracker) closeOne(f *closeFrame, emit func(*closeFrame)) {
	for f != nil {
		if f.pending.Add(-1) != 0 {
			return
		}
		t.mu.Lock()
		delete(t.frames, f.path)
		t.mu.Unlock()
		emit(f)
		f = f.parent
	}
}
