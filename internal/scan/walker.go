package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Walk drives the Directory Walker (spec §4.D) across every root in
// opts.RootPaths. It emits Records on out and closes out once every root has
// been fully walked or ctx is cancelled. warn is called for every per-entry
// error or policy warning (access_denied, reparse_skipped, ...); it must be
// safe for concurrent use.
func Walk(ctx context.Context, opts Options, cfg Config, matcher *Matcher, probe *Probe, out chan<- Record, warn func(Warning)) {
	defer close(out)

	var wg sync.WaitGroup
	for _, r := range opts.RootPaths {
		root := filepath.Clean(r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			walkRoot(ctx, root, opts, cfg, matcher, probe, out, warn)
		}()
	}
	wg.Wait()
}

// walkRoot runs one root's fixed worker pool, sized to the effective
// concurrency, over a FIFO queue of directory tasks bounded by a counting
// semaphore of the same size.
func walkRoot(ctx context.Context, root string, opts Options, cfg Config, matcher *Matcher, probe *Probe, out chan<- Record, warn func(Warning)) {
	n := effectiveConcurrency(cfg, opts)
	sem := semaphore.NewWeighted(int64(n))
	q := newDirQueue()
	tracker := newCloseTracker()

	rootFrame := tracker.open(root, "", 0, nil)
	q.pending.Add(1)
	q.Push(&dirTask{path: root, parentPath: "", depth: 0, frame: rootFrame})

	emit := func(f *closeFrame) {
		select {
		case out <- Record{DirClose: &DirCloseRecord{Path: f.path, ParentPath: f.parentPath, Depth: f.depth}}:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := q.Pop()
				if !ok {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					// ctx cancelled while waiting for a permit: still must
					// close out this task's frame so ancestors can close too.
					tracker.closeOne(task.frame, emit)
					q.Done()
					continue
				}
				processDir(ctx, task, opts, cfg, matcher, probe, q, tracker, out, warn, emit)
				sem.Release(1)
			}
		}()
	}
	wg.Wait()
}

// processDir implements one directory task: spec §4.D steps 1–4.
func processDir(ctx context.Context, task *dirTask, opts Options, cfg Config, matcher *Matcher, probe *Probe, q *dirQueue, tracker *closeTracker, out chan<- Record, warn func(Warning), emit func(*closeFrame)) {
	defer func() {
		tracker.closeOne(task.frame, emit)
		q.Done()
	}()

	select {
	case out <- Record{DirOpen: &DirOpenRecord{Path: task.path, ParentPath: task.parentPath, Depth: task.depth}}:
	case <-ctx.Done():
		return
	}

	if ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(task.path)
	if err != nil {
		warn(Warning{Path: task.path, Code: readDirErrorCode(err), Message: err.Error(), CreatedAt: time.Now().UTC()})
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(task.path, entry.Name())
		if matcher.Match(path) {
			continue
		}

		kind, hidden, info, cerr := classify(task.path, entry, opts.FollowSymlinks)
		if cerr != nil {
			warn(Warning{Path: path, Code: CodeIOError, Message: cerr.Error(), CreatedAt: time.Now().UTC()})
			continue
		}
		if hidden && !opts.IncludeHidden {
			continue
		}

		switch kind {
		case kindDirectory:
			if opts.MaxDepth != nil && task.depth+1 > *opts.MaxDepth {
				warn(Warning{Path: path, Code: CodeDepthLimit, Message: "max_depth exceeded", CreatedAt: time.Now().UTC()})
				continue
			}

			childAncestors := task.ancestors
			if opts.FollowSymlinks && isSymlink(entry) {
				canon, everr := filepath.EvalSymlinks(path)
				if everr != nil {
					warn(Warning{Path: path, Code: CodeIOError, Message: everr.Error(), CreatedAt: time.Now().UTC()})
					continue
				}
				if containsString(task.ancestors, canon) {
					warn(Warning{Path: path, Code: CodeReparseSkipped, Message: "cycle detected via symlink", CreatedAt: time.Now().UTC()})
					continue
				}
				childAncestors = append(append([]string{}, task.ancestors...), canon)
			}

			tracker.childDiscovered(task.frame)
			childFrame := tracker.open(path, task.path, task.depth+1, task.frame)
			q.pending.Add(1)
			q.Push(&dirTask{path: path, parentPath: task.path, depth: task.depth + 1, ancestors: childAncestors, frame: childFrame})

		case kindReparseLeaf:
			if info != nil && info.IsDir() {
				warn(Warning{Path: path, Code: CodeReparseSkipped, Message: "reparse point to directory not followed", CreatedAt: time.Now().UTC()})
			}
			select {
			case out <- Record{File: &FileRecord{Path: path, ParentPath: task.path}}:
			case <-ctx.Done():
				return
			}

		case kindFile:
			logical, allocated, perr := probe.Probe(path, info, opts.MeasureLogical, opts.MeasureAllocated)
			if perr != nil {
				warn(Warning{Path: path, Code: CodeSizeProbeFailed, Message: perr.Error(), CreatedAt: time.Now().UTC()})
				logical, allocated = 0, 0
			}
			fr := &FileRecord{Path: path, ParentPath: task.path, LogicalSize: logical, AllocatedSize: allocated}
			if info != nil {
				fr.MTime = info.ModTime()
			}
			select {
			case out <- Record{File: fr}:
			case <-ctx.Done():
				return
			}

		default: // kindOther: device files, sockets, etc. — not part of the size model.
		}
	}
}

func readDirErrorCode(err error) string {
	switch {
	case os.IsPermission(err):
		return CodeAccessDenied
	case os.IsNotExist(err):
		return CodeNotFound
	default:
		return CodeIOError
	}
}
