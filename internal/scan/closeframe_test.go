package scan

import "testing"

// TestCloseTrackerEmitsPostOrder verifies a three-level chain (root > mid >
// leaf) closes leaf first, then mid, then root, and that closing cascades
// upward through the parent chain automatically.
func TestCloseTrackerEmitsPostOrder(t *testing.T) {
	tr := newCloseTracker()

	root := tr.open("root", "", 0, nil)
	mid := tr.open("root/mid", "root", 1, root)
	leaf := tr.open("root/mid/leaf", "root/mid", 2, mid)

	tr.childDiscovered(root)
	tr.childDiscovered(mid)

	var order []string
	emit := func(f *closeFrame) { order = append(order, f.path) }

	// leaf has no children: its own-read pending unit is all it has.
	tr.closeOne(leaf, emit)
	if len(order) != 1 || order[0] != "root/mid/leaf" {
		t.Fatalf("expected leaf to close alone, got %v", order)
	}

	// leaf's close already resolved mid's childDiscovered unit; closing
	// mid's own-read unit now drops it to zero.
	tr.closeOne(mid, emit)
	if len(order) != 2 || order[1] != "root/mid" {
		t.Fatalf("expected mid to close second, got %v", order)
	}

	tr.closeOne(root, emit)
	if len(order) != 3 || order[2] != "root" {
		t.Fatalf("expected root to close last, got %v", order)
	}
}

// TestCloseTrackerWaitsForAllChildren verifies a directory with two children
// does not close until both children's subtrees have closed.
func TestCloseTrackerWaitsForAllChildren(t *testing.T) {
	tr := newCloseTracker()
	root := tr.open("root", "", 0, nil)
	childA := tr.open("root/a", "root", 1, root)
	childB := tr.open("root/b", "root", 1, root)
	tr.childDiscovered(root)
	tr.childDiscovered(root)

	var closed []string
	emit := func(f *closeFrame) { closed = append(closed, f.path) }

	tr.closeOne(childA, emit)
	if len(closed) != 1 {
		t.Fatalf("expected only childA to close, got %v", closed)
	}
	tr.closeOne(root, emit) // root's own read; still waiting on childB
	if len(closed) != 1 {
		t.Fatalf("root must not close before all children, got %v", closed)
	}
	tr.closeOne(childB, emit)
	if len(closed) != 3 || closed[2] != "root" {
		t.Fatalf("expected root to close once childB finishes, got %v", closed)
	}
}

// TestCloseTrackerRemovesFrameOnClose verifies a closed frame is evicted
// from the tracker's live-frame map so memory does not grow unbounded.
func TestCloseTrackerRemovesFrameOnClose(t *testing.T) {
	tr := newCloseTracker()
	f := tr.open("only", "", 0, nil)
	tr.closeOne(f, func(*closeFrame) {})

	tr.mu.Lock()
	_, ok := tr.frames["only"]
	tr.mu.Unlock()
	if ok {
		t.Fatal("expected frame to be removed from tracker after close")
	}
}
