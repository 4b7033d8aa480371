package scan

import (
	"context"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.FlushThreshold = 10
	cfg.FlushIntervalMs = 50
	cfg.ProgressIntervalMs = 50
	return cfg
}

// TestAggregatorRollsUpFlatDirectory covers S2: three files in one directory
// roll up to a single node with matching totals.
func TestAggregatorRollsUpFlatDirectory(t *testing.T) {
	_, store := mustOpenStore(t)
	agg := NewAggregator(store, testConfig(), nil, "scan-1")

	if err := store.CreateScan(context.Background(), "scan-1", []string{"/root"}, DefaultOptions(), time.Now().UTC()); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	records := make(chan Record, 16)
	records <- Record{DirOpen: &DirOpenRecord{Path: "/root", ParentPath: "", Depth: 0}}
	records <- Record{File: &FileRecord{Path: "/root/a.txt", ParentPath: "/root", LogicalSize: 100, AllocatedSize: 100}}
	records <- Record{File: &FileRecord{Path: "/root/b.txt", ParentPath: "/root", LogicalSize: 200, AllocatedSize: 200}}
	records <- Record{File: &FileRecord{Path: "/root/c.txt", ParentPath: "/root", LogicalSize: 300, AllocatedSize: 300}}
	records <- Record{DirClose: &DirCloseRecord{Path: "/root", ParentPath: "", Depth: 0}}
	close(records)

	if err := agg.Run(context.Background(), records); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := agg.Stats()
	if stats.FilesFound != 3 {
		t.Errorf("FilesFound = %d, want 3", stats.FilesFound)
	}
	if stats.BytesLogical != 600 {
		t.Errorf("BytesLogical = %d, want 600", stats.BytesLogical)
	}
	if stats.DirsEnumerated != 1 {
		t.Errorf("DirsEnumerated = %d, want 1", stats.DirsEnumerated)
	}

	nodes, err := store.ChildNodes(context.Background(), "scan-1", "")
	if err != nil {
		t.Fatalf("ChildNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 root node, got %d", len(nodes))
	}
	if nodes[0].Logical != 600 || nodes[0].FileCount != 3 || nodes[0].DirCount != 0 {
		t.Errorf("unexpected root node: %+v", nodes[0])
	}
}

// TestAggregatorPropagatesSizesToAncestors covers S3: a file two levels deep
// contributes to every ancestor's rollup, not just its immediate parent.
func TestAggregatorPropagatesSizesToAncestors(t *testing.T) {
	_, store := mustOpenStore(t)
	agg := NewAggregator(store, testConfig(), nil, "scan-2")

	if err := store.CreateScan(context.Background(), "scan-2", []string{"/root"}, DefaultOptions(), time.Now().UTC()); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	records := make(chan Record, 16)
	records <- Record{DirOpen: &DirOpenRecord{Path: "/root", ParentPath: "", Depth: 0}}
	records <- Record{DirOpen: &DirOpenRecord{Path: "/root/d1", ParentPath: "/root", Depth: 1}}
	records <- Record{File: &FileRecord{Path: "/root/d1/x.txt", ParentPath: "/root/d1", LogicalSize: 10, AllocatedSize: 10}}
	records <- Record{DirClose: &DirCloseRecord{Path: "/root/d1", ParentPath: "/root", Depth: 1}}
	records <- Record{DirOpen: &DirOpenRecord{Path: "/root/d2", ParentPath: "/root", Depth: 1}}
	records <- Record{File: &FileRecord{Path: "/root/d2/y.txt", ParentPath: "/root/d2", LogicalSize: 20, AllocatedSize: 20}}
	records <- Record{DirClose: &DirCloseRecord{Path: "/root/d2", ParentPath: "/root", Depth: 1}}
	records <- Record{DirClose: &DirCloseRecord{Path: "/root", ParentPath: "", Depth: 0}}
	close(records)

	if err := agg.Run(context.Background(), records); err != nil {
		t.Fatalf("Run: %v", err)
	}

	nodes, err := store.ChildNodes(context.Background(), "scan-2", "")
	if err != nil {
		t.Fatalf("ChildNodes(root): %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 root node, got %d", len(nodes))
	}
	root := nodes[0]
	if root.Logical != 30 {
		t.Errorf("root.Logical = %d, want 30", root.Logical)
	}
	if root.FileCount != 2 {
		t.Errorf("root.FileCount = %d, want 2", root.FileCount)
	}
	if root.DirCount != 2 {
		t.Errorf("root.DirCount = %d, want 2", root.DirCount)
	}

	children, err := store.ChildNodes(context.Background(), "scan-2", "/root")
	if err != nil {
		t.Fatalf("ChildNodes(/root): %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 child nodes under /root, got %d", len(children))
	}
	for _, c := range children {
		if c.FileCount != 1 {
			t.Errorf("child %q FileCount = %d, want 1", c.Path, c.FileCount)
		}
	}
}

// TestAggregatorEmptyDirectoryProducesZeroNode covers S1.
func TestAggregatorEmptyDirectoryProducesZeroNode(t *testing.T) {
	_, store := mustOpenStore(t)
	agg := NewAggregator(store, testConfig(), nil, "scan-3")

	if err := store.CreateScan(context.Background(), "scan-3", []string{"/empty"}, DefaultOptions(), time.Now().UTC()); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	records := make(chan Record, 4)
	records <- Record{DirOpen: &DirOpenRecord{Path: "/empty", ParentPath: "", Depth: 0}}
	records <- Record{DirClose: &DirCloseRecord{Path: "/empty", ParentPath: "", Depth: 0}}
	close(records)

	if err := agg.Run(context.Background(), records); err != nil {
		t.Fatalf("Run: %v", err)
	}

	nodes, err := store.ChildNodes(context.Background(), "scan-3", "")
	if err != nil {
		t.Fatalf("ChildNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	n := nodes[0]
	if n.Logical != 0 || n.Allocated != 0 || n.FileCount != 0 || n.DirCount != 0 {
		t.Errorf("expected all-zero node, got %+v", n)
	}
}

// TestAggregatorWarnDoesNotBlockOnFullBuffer verifies Warn can be called
// from many goroutines concurrently without deadlocking, and that every
// warning eventually lands in the store once flushed.
func TestAggregatorWarnDoesNotBlockOnFullBuffer(t *testing.T) {
	_, store := mustOpenStore(t)
	cfg := testConfig()
	cfg.FlushThreshold = 5
	agg := NewAggregator(store, cfg, nil, "scan-4")

	if err := store.CreateScan(context.Background(), "scan-4", []string{"/root"}, DefaultOptions(), time.Now().UTC()); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			agg.Warn(Warning{Path: "/root/bad", Code: CodeAccessDenied, Message: "denied", CreatedAt: time.Now().UTC()})
		}
		close(done)
	}()
	<-done

	agg.flushWarnings(context.Background())
	if agg.Stats().Warnings != 50 {
		t.Errorf("Warnings = %d, want 50", agg.Stats().Warnings)
	}
}
