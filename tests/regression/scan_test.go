package regression_test

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type scanStartResponse struct {
	ID string `json:"id"`
}

type nodeItem struct {
	Path       string `json:"path"`
	ParentPath string `json:"parent_path"`
	Logical    int64  `json:"logical_size"`
	Allocated  int64  `json:"allocated_size"`
	FileCount  int64  `json:"file_count"`
	DirCount   int64  `json:"dir_count"`
}

func startScan(t *testing.T, ts *testServer, roots []string, excludes []string) string {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"root_paths": roots,
		"excludes":   excludes,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := ts.post(t, "/scans", bytes.NewBuffer(body))
	defer resp.Body.Close()
	requireStatus(t, resp, 202)

	var start scanStartResponse
	decodeJSON(t, resp, &start)
	if start.ID == "" {
		t.Fatal("expected non-empty scan id")
	}
	return start.ID
}

// TestScan_EmptyDir covers S1: a scan of an empty directory finishes with
// exactly one root node whose sizes and counts are all zero.
func TestScan_EmptyDir(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()

	id := startScan(t, ts, []string{dir}, nil)
	status := waitForTerminal(t, ts, id, 30*time.Second)
	if status != "finished" {
		t.Fatalf("expected status finished, got %q", status)
	}

	resp := ts.get(t, "/scans/"+id+"/nodes")
	requireStatus(t, resp, 200)
	var nodes struct {
		Items []nodeItem `json:"items"`
		Total int        `json:"total"`
	}
	decodeJSON(t, resp, &nodes)
	if nodes.Total != 1 {
		t.Fatalf("expected exactly 1 root node, got %d", nodes.Total)
	}
	root := nodes.Items[0]
	if root.Logical != 0 || root.Allocated != 0 || root.FileCount != 0 || root.DirCount != 0 {
		t.Fatalf("expected all-zero root node, got %+v", root)
	}
}

// TestScan_ThreeFiles covers S2: a flat directory with three files rolls up
// to a single node whose logical_size and file_count match the fixture.
func TestScan_ThreeFiles(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()

	sizes := map[string]int{"a.txt": 100, "b.txt": 200, "c.txt": 300}
	for name, n := range sizes {
		if err := os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte("x"), n), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	id := startScan(t, ts, []string{dir}, nil)
	status := waitForTerminal(t, ts, id, 30*time.Second)
	if status != "finished" {
		t.Fatalf("expected status finished, got %q", status)
	}

	resp := ts.get(t, "/scans/"+id+"/nodes")
	requireStatus(t, resp, 200)
	var nodes struct {
		Items []nodeItem `json:"items"`
	}
	decodeJSON(t, resp, &nodes)
	if len(nodes.Items) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes.Items))
	}
	root := nodes.Items[0]
	if root.Logical != 600 {
		t.Errorf("expected logical_size 600, got %d", root.Logical)
	}
	if root.FileCount != 3 {
		t.Errorf("expected file_count 3, got %d", root.FileCount)
	}
	if root.DirCount != 0 {
		t.Errorf("expected dir_count 0, got %d", root.DirCount)
	}
}

// TestScan_ExcludedSubtree covers S4: excluding a subtree keeps it out of
// the nodes listed under the scan root.
func TestScan_ExcludedSubtree(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()

	excluded := filepath.Join(dir, "node_modules")
	if err := os.MkdirAll(excluded, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(excluded, "big.bin"), make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(dir, "src")
	if err := os.MkdirAll(kept, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kept, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	id := startScan(t, ts, []string{dir}, []string{"**/node_modules"})
	status := waitForTerminal(t, ts, id, 30*time.Second)
	if status != "finished" {
		t.Fatalf("expected status finished, got %q", status)
	}

	resp := ts.get(t, "/scans/"+id+"/nodes?parent_path="+url.QueryEscape(dir))
	requireStatus(t, resp, 200)
	var nodes struct {
		Items []nodeItem `json:"items"`
	}
	decodeJSON(t, resp, &nodes)
	for _, n := range nodes.Items {
		if filepath.Base(n.Path) == "node_modules" {
			t.Fatalf("excluded directory %q appeared in nodes", n.Path)
		}
	}
}

// TestScan_CancelReachesCanceled covers S6: cancelling a running scan drives
// it to a terminal "canceled" status within a bounded budget.
func TestScan_CancelReachesCanceled(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	for i := 0; i < 50; i++ {
		sub := filepath.Join(dir, "d", time.Now().Format("150405")+string(rune('a'+i%26)))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	id := startScan(t, ts, []string{dir}, nil)

	resp := ts.delete(t, "/scans/"+id)
	resp.Body.Close()

	status := waitForTerminal(t, ts, id, 5*time.Second)
	if status != "canceled" && status != "finished" {
		t.Fatalf("expected canceled (or already finished), got %q", status)
	}
}
