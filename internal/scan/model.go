package scan

import "time"

// FileRecord is emitted by the Directory Walker for every regular file, and
// for un-followed reparse points treated as zero-size leaves.
type FileRecord struct {
	Path, ParentPath           string
	LogicalSize, AllocatedSize int64
	MTime, ATime               time.Time
}

// DirCloseRecord signals that a directory has no remaining pending children:
// every FileRecord with this path as parent, and every DirCloseRecord for an
// immediate subdirectory, has already been emitted.
type DirCloseRecord struct {
	Path, ParentPath string
	Depth            int
}

// DirOpenRecord is sent once, by the goroutine that will read a directory's
// entries, before any FileRecord or DirCloseRecord concerning that directory.
// It carries no externally visible meaning; it exists purely so the
// Aggregator can register a directory's parent-chain before the first file
// under it arrives (see DESIGN.md, "DirOpen bootstrap signal").
type DirOpenRecord struct {
	Path, ParentPath string
	Depth            int
}

// Record is the single type sent over the walker→aggregator channel; exactly
// one field is set.
type Record struct {
	DirOpen  *DirOpenRecord
	File     *FileRecord
	DirClose *DirCloseRecord
}

// Warning is a non-fatal per-entry error.
type Warning struct {
	Path, Code, Message string
	CreatedAt           time.Time
}

// Warning codes (spec §7).
const (
	CodeAccessDenied    = "access_denied"
	CodeNotFound        = "not_found"
	CodeIOError         = "io_error"
	CodeSizeProbeFailed = "size_probe_failed"
	CodeReparseSkipped  = "reparse_skipped"
	CodeDepthLimit      = "depth_limit"
)

// Status values for the Scan state machine.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
)
