//go:build !windows

package scan

import "os"

// allocatedSize falls back to logical size on non-Windows platforms, per
// spec §4.A.
func allocatedSize(path string, info os.FileInfo) (int64, error) {
	return info.Size(), nil
}
