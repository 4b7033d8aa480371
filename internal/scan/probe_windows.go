//go:build windows

package scan

import (
	"os"

	"golang.org/x/sys/windows"
)

// allocatedSize returns the on-disk, cluster-rounded, compression/sparse
// -aware size of path via GetCompressedFileSizeW (spec §4.A).
func allocatedSize(path string, info os.FileInfo) (int64, error) {
	namePtr, err := windows.UTF16PtrFromString(longPathPrefix(path))
	if err != nil {
		return info.Size(), err
	}
	var high uint32
	low, err := windows.GetCompressedFileSize(namePtr, &high)
	if err != nil {
		return info.Size(), err
	}
	return int64(high)<<32 | int64(low), nil
}

// longPathPrefix applies the \\?\ long-path prefix for absolute paths that
// may exceed the legacy MAX_PATH limit (spec §4.D).
func longPathPrefix(path string) string {
	if len(path) < 248 || len(path) < 2 || path[1] != ':' {
		return path
	}
	return `\\?\` + path
}
