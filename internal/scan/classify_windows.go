//go:build windows

package scan

import (
	"os"
	"syscall"
)

// isHiddenOrSystem reports whether entry carries the Windows hidden or
// system attribute bits (spec §4.C).
func isHiddenOrSystem(entry os.DirEntry, info os.FileInfo) bool {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return false
	}
	const attrs = syscall.FILE_ATTRIBUTE_HIDDEN | syscall.FILE_ATTRIBUTE_SYSTEM
	return sys.FileAttributes&attrs != 0
}
