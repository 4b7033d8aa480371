//go:build !windows

package scan

import "os"

// isHiddenOrSystem always reports false on non-Windows platforms: there is
// no native hidden/system attribute bit to check (a leading "." is a naming
// convention, not a filesystem attribute, and spec §4.C asks only for the
// platform-native attribute check), matching original_source's own
// non-Windows behavior.
func isHiddenOrSystem(entry os.DirEntry, info os.FileInfo) bool {
	return false
}
