package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type entryKind int

const (
	kindOther entryKind = iota
	kindFile
	kindDirectory
	kindReparseLeaf // symlink/junction/mount point not being descended
)

// classify interprets one directory entry (spec §4.C). dir is the directory
// containing entry. When followSymlinks is false, reparse points are leaves
// unless they are UNC mount points for an already-connected network share
// (SPEC_FULL.md §3.4), in which case they are descended regardless.
func classify(dir string, entry os.DirEntry, followSymlinks bool) (kind entryKind, hidden bool, info os.FileInfo, err error) {
	path := filepath.Join(dir, entry.Name())
	typ := entry.Type()

	if typ&fs.ModeSymlink != 0 {
		if target, lerr := os.Readlink(path); lerr == nil && isUNCPath(target) {
			if info, err = os.Stat(path); err == nil && info.IsDir() {
				return kindDirectory, isHiddenOrSystem(entry, info), info, nil
			}
		}
		if !followSymlinks {
			// info describes the link target (nil if it cannot be resolved),
			// so the caller can tell directory-like reparse points apart.
			info, _ = os.Stat(path)
			return kindReparseLeaf, false, info, nil
		}
		info, err = os.Stat(path)
		if err != nil {
			return kindOther, false, nil, err
		}
		hidden = isHiddenOrSystem(entry, info)
		if info.IsDir() {
			return kindDirectory, hidden, info, nil
		}
		return kindFile, hidden, info, nil
	}

	info, err = entry.Info()
	if err != nil {
		return kindOther, false, nil, err
	}
	hidden = isHiddenOrSystem(entry, info)

	if entry.IsDir() {
		return kindDirectory, hidden, info, nil
	}
	if typ.IsRegular() {
		return kindFile, hidden, info, nil
	}
	return kindOther, hidden, info, nil
}

func isSymlink(entry os.DirEntry) bool {
	return entry.Type()&fs.ModeSymlink != 0
}

// isUNCPath reports whether target addresses a network share (\\server\share
// or //server/share), per the GLOSSARY's definition of UNC path.
func isUNCPath(target string) bool {
	return strings.HasPrefix(target, `\\`) || strings.HasPrefix(target, "//")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
