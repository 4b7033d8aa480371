package scan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Validation limits on exclude glob patterns (SPEC_FULL.md §3.3), guarding
// against pathological glob-compilation cost.
const (
	maxGlobLength    = 1024
	maxGlobWildcards = 20
)

// Matcher is the Exclusion Matcher (spec §4.B): a compiled glob set matched
// case-insensitively against full absolute paths, with "**" cross-segment
// wildcards.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles patterns once per scan. A pattern exceeding the length
// or wildcard-count limits is rejected as an input error (spec §7).
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if len(p) > maxGlobLength {
			return nil, fmt.Errorf("exclude pattern too long (%d > %d): %q", len(p), maxGlobLength, p)
		}
		if n := strings.Count(p, "*") + strings.Count(p, "?"); n > maxGlobWildcards {
			return nil, fmt.Errorf("exclude pattern has too many wildcards (%d > %d): %q", n, maxGlobWildcards, p)
		}
		norm := strings.ToLower(filepath.ToSlash(p))
		g, err := glob.Compile(norm, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether path matches any compiled pattern. A nil Matcher (no
// patterns configured) never matches.
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.globs) == 0 {
		return false
	}
	norm := strings.ToLower(filepath.ToSlash(path))
	for _, g := range m.globs {
		if g.Match(norm) {
			return true
		}
	}
	return false
}
