package scan

import "testing"

func TestMatcherMatchesCrossSegmentWildcard(t *testing.T) {
	m, err := NewMatcher([]string{"**/node_modules"})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	cases := map[string]bool{
		"/root/node_modules":            true,
		"/root/src/node_modules":        true,
		"/root/node_modules/pkg/a.js":   true,
		"/root/src/app.js":              false,
	}
	for path, want := range cases {
		if got := m.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestMatcherIsCaseInsensitive(t *testing.T) {
	m, err := NewMatcher([]string{"**/Cache"})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if !m.Match("/Users/alice/cache") {
		t.Error("expected case-insensitive match")
	}
}

func TestMatcherNilAndEmptyNeverMatch(t *testing.T) {
	var nilMatcher *Matcher
	if nilMatcher.Match("/anything") {
		t.Error("nil matcher must never match")
	}
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("NewMatcher(nil): %v", err)
	}
	if m.Match("/anything") {
		t.Error("matcher with no patterns must never match")
	}
}

func TestMatcherRejectsOversizedPattern(t *testing.T) {
	big := make([]byte, maxGlobLength+1)
	for i := range big {
		big[i] = 'a'
	}
	if _, err := NewMatcher([]string{string(big)}); err == nil {
		t.Error("expected error for pattern exceeding max length")
	}
}

func TestMatcherRejectsTooManyWildcards(t *testing.T) {
	pattern := ""
	for i := 0; i < maxGlobWildcards+1; i++ {
		pattern += "*/"
	}
	if _, err := NewMatcher([]string{pattern}); err == nil {
		t.Error("expected error for pattern exceeding max wildcard count")
	}
}

func TestMatcherRejectsInvalidGlob(t *testing.T) {
	if _, err := NewMatcher([]string{"[unterminated"}); err == nil {
		t.Error("expected error for invalid glob syntax")
	}
}

func TestMatcherSkipsBlankPatterns(t *testing.T) {
	m, err := NewMatcher([]string{"", "   "})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if len(m.globs) != 0 {
		t.Errorf("expected blank patterns to be skipped, got %d compiled globs", len(m.globs))
	}
}
