package scan

import (
	"errors"
	"fmt"
	"os"
	"runtime"
)

// Options is the request-level configuration for a single scan.
type Options struct {
	RootPaths        []string `json:"root_paths"`
	FollowSymlinks   bool     `json:"follow_symlinks"`
	IncludeHidden    bool     `json:"include_hidden"`
	MeasureLogical   bool     `json:"measure_logical"`
	MeasureAllocated bool     `json:"measure_allocated"`
	Excludes         []string `json:"excludes,omitempty"`
	MaxDepth         *int     `json:"max_depth,omitempty"`
	Concurrency      *int     `json:"concurrency,omitempty"`
}

// DefaultOptions returns the option defaults from the external interface table.
func DefaultOptions() Options {
	return Options{
		FollowSymlinks:   false,
		IncludeHidden:    true,
		MeasureLogical:   true,
		MeasureAllocated: true,
	}
}

// Validate rejects input errors before a scan row is created: empty root
// list, or a root path that does not exist / is not a directory.
func (o Options) Validate() error {
	if len(o.RootPaths) == 0 {
		return errors.New("root_paths must be non-empty")
	}
	for _, r := range o.RootPaths {
		info, err := os.Stat(r)
		if err != nil {
			return fmt.Errorf("root path %q: %w", r, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("root path %q is not a directory", r)
		}
	}
	return nil
}

// Config holds scanner tunables that live in configuration, not on a
// per-request basis.
type Config struct {
	BatchSize          int
	FlushThreshold     int
	FlushIntervalMs    int
	DirConcurrency     int
	HandleLimit        *int
	ProgressIntervalMs int
	SizeCacheEntries   int
}

// DefaultConfig returns the tunable defaults, matching the original
// implementation's scanner config (see DESIGN.md, "Config").
func DefaultConfig() Config {
	return Config{
		BatchSize:          4000,
		FlushThreshold:     8000,
		FlushIntervalMs:    750,
		DirConcurrency:     12,
		ProgressIntervalMs: 500,
		SizeCacheEntries:   10000,
	}
}

// effectiveConcurrency resolves the dynamic default (~75% of logical cores,
// floor 2), a per-request override, the configured ceiling, and an optional
// handle limit into the worker/semaphore size used for one root's walk.
func effectiveConcurrency(cfg Config, opts Options) int {
	def := (runtime.NumCPU() * 3) / 4
	if def < 2 {
		def = 2
	}

	n := def
	if opts.Concurrency != nil && *opts.Concurrency > 0 {
		n = *opts.Concurrency
	}
	if cfg.DirConcurrency > 0 && n > cfg.DirConcurrency {
		n = cfg.DirConcurrency
	}
	if cfg.HandleLimit != nil && *cfg.HandleLimit > 0 && n > *cfg.HandleLimit {
		n = *cfg.HandleLimit
	}
	if n < 1 {
		n = 1
	}
	return n
}
