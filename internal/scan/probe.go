package scan

import (
	"fmt"
	"os"

	"github.com/dgraph-io/ristretto/v2"
)

type probeResult struct {
	Logical, Allocated int64
}

// Probe implements the Size Probe (spec §4.A): reports logical/allocated
// size for a file, backed by a small LRU keyed by path. The Manager creates
// one Probe per scan and closes it when the scan ends, so cached results are
// not shared between scans. Cache entries are immutable snapshots; no
// invalidation is needed within a scan.
type Probe struct {
	cache *ristretto.Cache[string, probeResult]
}

// NewProbe builds a Probe with a bounded cache sized to capacity entries
// (SPEC_FULL.md §3.2: defaults to 10000 when capacity is not positive,
// clamped to [100, 100000]; the server sets it from the
// scan.size_cache_entries config key, env SPEICHERWALD_SCAN_SIZE_CACHE_ENTRIES).
func NewProbe(capacity int) (*Probe, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	if capacity < 100 {
		capacity = 100
	}
	if capacity > 100000 {
		capacity = 100000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, probeResult]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create size probe cache: %w", err)
	}
	return &Probe{cache: cache}, nil
}

// Probe returns (logical, allocated) for path. info must already be stat'd
// by the caller (the walker already needed it to classify the entry).
// Failure to measure allocated size falls back to logical and returns an
// error so the caller can record a size_probe_failed warning.
func (p *Probe) Probe(path string, info os.FileInfo, measureLogical, measureAllocated bool) (logical, allocated int64, err error) {
	if v, ok := p.cache.Get(path); ok {
		return v.Logical, v.Allocated, nil
	}
	if info == nil {
		return 0, 0, fmt.Errorf("probe %q: missing file info", path)
	}

	if measureLogical {
		logical = info.Size()
	}

	if measureAllocated {
		allocated, err = allocatedSize(path, info)
		if err != nil {
			return logical, logical, err
		}
	} else {
		allocated = logical
	}

	p.cache.Set(path, probeResult{Logical: logical, Allocated: allocated}, 1)
	return logical, allocated, nil
}

// Close releases the cache's background resources.
func (p *Probe) Close() {
	p.cache.Close()
}
