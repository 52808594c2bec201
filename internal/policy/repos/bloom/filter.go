// Package bloom implements the Bloom Pre-filter of spec.md §4.3: a
// probabilistic membership structure over the block_exact key set that lets
// most queries skip the persistent-store probe entirely.
package bloom

import (
	"sync"
	"sync/atomic"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// rebuildThreshold is the fraction of configured capacity past which
// NeedsRebuild reports true (the inserted count must exceed 70% of the
// configured capacity).
const rebuildThreshold = 0.70

// Filter is the membership structure the Policy Pipeline queries on the hot
// path. Implementations must allow concurrent MightContain calls while an
// Add or Clear is in flight (spec.md §4.3: a reader-writer lock guards the
// bit array).
type Filter interface {
	// MightContain reports whether key may be present (false means
	// definitely absent; true means maybe present).
	MightContain(key []byte) bool

	// Add inserts key. Used only at rebuild time, never on the hot path.
	Add(key []byte)

	// Clear resets the filter to empty, keeping its current sizing.
	Clear()

	// Len returns the number of keys inserted since construction or the
	// last Clear.
	Len() uint64

	// NeedsRebuild reports whether the inserted count has crossed
	// rebuildThreshold of the filter's configured capacity. Nothing in this
	// module acts on it: the Refresh Controller rebuilds only on reload, and
	// always at the configured capacity.
	NeedsRebuild() bool
}

// filter wraps bits-and-blooms's BloomFilter with a reader-writer lock: Add
// and Clear take the write side, MightContain takes the read side, so any
// number of readers may run concurrently while writers are exclusive.
type filter struct {
	mu       sync.RWMutex
	bf       *bitsbloom.BloomFilter
	capacity uint64
	inserted atomic.Uint64
}

// newFilter wraps a sized bits-and-blooms filter with the inserted-count
// tracking NeedsRebuild relies on.
func newFilter(bf *bitsbloom.BloomFilter, capacity uint64) *filter {
	return &filter{bf: bf, capacity: capacity}
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
	f.inserted.Add(1)
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

func (f *filter) Clear() {
	f.mu.Lock()
	f.bf.ClearAll()
	f.mu.Unlock()
	f.inserted.Store(0)
}

func (f *filter) Len() uint64 { return f.inserted.Load() }

func (f *filter) NeedsRebuild() bool {
	if f.capacity == 0 {
		return false
	}
	return float64(f.inserted.Load())/float64(f.capacity) > rebuildThreshold
}

var _ Filter = (*filter)(nil)
