// Package lru implements the LRU Disposition Cache of spec.md §4.4: a
// capacity-bounded, most-recently-used cache of Name → Disposition results
// that lets repeat queries skip the full classification pipeline.
package lru

import (
	"hash/fnv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// Cache is the contract the Policy Pipeline depends on.
type Cache interface {
	// Get looks up a cached Disposition for name.
	Get(name domain.Name) (domain.Disposition, bool)

	// Put stores a Disposition for name, evicting the least-recently-used
	// entry in the owning shard if it is at capacity.
	Put(name domain.Name, d domain.Disposition)

	// Len returns the total number of entries across all shards.
	Len() int

	// Purge clears every shard (spec.md §4.8: full purge on SIGHUP refresh).
	Purge()

	// Stats returns cumulative hit/miss/eviction counters.
	Stats() (hits, misses, evictions uint64)
}

// newLRU is a seam for tests to inject shard-construction failures.
var newLRU = lru.NewWithEvict[string, domain.Disposition]

// shard is one independently-locked LRU partition. golang-lru's Cache type
// is already safe for concurrent use; sharding exists purely to relieve
// single-lock contention across shards (spec.md §4.4).
type shard struct {
	lru       *lru.Cache[string, domain.Disposition]
	hits      uint64
	misses    uint64
	evictions uint64
}

// cache fans lookups out across a fixed number of shards selected by an
// FNV-1a hash of the name, so no single mutex serializes the whole cache.
type cache struct {
	shards []*shard
}

// disabledCache is a no-op Cache used when capacity <= 0.
type disabledCache struct{}

// New creates a Cache with the given total capacity spread evenly across
// numShards independent shards. If capacity <= 0, a disabled no-op cache is
// returned that always misses and tracks no metrics. numShards is clamped
// to at least 1.
func New(capacity, numShards int) (Cache, error) {
	if capacity <= 0 {
		return &disabledCache{}, nil
	}
	if numShards < 1 {
		numShards = 1
	}

	perShard := capacity / numShards
	if perShard < 1 {
		perShard = 1
	}

	c := &cache{shards: make([]*shard, numShards)}
	for i := range c.shards {
		s := &shard{}
		l, err := newLRU(perShard, func(_ string, _ domain.Disposition) {
			atomic.AddUint64(&s.evictions, 1)
		})
		if err != nil {
			return nil, err
		}
		s.lru = l
		c.shards[i] = s
	}
	return c, nil
}

func (c *cache) shardFor(name domain.Name) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *cache) Get(name domain.Name) (domain.Disposition, bool) {
	s := c.shardFor(name)
	if val, ok := s.lru.Get(string(name)); ok {
		atomic.AddUint64(&s.hits, 1)
		return val, true
	}
	atomic.AddUint64(&s.misses, 1)
	var zero domain.Disposition
	return zero, false
}

func (c *cache) Put(name domain.Name, d domain.Disposition) {
	s := c.shardFor(name)
	s.lru.Add(string(name), d)
}

func (c *cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.lru.Len()
	}
	return total
}

func (c *cache) Purge() {
	for _, s := range c.shards {
		s.lru.Purge()
	}
}

func (c *cache) Stats() (hits, misses, evictions uint64) {
	for _, s := range c.shards {
		hits += atomic.LoadUint64(&s.hits)
		misses += atomic.LoadUint64(&s.misses)
		evictions += atomic.LoadUint64(&s.evictions)
	}
	return hits, misses, evictions
}

func (d *disabledCache) Get(domain.Name) (domain.Disposition, bool) {
	var zero domain.Disposition
	return zero, false
}

func (d *disabledCache) Put(domain.Name, domain.Disposition) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ Cache = (*cache)(nil)
var _ Cache = (*disabledCache)(nil)
