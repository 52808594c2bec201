package lru

import (
	"strconv"
	"testing"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// Benchmark cache hit performance (Get on existing key).
func BenchmarkCache_PositiveHit(b *testing.B) {
	c, err := New(1024, 16)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	key := domain.Name("example.com")
	c.Put(key, domain.Disposition{Kind: domain.DnsBlock, MatchedValue: string(key)})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := c.Get(key); !ok {
			b.Fatalf("unexpected miss for key %q", key)
		}
	}
}

// Benchmark cache miss performance (Get on absent key).
func BenchmarkCache_NegativeMiss(b *testing.B) {
	c, err := New(1024, 16)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	key := domain.Name("absent.example")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := c.Get(key); ok {
			b.Fatalf("unexpected hit for key %q", key)
		}
	}
}

// Validate LRU behavior under pressure: least recently used entries should
// be evicted, scoped to a single shard so capacity pressure is guaranteed.
func BenchmarkCache_LRUEviction(b *testing.B) {
	const cap = 3
	mkDisposition := func(k string) domain.Disposition {
		return domain.Disposition{Kind: domain.DnsBlock, MatchedValue: k}
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c, err := New(cap, 1)
		if err != nil {
			b.Fatalf("New: %v", err)
		}
		c.Put("A", mkDisposition("A"))
		c.Put("B", mkDisposition("B"))
		c.Put("C", mkDisposition("C"))
		if _, ok := c.Get("A"); !ok {
			b.Fatalf("miss on A")
		}
		if _, ok := c.Get("B"); !ok {
			b.Fatalf("miss on B")
		}
		c.Put("D", mkDisposition("D"))

		if _, ok := c.Get("C"); ok {
			b.Fatalf("expected C to be evicted")
		}
		if _, ok := c.Get("A"); !ok {
			b.Fatalf("A should be present")
		}
		if _, ok := c.Get("B"); !ok {
			b.Fatalf("B should be present")
		}
		if _, ok := c.Get("D"); !ok {
			b.Fatalf("D should be present")
		}
	}
}

// Throughput for mixed workload (80% hits, 20% misses).
func BenchmarkCache_MixedHitRatio(b *testing.B) {
	c, err := New(10_000, 16)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	for i := 0; i < 8_000; i++ {
		k := domain.Name("k" + strconv.Itoa(i))
		c.Put(k, domain.Disposition{Kind: domain.DnsBlock, MatchedValue: string(k)})
	}
	hitKey := func(i int) domain.Name { return domain.Name("k" + strconv.Itoa(i%8_000)) }
	missKey := func(i int) domain.Name { return domain.Name("m" + strconv.Itoa(i)) }

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%5 == 0 {
			_, _ = c.Get(missKey(i))
		} else {
			_, _ = c.Get(hitKey(i))
		}
	}
}
