package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// fakeStore is an in-memory Store double driven entirely by maps, letting
// each test set up exactly the rule tables spec.md §8.2's scenarios need.
type fakeStore struct {
	exact     map[string]bool
	aliases   map[string]string // source -> target
	wildcards map[domain.TableId]map[string]bool
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		exact:   map[string]bool{},
		aliases: map[string]string{},
		wildcards: map[domain.TableId]map[string]bool{
			domain.TableBlockWildcard: {},
			domain.TableFqdnDnsAllow:  {},
			domain.TableFqdnDnsBlock:  {},
		},
	}
}

func (f *fakeStore) ProbeExact(_ context.Context, name domain.Name) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.exact[string(name)], nil
}

func (f *fakeStore) LookupAlias(_ context.Context, name domain.Name) (domain.Name, string, bool, error) {
	if f.err != nil {
		return "", "", false, f.err
	}
	// wildcard-style: longest matching key wins.
	var bestKey string
	for key := range f.aliases {
		if domain.IsWildcardMatch(name, domain.Name(key)) && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", "", false, nil
	}
	return domain.Name(f.aliases[bestKey]), bestKey, true, nil
}

func (f *fakeStore) LookupWildcard(_ context.Context, table domain.TableId, name domain.Name) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	var bestKey string
	for key := range f.wildcards[table] {
		if domain.IsWildcardMatch(name, domain.Name(key)) && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", false, nil
	}
	return bestKey, true, nil
}

type fakeCache struct {
	m map[domain.Name]domain.Disposition
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[domain.Name]domain.Disposition{}} }

func (c *fakeCache) Get(name domain.Name) (domain.Disposition, bool) {
	d, ok := c.m[name]
	return d, ok
}
func (c *fakeCache) Put(name domain.Name, d domain.Disposition) { c.m[name] = d }

func TestClassify_Scenario1_ExactDoesNotImplyWildcard(t *testing.T) {
	s := newFakeStore()
	s.exact["ads.example.com"] = true
	p := New(Options{Store: s, LRU: newFakeCache()})

	d := p.Classify(context.Background(), "ads.example.com", 0)
	if d.Kind != domain.Terminate || d.MatchedRule != domain.TableBlockExact {
		t.Fatalf("unexpected disposition: %+v", d)
	}

	d = p.Classify(context.Background(), "sub.ads.example.com", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected PASSTHROUGH for sub.ads.example.com, got %+v", d)
	}
}

func TestClassify_Scenario2_WildcardBlock(t *testing.T) {
	s := newFakeStore()
	s.wildcards[domain.TableBlockWildcard]["telemetry.microsoft.com"] = true
	p := New(Options{Store: s, LRU: newFakeCache()})

	for _, name := range []domain.Name{"telemetry.microsoft.com", "v10.telemetry.microsoft.com"} {
		d := p.Classify(context.Background(), name, 0)
		if d.Kind != domain.DnsBlock {
			t.Fatalf("expected DNS_BLOCK for %s, got %+v", name, d)
		}
	}

	d := p.Classify(context.Background(), "telemetrymicrosoft.com", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected PASSTHROUGH for telemetrymicrosoft.com, got %+v", d)
	}
}

func TestClassify_Scenario3_AliasExpansion(t *testing.T) {
	s := newFakeStore()
	s.aliases["intel.com"] = "keweon.center"
	p := New(Options{Store: s, LRU: newFakeCache()})

	d := p.Classify(context.Background(), "www.intel.com", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected final kind PASSTHROUGH, got %+v", d)
	}
	if d.AliasTarget != "www.keweon.center" {
		t.Fatalf("expected alias_target=www.keweon.center, got %q", d.AliasTarget)
	}
}

func TestClassify_Scenario4_AliasCycleTruncation(t *testing.T) {
	s := newFakeStore()
	s.aliases["a.com"] = "b.com"
	s.aliases["b.com"] = "a.com"
	cache := newFakeCache()
	p := New(Options{Store: s, LRU: cache, MaxAliasDepth: 4})

	d := p.Classify(context.Background(), "x.a.com", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected PASSTHROUGH after cycle truncation, got %+v", d)
	}
	if _, ok := cache.Get("x.a.com"); !ok {
		t.Fatalf("expected truncated result cached under original query name")
	}
}

func TestClassify_Scenario5_RegexBlock(t *testing.T) {
	re := &fakeRegex{pattern: "ads7.example.com"}
	p := New(Options{Regex: re, LRU: newFakeCache()})

	d := p.Classify(context.Background(), "ads7.example.com", 0)
	if d.Kind != domain.Terminate || d.MatchedRule != domain.TableBlockRegex {
		t.Fatalf("expected TERMINATE via block_regex, got %+v", d)
	}

	d = p.Classify(context.Background(), "ads.example.com", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected PASSTHROUGH, got %+v", d)
	}
}

func TestClassify_Scenario6_ExactBeatsAllow(t *testing.T) {
	s := newFakeStore()
	s.exact["evil.test"] = true
	s.wildcards[domain.TableFqdnDnsAllow]["evil.test"] = true
	p := New(Options{Store: s, LRU: newFakeCache()})

	d := p.Classify(context.Background(), "evil.test", 0)
	if d.Kind != domain.Terminate || d.MatchedRule != domain.TableBlockExact {
		t.Fatalf("expected block_exact to win over fqdn_dns_allow, got %+v", d)
	}
}

func TestClassify_LRUCacheHit(t *testing.T) {
	cache := newFakeCache()
	cache.Put("cached.example", domain.Disposition{Kind: domain.DnsBlock, MatchedValue: "precomputed"})
	p := New(Options{LRU: cache})

	d := p.Classify(context.Background(), "cached.example", 0)
	if d.Kind != domain.DnsBlock || d.MatchedValue != "precomputed" {
		t.Fatalf("expected cached disposition returned verbatim, got %+v", d)
	}
}

func TestClassify_StoreErrorDegradesToPassthroughUncached(t *testing.T) {
	s := newFakeStore()
	s.err = errors.New("simulated store failure")
	cache := newFakeCache()
	p := New(Options{Store: s, LRU: cache})

	d := p.Classify(context.Background(), "anything.example", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected PASSTHROUGH on store error, got %+v", d)
	}
	// spec.md §4.6.5: "Store probe error -> PASSTHROUGH, not cached."
	if _, ok := cache.Get("anything.example"); ok {
		t.Fatalf("expected store-probe-error passthrough NOT to be cached")
	}
}

func TestClassify_BloomSkipsStoreProbeOnNegative(t *testing.T) {
	s := newFakeStore()
	probed := false
	s.exact["block.example"] = true
	bloom := &fakeBloom{contains: func(key []byte) bool {
		return string(key) == "other.example" // never matches block.example
	}}
	wrapped := &probeTrackingStore{fakeStore: s, onProbe: func() { probed = true }}
	p := New(Options{Store: wrapped, Bloom: bloom, LRU: newFakeCache()})

	d := p.Classify(context.Background(), "block.example", 0)
	if d.Kind != domain.Passthrough {
		t.Fatalf("expected passthrough since bloom reported negative, got %+v", d)
	}
	if probed {
		t.Fatalf("expected store probe to be skipped on bloom negative")
	}
}

type probeTrackingStore struct {
	*fakeStore
	onProbe func()
}

func (p *probeTrackingStore) ProbeExact(ctx context.Context, name domain.Name) (bool, error) {
	p.onProbe()
	return p.fakeStore.ProbeExact(ctx, name)
}

type fakeBloom struct {
	contains func(key []byte) bool
}

func (f *fakeBloom) MightContain(key []byte) bool { return f.contains(key) }

type fakeRegex struct {
	pattern string
}

func (f *fakeRegex) Matches(name string) bool { return name == f.pattern }
