// Package pipeline implements the Policy Pipeline of spec.md §4.6: the
// single entry point from the DNS front-end that classifies a normalized
// query name into a Disposition by walking the priority chain of §4.6.2.
package pipeline

import (
	"context"

	"github.com/kestrel-dns/policyengine/internal/policy/common/log"
	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

var logger = log.Component("pipeline")

// Pipeline orchestrates the lookup priority chain. All dependencies are
// injected (no process-wide singletons), so multiple independent Pipelines
// can coexist in the same process (spec.md §9).
type Pipeline struct {
	lru     Cache
	bloom   Bloom
	regex   RegexEngine
	store   Store
	metrics Metrics

	maxAliasDepth uint8

	// regexReady/bloomReady gate the corresponding stages off during a
	// Refresh Controller rebuild (spec.md §4.6.5, §4.8): "Regex engine
	// unavailable → skip step 2" / "Bloom unavailable → skip pre-filter".
	regexReady func() bool
	bloomReady func() bool
}

// Options configures a new Pipeline.
type Options struct {
	LRU   Cache
	Bloom Bloom
	Regex RegexEngine
	Store Store

	Metrics Metrics

	// MaxAliasDepth bounds ALIAS re-entry (spec.md §4.6.3). Default 4.
	MaxAliasDepth uint8

	// RegexReady/BloomReady report whether the corresponding stage is
	// currently usable; nil means "always ready". The Refresh Controller
	// flips these during a rebuild.
	RegexReady func() bool
	BloomReady func() bool
}

// New constructs a Pipeline. Bloom, Regex, and Store may be nil, in which
// case their stage is always skipped (spec.md §4.6.5's failure-handling
// semantics, generalized to "never configured" as well as "unavailable").
func New(opts Options) *Pipeline {
	depth := opts.MaxAliasDepth
	if depth == 0 {
		depth = 4
	}
	p := &Pipeline{
		lru:           opts.LRU,
		bloom:         opts.Bloom,
		regex:         opts.Regex,
		store:         opts.Store,
		metrics:       opts.Metrics,
		maxAliasDepth: depth,
		regexReady:    opts.RegexReady,
		bloomReady:    opts.BloomReady,
	}
	if p.regexReady == nil {
		p.regexReady = func() bool { return true }
	}
	if p.bloomReady == nil {
		p.bloomReady = func() bool { return true }
	}
	return p
}

// Classify implements spec.md §4.6.1's contract: classify(name, alias_depth)
// -> Disposition, walking the priority chain of §4.6.2.
func (p *Pipeline) Classify(ctx context.Context, name domain.Name, aliasDepth uint8) domain.Disposition {
	// Step 1: LRU cache.
	if p.lru != nil {
		if d, ok := p.lru.Get(name); ok {
			p.observeLRU(true)
			return d
		}
		p.observeLRU(false)
	}

	d, cacheable := p.classifyUncached(ctx, name, aliasDepth)

	// §4.6.4 Writeback: every level of an alias chain caches its own result
	// under the name it classified — a recursive call under the expanded
	// name, the outermost call under the original query name. The one result
	// not cached is a store-probe-error passthrough returned by
	// classifyUncached for this name (§4.6.5: "Store probe error ->
	// PASSTHROUGH, not cached").
	if p.lru != nil && cacheable {
		p.lru.Put(name, d)
	}
	return d
}

// classifyUncached runs steps 2-8 of §4.6.2 without consulting or writing
// the LRU; Classify wraps this with the cache lookup/writeback. The second
// return value is false only for the store-probe-error passthrough path,
// which must never be cached (spec.md §4.6.5).
func (p *Pipeline) classifyUncached(ctx context.Context, name domain.Name, aliasDepth uint8) (domain.Disposition, bool) {
	// Step 2: block_regex via the Regex Bucket Engine.
	if p.regex != nil && p.regexReady() {
		if p.regex.Matches(string(name)) {
			p.observeStage(domain.TableBlockRegex)
			return domain.Disposition{Kind: domain.Terminate, MatchedRule: domain.TableBlockRegex, MatchedValue: string(name)}, true
		}
	}

	// Step 3: block_exact via Bloom pre-filter, then store probe on positive.
	if p.store != nil {
		probeExact := true
		if p.bloom != nil && p.bloomReady() {
			if !p.bloom.MightContain([]byte(name)) {
				probeExact = false
			} else {
				p.observeBloomPositive()
			}
		}
		if probeExact {
			found, err := p.store.ProbeExact(ctx, name)
			if err != nil {
				p.observeStoreError()
				logger.Error(map[string]any{"name": string(name), "stage": "block_exact"}, "store probe error, degrading to passthrough")
				return domain.PassthroughDisposition(), false
			}
			if found {
				p.observeStage(domain.TableBlockExact)
				return domain.Disposition{Kind: domain.Terminate, MatchedRule: domain.TableBlockExact, MatchedValue: string(name)}, true
			}
		}
	}

	// Step 4: domain_alias — wildcard-style match, re-entrant expansion.
	if p.store != nil {
		target, matchedKey, ok, err := p.store.LookupAlias(ctx, name)
		if err != nil {
			p.observeStoreError()
			logger.Error(map[string]any{"name": string(name), "stage": "domain_alias"}, "store probe error, degrading to passthrough")
			return domain.PassthroughDisposition(), false
		}
		if ok {
			return p.expandAlias(ctx, name, domain.Name(matchedKey), target, aliasDepth), true
		}
	}

	// Steps 5-7: block_wildcard, fqdn_dns_allow, fqdn_dns_block.
	if p.store != nil {
		for _, step := range []struct {
			table domain.TableId
			kind  domain.DispositionKind
		}{
			{domain.TableBlockWildcard, domain.DnsBlock},
			{domain.TableFqdnDnsAllow, domain.DnsAllow},
			{domain.TableFqdnDnsBlock, domain.DnsBlock},
		} {
			matchedKey, ok, err := p.store.LookupWildcard(ctx, step.table, name)
			if err != nil {
				p.observeStoreError()
				logger.Error(map[string]any{"name": string(name), "stage": step.table.String()}, "store probe error, degrading to passthrough")
				return domain.PassthroughDisposition(), false
			}
			if ok {
				p.observeStage(step.table)
				return domain.Disposition{Kind: step.kind, MatchedRule: step.table, MatchedValue: matchedKey}, true
			}
		}
	}

	// Step 8: PASSTHROUGH.
	return domain.PassthroughDisposition(), true
}

// expandAlias implements spec.md §4.6.3: subdomain-preserving expansion and
// depth-bounded re-entry into Classify.
func (p *Pipeline) expandAlias(ctx context.Context, name, matchedKey, target domain.Name, aliasDepth uint8) domain.Disposition {
	if aliasDepth >= p.maxAliasDepth {
		p.observeAliasTruncation()
		logger.Warn(map[string]any{"name": string(name), "alias_depth": aliasDepth}, "alias expansion truncated at max depth")
		return domain.PassthroughDisposition()
	}

	expanded := domain.ExpandAlias(name, matchedKey, target)
	p.observeAliasExpansion()

	result := p.Classify(ctx, expanded, aliasDepth+1)
	result.AliasTarget = expanded
	return result
}

func (p *Pipeline) observeStage(table domain.TableId) {
	if p.metrics != nil {
		p.metrics.ObserveStageHit(table)
	}
}

func (p *Pipeline) observeLRU(hit bool) {
	if p.metrics != nil {
		p.metrics.ObserveLRU(hit)
	}
}

func (p *Pipeline) observeBloomPositive() {
	if p.metrics != nil {
		p.metrics.ObserveBloomPositive()
	}
}

func (p *Pipeline) observeAliasExpansion() {
	if p.metrics != nil {
		p.metrics.ObserveAliasExpansion()
	}
}

func (p *Pipeline) observeAliasTruncation() {
	if p.metrics != nil {
		p.metrics.ObserveAliasTruncation()
	}
}

func (p *Pipeline) observeStoreError() {
	if p.metrics != nil {
		p.metrics.ObserveStoreError()
	}
}
