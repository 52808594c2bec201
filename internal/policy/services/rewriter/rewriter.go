// Package rewriter implements the Post-resolution IP Rewriter of spec.md
// §4.7: a single exact-match substitution of upstream-resolved A/AAAA
// addresses, applied after resolution for PASSTHROUGH, DNS_ALLOW, and
// DNS_BLOCK answers. Never applied to TERMINATE, whose answers are
// synthesized by the front-end rather than resolved upstream; that gating
// is the caller's responsibility, not the rewriter's.
package rewriter

import (
	"context"
	"net"

	"github.com/kestrel-dns/policyengine/internal/policy/common/log"
)

var logger = log.Component("rewriter")

// Rewriter performs the single-hop, uncached address substitution.
type Rewriter struct {
	store   Store
	metrics Metrics
}

// Options configures a new Rewriter.
type Options struct {
	Store   Store
	Metrics Metrics
}

// New constructs a Rewriter. Store may be nil, in which case Rewrite is a
// no-op passthrough.
func New(opts Options) *Rewriter {
	return &Rewriter{store: opts.Store, metrics: opts.Metrics}
}

// Rewrite maps a single resolved address through ip_rewrite_v4/ip_rewrite_v6.
// No chaining: the result of a successful rewrite is never looked up again.
// On a miss, a disabled store, or a store error it returns addr unchanged —
// per spec.md §4.6.5's failure philosophy, a rewrite-table outage degrades
// to "forward the original answer" rather than failing the query.
func (r *Rewriter) Rewrite(ctx context.Context, addr net.IP) net.IP {
	if r.store == nil || addr == nil {
		return addr
	}

	if v4 := addr.To4(); v4 != nil {
		target, ok, err := r.store.LookupRewriteV4(ctx, v4.String())
		return r.resolve(addr, target, ok, err, false)
	}

	target, ok, err := r.store.LookupRewriteV6(ctx, addr.String())
	return r.resolve(addr, target, ok, err, true)
}

func (r *Rewriter) resolve(original net.IP, target string, ok bool, err error, v6 bool) net.IP {
	if err != nil {
		r.observeStoreError()
		logger.Error(map[string]any{"addr": original.String(), "v6": v6}, "ip rewrite probe error, leaving address unchanged")
		return original
	}
	if !ok {
		r.observeRewrite(v6, false)
		return original
	}
	rewritten := net.ParseIP(target)
	if rewritten == nil {
		logger.Warn(map[string]any{"addr": original.String(), "target": target}, "ip rewrite target failed to parse, leaving address unchanged")
		return original
	}
	r.observeRewrite(v6, true)
	return rewritten
}

func (r *Rewriter) observeRewrite(v6, rewritten bool) {
	if r.metrics != nil {
		r.metrics.ObserveRewrite(v6, rewritten)
	}
}

func (r *Rewriter) observeStoreError() {
	if r.metrics != nil {
		r.metrics.ObserveStoreError()
	}
}
