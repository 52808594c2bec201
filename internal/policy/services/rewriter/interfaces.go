package rewriter

import "context"

// Store is the subset of the Persistent Store Gateway the rewriter queries
// (spec.md §4.7).
type Store interface {
	LookupRewriteV4(ctx context.Context, addr string) (target string, ok bool, err error)
	LookupRewriteV6(ctx context.Context, addr string) (target string, ok bool, err error)
}

// Metrics is the narrow counter surface incremented on every rewrite
// attempt (spec.md §6).
type Metrics interface {
	ObserveRewrite(v6 bool, rewritten bool)
	ObserveStoreError()
}
