package pipeline

import (
	"context"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// Cache is the LRU Disposition Cache dependency (spec.md §4.4).
type Cache interface {
	Get(name domain.Name) (domain.Disposition, bool)
	Put(name domain.Name, d domain.Disposition)
}

// Bloom is the Bloom Pre-filter dependency (spec.md §4.3). Pipeline only
// needs the read side; rebuilds happen out-of-band via the Refresh
// Controller.
type Bloom interface {
	MightContain(key []byte) bool
}

// RegexEngine is the Regex Bucket Engine dependency (spec.md §4.5).
type RegexEngine interface {
	Matches(name string) bool
}

// Store is the subset of the Persistent Store Gateway the Pipeline queries
// on the hot path (spec.md §4.2, §4.6.2).
type Store interface {
	ProbeExact(ctx context.Context, name domain.Name) (bool, error)
	LookupAlias(ctx context.Context, name domain.Name) (target domain.Name, matchedKey string, ok bool, err error)
	LookupWildcard(ctx context.Context, table domain.TableId, name domain.Name) (matchedKey string, ok bool, err error)
}

// Metrics is the narrow counter surface the Pipeline increments on every
// classification (spec.md §4.8, §6 observability).
type Metrics interface {
	ObserveStageHit(table domain.TableId)
	ObserveLRU(hit bool)
	ObserveBloomPositive()
	ObserveAliasExpansion()
	ObserveAliasTruncation()
	ObserveStoreError()
}
