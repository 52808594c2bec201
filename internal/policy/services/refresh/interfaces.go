package refresh

import (
	"context"
	"time"
)

// Clock is the narrow time source the controller needs to time a rebuild;
// it never calls anything but Now, so it isn't worth importing a shared
// clock abstraction for. RealClock satisfies it; tests supply a fakeClock.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock, backed by time.Now.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// Cache is the LRU Disposition Cache purged on every reload (spec.md §4.8).
type Cache interface {
	Purge()
}

// Store supplies the raw rule data the controller needs to rebuild the
// Bloom Pre-filter and Regex Bucket Engine from scratch.
type Store interface {
	StreamExactKeys(ctx context.Context, fn func(key string) error) error
	LoadRegexPatterns(ctx context.Context) ([]string, error)
}

// BloomFilter is the subset of repos/bloom.Filter the controller swaps into
// its slot after a rebuild.
type BloomFilter interface {
	MightContain(key []byte) bool
	Add(key []byte)
}

// RegexEngine is the subset of repos/regex.Engine the controller swaps into
// its slot after a rebuild.
type RegexEngine interface {
	Matches(name string) bool
}

// Metrics is the narrow counter surface incremented by reload cycles.
type Metrics interface {
	ObserveReload()
	ObserveRebuildError(component string)
}
