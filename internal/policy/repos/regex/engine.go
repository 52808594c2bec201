// Package regex implements the Regex Bucket Engine of spec.md §4.5: a
// compiled pattern set bucketed by extractable literal prefix, suffix, or
// exact value, so a query only scans the small subset of patterns it could
// possibly match instead of the full set.
//
// No multi-pattern matcher (Hyperscan, Aho-Corasick) appears anywhere in the
// example corpus this spec was built from, so per spec.md §9's explicit
// license to substitute engines without changing observable behavior, this
// implementation uses the standard library's regexp (RE2, non-backtracking).
package regex

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Engine is the contract the Policy Pipeline depends on.
type Engine interface {
	// Matches reports whether any loaded pattern matches name.
	Matches(name string) bool

	// Stats reports the bucket layout for observability.
	Stats() Stats
}

// Stats reports how many loaded patterns fell into each bucket.
type Stats struct {
	Prefix    int
	Suffix    int
	Exact     int
	Residual  int
	Skipped   int // compile failures, logged and dropped
	Refused   bool
	Truncated bool // warning threshold crossed (loaded, but past WarnAt)
}

type pattern struct {
	re *regexp.Regexp
}

// engine holds four buckets: prefix/suffix/exact narrow the candidate set;
// residual is scanned on every query since no literal could be extracted.
type engine struct {
	mu sync.RWMutex

	prefix   map[string][]pattern
	suffix   map[string][]pattern
	exact    map[string][]pattern
	residual []pattern

	stats Stats
}

var _ Engine = (*engine)(nil)

// Config bounds how many patterns the engine will load (spec.md §4.5 budget).
type Config struct {
	// HardCap refuses to load and returns always-false if pattern count
	// exceeds this. Default 1_000_000.
	HardCap int
	// WarnAt logs (via the Stats.Truncated flag) once loaded count crosses
	// this. Default 100_000.
	WarnAt int
}

// disabledEngine is returned when HardCap is exceeded: spec.md §4.5 "refuses
// to load and returns always-false".
type disabledEngine struct{}

func (disabledEngine) Matches(string) bool { return false }
func (disabledEngine) Stats() Stats         { return Stats{Refused: true} }

// Build compiles patterns into a bucketed Engine. Compilation failures are
// logged by the caller (each one is returned in the error slice, naming the
// pattern, and counted in Stats.Skipped) and the offending pattern is
// dropped, per spec.md §4.5
// "Lifecycle".
func Build(patterns []string, cfg Config) (Engine, []error) {
	if cfg.HardCap <= 0 {
		cfg.HardCap = 1_000_000
	}
	if cfg.WarnAt <= 0 {
		cfg.WarnAt = 100_000
	}

	if len(patterns) > cfg.HardCap {
		return disabledEngine{}, []error{
			fmt.Errorf("regex: pattern count %d exceeds hard cap %d, refusing to load", len(patterns), cfg.HardCap),
		}
	}

	e := &engine{
		prefix: make(map[string][]pattern),
		suffix: make(map[string][]pattern),
		exact:  make(map[string][]pattern),
	}

	var errs []error
	for _, raw := range patterns {
		// Case-insensitive defensively: names are already lower-cased by the
		// Normalizer, but the compile flag protects against stored patterns
		// that assume otherwise.
		compiled, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("regex: skipping invalid pattern %q: %w", raw, err))
			e.stats.Skipped++
			continue
		}
		p := pattern{re: compiled}

		switch lit, kind := extractLiteral(raw); kind {
		case literalPrefix:
			e.prefix[lit] = append(e.prefix[lit], p)
			e.stats.Prefix++
		case literalSuffix:
			e.suffix[lit] = append(e.suffix[lit], p)
			e.stats.Suffix++
		case literalExact:
			e.exact[lit] = append(e.exact[lit], p)
			e.stats.Exact++
		default:
			e.residual = append(e.residual, p)
			e.stats.Residual++
		}
	}

	loaded := e.stats.Prefix + e.stats.Suffix + e.stats.Exact + e.stats.Residual
	if loaded > cfg.WarnAt {
		e.stats.Truncated = true
		errs = append(errs, fmt.Errorf("regex: loaded pattern count %d exceeds warn threshold %d", loaded, cfg.WarnAt))
	}

	return e, errs
}

func (e *engine) Matches(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ps, ok := e.exact[name]; ok {
		for _, p := range ps {
			if p.re.MatchString(name) {
				return true
			}
		}
	}
	for lit, ps := range e.prefix {
		if strings.HasPrefix(name, lit) {
			for _, p := range ps {
				if p.re.MatchString(name) {
					return true
				}
			}
		}
	}
	for lit, ps := range e.suffix {
		if strings.HasSuffix(name, lit) {
			for _, p := range ps {
				if p.re.MatchString(name) {
					return true
				}
			}
		}
	}
	for _, p := range e.residual {
		if p.re.MatchString(name) {
			return true
		}
	}
	return false
}

func (e *engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
