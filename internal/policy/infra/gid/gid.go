// Package gid derives a small, stable per-goroutine identifier so the
// store gateway's connection pool can assign sticky connections with no
// lock on the acquire path (spec.md §4.2, §9: "thread-local sticky").
//
// Go does not expose a public goroutine id, so the id is parsed from the
// header line of runtime.Stack's output on every call. The value is stable
// for the lifetime of the goroutine, which is what makes the assignment
// sticky.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var cache sync.Map // map[uint64]uint64, self-keyed; written by Current, never read

// Current returns a stable identifier for the calling goroutine. Every call
// reads and parses runtime.Stack (one small buffer allocation, cheap
// relative to a store probe) and records the id in cache; the cache is not
// consulted, so repeat calls do not skip the parse.
func Current() uint64 {
	id := parse()
	cache.Store(id, id)
	return id
}

// parse extracts the numeric goroutine id from the header line of
// runtime.Stack's output: "goroutine 123 [running]:".
func parse() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		// Should not happen given runtime's documented format; fall back to
		// a stable-enough value so the pool degrades to a single connection
		// rather than panicking on the query hot path.
		return 0
	}
	return id
}
