// Package store implements the Persistent Store Gateway of spec.md §4.2: a
// pool of goroutine-sticky, read-mostly connections over a single sqlite
// file holding every rule table from spec.md §3.1.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no CGO

	"github.com/kestrel-dns/policyengine/internal/policy/infra/gid"
)

// Config configures Open.
type Config struct {
	// Path to the sqlite database file.
	Path string

	// PoolSize is P, the number of pooled read connections (default 32).
	PoolSize int

	// PageCacheBytes is C, the shared page cache size in bytes (default 40 GiB).
	PageCacheBytes int64
}

// conn bundles one pooled *sql.DB with its prepared statement set. Every
// pooled connection has SetMaxOpenConns(1): it is effectively one physical
// connection, so its prepared statements never race across goroutines that
// share it (database/sql serializes use of a single underlying connection).
type conn struct {
	db    *sql.DB
	stmts preparedStmts
}

// Gateway is the concrete Store implementation.
type Gateway struct {
	pool []*conn
	// write serializes RebuildAll/Purge against sqlite's single-writer model.
	write   *sql.DB
	writeMu sync.Mutex

	degraded bool // true once Open's probe or schema step failed
}

var _ Store = (*Gateway)(nil)

// openDBFn is a seam for tests to inject sql.Open failures.
var openDBFn = sql.Open

// Open opens (or creates) the sqlite file at cfg.Path, applies the pragmas
// of spec.md §4.2, creates the schema if absent, and builds a pool of
// cfg.PoolSize read connections plus one dedicated write connection.
//
// If opening or probing fails, Open still returns a non-nil *Gateway marked
// degraded: every query method then returns (zero, false, nil), which the
// Policy Pipeline treats as PASSTHROUGH (spec.md §4.2 "Failure semantics").
func Open(cfg Config) (*Gateway, error) {
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}

	dsn := dsnFor(cfg.Path, cfg.PageCacheBytes)

	g := &Gateway{}

	write, err := openDBFn("sqlite", dsn)
	if err != nil {
		g.degraded = true
		return g, fmt.Errorf("store: open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	if err := applyPragmas(write); err != nil {
		g.degraded = true
		return g, fmt.Errorf("store: apply pragmas: %w", err)
	}
	if err := createSchema(write); err != nil {
		g.degraded = true
		return g, fmt.Errorf("store: create schema: %w", err)
	}
	g.write = write

	pool := make([]*conn, poolSize)
	for i := 0; i < poolSize; i++ {
		db, err := openDBFn("sqlite", dsn)
		if err != nil {
			g.degraded = true
			return g, fmt.Errorf("store: open pooled connection %d: %w", i, err)
		}
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			g.degraded = true
			return g, fmt.Errorf("store: apply pragmas on pooled connection %d: %w", i, err)
		}
		stmts, err := prepareAll(db)
		if err != nil {
			g.degraded = true
			return g, fmt.Errorf("store: prepare statements on pooled connection %d: %w", i, err)
		}
		pool[i] = &conn{db: db, stmts: stmts}
	}
	g.pool = pool

	return g, nil
}

// dsnFor builds the sqlite DSN with pragmas applied through query params,
// sharing the page cache across pooled connections via cache=shared
// (jroosing-HydraDNS/internal/database/db.go uses the same DSN-pragma
// style, minus the shared cache and larger pragma set this Gateway adds).
func dsnFor(path string, pageCacheBytes int64) string {
	cacheKiB := -(pageCacheBytes / 1024) // negative = KiB, per sqlite PRAGMA cache_size
	return fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)&_pragma=cache_size(%d)", path, cacheKiB)
}

// applyPragmas applies the remaining pragmas spec.md §4.2 lists in order;
// busy_timeout and cache_size are already set via the DSN above since they
// must apply before the first statement executes on some drivers.
func applyPragmas(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA wal_autocheckpoint=1000",
		"PRAGMA automatic_index=OFF",
		"PRAGMA page_size=4096",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// connFor returns the goroutine-sticky pooled connection, per spec.md
// §4.2/§9: index = gid.Current() % P.
func (g *Gateway) connFor() *conn {
	idx := gid.Current() % uint64(len(g.pool))
	return g.pool[idx]
}

func (g *Gateway) Close() error {
	var firstErr error
	for _, c := range g.pool {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.write != nil {
		if err := g.write.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Degraded reports whether Open failed to stand up the store; callers
// should treat every query as a miss (PASSTHROUGH) in that case.
func (g *Gateway) Degraded() bool { return g.degraded }

// ensureReady returns an error that callers translate to PASSTHROUGH when
// the gateway has no usable connections.
func (g *Gateway) ensureReady() error {
	if g.degraded || len(g.pool) == 0 {
		return fmt.Errorf("store: degraded, no usable connections")
	}
	return nil
}
