package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// Store is the contract the Policy Pipeline, Regex Bucket Engine loader, and
// Refresh Controller depend on. All read methods degrade to (zero, false,
// nil) — never a synthesized positive — when the Gateway is degraded (the
// write methods RebuildAll and Purge return an error instead), matching
// spec.md §4.2 "Failure semantics": a stale or absent store must never
// fabricate a block.
type Store interface {
	// ProbeExact reports whether name is present in block_exact.
	ProbeExact(ctx context.Context, name domain.Name) (bool, error)

	// LookupAlias returns the domain_alias target for the longest key
	// wildcard-matching name (spec.md §4.6.2 step 4, I4/I5).
	LookupAlias(ctx context.Context, name domain.Name) (target domain.Name, matchedKey string, ok bool, err error)

	// LookupWildcard performs a wildcard-style lookup (I4) against one of
	// block_wildcard, fqdn_dns_allow, or fqdn_dns_block.
	LookupWildcard(ctx context.Context, table domain.TableId, name domain.Name) (matchedKey string, ok bool, err error)

	// LookupRewriteV4 / LookupRewriteV6 perform exact lookups against the
	// post-resolution IP rewrite tables (spec.md §4.7).
	LookupRewriteV4(ctx context.Context, addr string) (target string, ok bool, err error)
	LookupRewriteV6(ctx context.Context, addr string) (target string, ok bool, err error)

	// LoadRegexPatterns performs a full scan of block_regex for building the
	// Regex Bucket Engine. cmd/policyengined calls it once at startup and the
	// Refresh Controller again on every reload; it is not deferred to the
	// first query that reaches the regex stage.
	LoadRegexPatterns(ctx context.Context) ([]string, error)

	// StreamExactKeys streams every key in block_exact to fn, used to
	// (re)populate the Bloom Pre-filter without materializing the whole
	// key set in memory.
	StreamExactKeys(ctx context.Context, fn func(key string) error) error

	// RebuildAll atomically replaces every table's contents with snapshot.
	RebuildAll(ctx context.Context, snapshot Snapshot) error

	// Purge clears every table.
	Purge(ctx context.Context) error

	// Stats returns cheap row counts per table.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Snapshot is the complete, all-sources rule set applied atomically by
// RebuildAll (spec.md §3.3: "Writes to the store occur exclusively through
// external tooling").
type Snapshot struct {
	BlockRegex    []string
	BlockExact    []string
	DomainAlias   []domain.AliasRule
	BlockWildcard []string
	FqdnDnsAllow  []string
	FqdnDnsBlock  []string
	IPRewriteV4   []domain.IPRewriteRule
	IPRewriteV6   []domain.IPRewriteRule
}

// Stats reports cheap per-table row counts for the observability surface
// (spec.md §6).
type Stats struct {
	BlockRegexCount    uint64
	BlockExactCount    uint64
	DomainAliasCount   uint64
	BlockWildcardCount uint64
	FqdnDnsAllowCount  uint64
	FqdnDnsBlockCount  uint64
	IPRewriteV4Count   uint64
	IPRewriteV6Count   uint64
}

// preparedStmts holds one statement per query shape named in spec.md §4.2,
// prepared once per pooled connection at Open time.
type preparedStmts struct {
	probeExact      *sql.Stmt
	lookupAlias     *sql.Stmt
	lookupWildcard  map[string]*sql.Stmt // table name -> stmt
	lookupRewriteV4 *sql.Stmt
	lookupRewriteV6 *sql.Stmt
}

func prepareAll(db *sql.DB) (preparedStmts, error) {
	var s preparedStmts
	var err error

	if s.probeExact, err = db.Prepare(`SELECT 1 FROM block_exact WHERE key = ? LIMIT 1`); err != nil {
		return s, err
	}
	// Wildcard-style match per I4/I5: key == name OR name ends with "."+key;
	// most-specific (longest) key wins, matching the block_wildcard shape
	// spec.md §4.2 gives and this spec's Open Question decision (DESIGN.md)
	// to apply the same shape to domain_alias.
	if s.lookupAlias, err = db.Prepare(
		`SELECT key, target FROM domain_alias WHERE key = ? OR ? LIKE '%.' || key ORDER BY length(key) DESC LIMIT 1`,
	); err != nil {
		return s, err
	}
	s.lookupWildcard = make(map[string]*sql.Stmt, 3)
	for _, table := range []string{"block_wildcard", "fqdn_dns_allow", "fqdn_dns_block"} {
		stmt, err := db.Prepare(fmt.Sprintf(
			`SELECT key FROM %s WHERE key = ? OR ? LIKE '%%.' || key ORDER BY length(key) DESC LIMIT 1`, table,
		))
		if err != nil {
			return s, err
		}
		s.lookupWildcard[table] = stmt
	}
	if s.lookupRewriteV4, err = db.Prepare(`SELECT target FROM ip_rewrite_v4 WHERE key = ?`); err != nil {
		return s, err
	}
	if s.lookupRewriteV6, err = db.Prepare(`SELECT target FROM ip_rewrite_v6 WHERE key = ?`); err != nil {
		return s, err
	}
	return s, nil
}

func (g *Gateway) ProbeExact(ctx context.Context, name domain.Name) (bool, error) {
	if err := g.ensureReady(); err != nil {
		return false, nil
	}
	c := g.connFor()
	var one int
	err := c.stmts.probeExact.QueryRowContext(ctx, string(name)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gateway) LookupAlias(ctx context.Context, name domain.Name) (domain.Name, string, bool, error) {
	if err := g.ensureReady(); err != nil {
		return "", "", false, nil
	}
	c := g.connFor()
	var key, target string
	n := string(name)
	err := c.stmts.lookupAlias.QueryRowContext(ctx, n, n).Scan(&key, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return domain.Name(target), key, true, nil
}

func (g *Gateway) LookupWildcard(ctx context.Context, table domain.TableId, name domain.Name) (string, bool, error) {
	if err := g.ensureReady(); err != nil {
		return "", false, nil
	}
	tableName := wildcardTableName(table)
	if tableName == "" {
		return "", false, fmt.Errorf("store: %s is not a wildcard-style table", table)
	}
	c := g.connFor()
	stmt := c.stmts.lookupWildcard[tableName]
	var key string
	n := string(name)
	err := stmt.QueryRowContext(ctx, n, n).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (g *Gateway) LookupRewriteV4(ctx context.Context, addr string) (string, bool, error) {
	return g.lookupRewrite(ctx, addr, true)
}

func (g *Gateway) LookupRewriteV6(ctx context.Context, addr string) (string, bool, error) {
	return g.lookupRewrite(ctx, addr, false)
}

func (g *Gateway) lookupRewrite(ctx context.Context, addr string, v4 bool) (string, bool, error) {
	if err := g.ensureReady(); err != nil {
		return "", false, nil
	}
	c := g.connFor()
	stmt := c.stmts.lookupRewriteV6
	if v4 {
		stmt = c.stmts.lookupRewriteV4
	}
	var target string
	err := stmt.QueryRowContext(ctx, addr).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return target, true, nil
}

func (g *Gateway) LoadRegexPatterns(ctx context.Context) ([]string, error) {
	if err := g.ensureReady(); err != nil {
		return nil, nil
	}
	c := g.connFor()
	rows, err := c.db.QueryContext(ctx, `SELECT pattern FROM block_regex`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (g *Gateway) StreamExactKeys(ctx context.Context, fn func(key string) error) error {
	if err := g.ensureReady(); err != nil {
		return nil
	}
	c := g.connFor()
	rows, err := c.db.QueryContext(ctx, `SELECT key FROM block_exact`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := g.ensureReady(); err != nil {
		return out, nil
	}
	c := g.connFor()
	counts := []struct {
		table string
		dst   *uint64
	}{
		{"block_regex", &out.BlockRegexCount},
		{"block_exact", &out.BlockExactCount},
		{"domain_alias", &out.DomainAliasCount},
		{"block_wildcard", &out.BlockWildcardCount},
		{"fqdn_dns_allow", &out.FqdnDnsAllowCount},
		{"fqdn_dns_block", &out.FqdnDnsBlockCount},
		{"ip_rewrite_v4", &out.IPRewriteV4Count},
		{"ip_rewrite_v6", &out.IPRewriteV6Count},
	}
	for _, c2 := range counts {
		row := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, c2.table))
		if err := row.Scan(c2.dst); err != nil {
			return out, err
		}
	}
	return out, nil
}
