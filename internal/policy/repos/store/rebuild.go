package store

import (
	"context"
	"database/sql"
)

// RebuildAll replaces every table's contents in a single write transaction,
// matching the atomic all-sources snapshot semantics of the teacher's
// bolt store RebuildAll (spec.md §3.3, §4.8).
func (g *Gateway) RebuildAll(ctx context.Context, snap Snapshot) error {
	if err := g.ensureReady(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	tx, err := g.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{
		"block_regex", "block_exact", "domain_alias", "block_wildcard",
		"fqdn_dns_allow", "fqdn_dns_block", "ip_rewrite_v4", "ip_rewrite_v6",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	if err := bulkInsert(ctx, tx, "INSERT INTO block_regex (pattern) VALUES (?)", len(snap.BlockRegex), func(i int) []any {
		return []any{snap.BlockRegex[i]}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO block_exact (key) VALUES (?)", len(snap.BlockExact), func(i int) []any {
		return []any{snap.BlockExact[i]}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO domain_alias (key, target) VALUES (?, ?)", len(snap.DomainAlias), func(i int) []any {
		r := snap.DomainAlias[i]
		return []any{string(r.Source), string(r.Target)}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO block_wildcard (key) VALUES (?)", len(snap.BlockWildcard), func(i int) []any {
		return []any{snap.BlockWildcard[i]}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO fqdn_dns_allow (key) VALUES (?)", len(snap.FqdnDnsAllow), func(i int) []any {
		return []any{snap.FqdnDnsAllow[i]}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO fqdn_dns_block (key) VALUES (?)", len(snap.FqdnDnsBlock), func(i int) []any {
		return []any{snap.FqdnDnsBlock[i]}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO ip_rewrite_v4 (key, target) VALUES (?, ?)", len(snap.IPRewriteV4), func(i int) []any {
		r := snap.IPRewriteV4[i]
		return []any{r.Source.String(), r.Target.String()}
	}); err != nil {
		return err
	}
	if err := bulkInsert(ctx, tx, "INSERT INTO ip_rewrite_v6 (key, target) VALUES (?, ?)", len(snap.IPRewriteV6), func(i int) []any {
		r := snap.IPRewriteV6[i]
		return []any{r.Source.String(), r.Target.String()}
	}); err != nil {
		return err
	}

	return tx.Commit()
}

func bulkInsert(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

// Purge clears every table in a single write transaction. Unlike the
// Refresh Controller's reload, which clears only the in-memory caches, it
// empties the store itself; the Refresh Controller does not call it.
func (g *Gateway) Purge(ctx context.Context) error {
	if err := g.ensureReady(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	tx, err := g.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{
		"block_regex", "block_exact", "domain_alias", "block_wildcard",
		"fqdn_dns_allow", "fqdn_dns_block", "ip_rewrite_v4", "ip_rewrite_v6",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}
