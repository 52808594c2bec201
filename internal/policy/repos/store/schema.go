package store

import "github.com/kestrel-dns/policyengine/internal/policy/domain"

// schemaStatements creates every rule table named in SPEC_FULL.md §3.1. The
// Gateway owns schema creation (it is a read-mostly consumer, not a
// migration framework); external bulk-load tooling writes through the same
// schema or calls RebuildAll.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS block_regex (
		pattern TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS block_exact (
		key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS domain_alias (
		key TEXT PRIMARY KEY,
		target TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS block_wildcard (
		key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS fqdn_dns_allow (
		key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS fqdn_dns_block (
		key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS ip_rewrite_v4 (
		key TEXT PRIMARY KEY,
		target TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ip_rewrite_v6 (
		key TEXT PRIMARY KEY,
		target TEXT NOT NULL
	)`,
}

// wildcardTableName returns the table name backing a wildcard-style TableId,
// or "" if id does not name one of the three interchangeable wildcard
// tables (block_wildcard, fqdn_dns_allow, fqdn_dns_block).
func wildcardTableName(id domain.TableId) string {
	switch id {
	case domain.TableBlockWildcard:
		return "block_wildcard"
	case domain.TableFqdnDnsAllow:
		return "fqdn_dns_allow"
	case domain.TableFqdnDnsBlock:
		return "fqdn_dns_block"
	default:
		return ""
	}
}
