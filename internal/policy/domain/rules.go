package domain

import "net"

// AliasRule is a single row of domain_alias: source -> target, matched
// wildcard-style (I4) against the query name.
type AliasRule struct {
	Source Name
	Target Name
}

// WildcardRule is the shared shape of block_wildcard, fqdn_dns_allow, and
// fqdn_dns_block: a single key matched wildcard-style against the query.
type WildcardRule struct {
	Key Name
}

// RegexRule is a single row of block_regex: an uncompiled PCRE-compatible
// pattern as stored in the table. Compilation happens in repos/regex.
type RegexRule struct {
	Pattern string
}

// IPRewriteRule is a single row of ip_rewrite_v4 or ip_rewrite_v6: an exact
// source address mapped to a replacement target address.
type IPRewriteRule struct {
	Source net.IP
	Target net.IP
}
