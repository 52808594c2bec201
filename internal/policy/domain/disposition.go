package domain

import "fmt"

// TableId identifies which rule table produced a Disposition, for
// observability only (SPEC_FULL.md §3.1 Disposition.matched_rule).
type TableId uint8

const (
	TableNone TableId = iota
	TableBlockRegex
	TableBlockExact
	TableDomainAlias
	TableBlockWildcard
	TableFqdnDnsAllow
	TableFqdnDnsBlock
)

// String returns a stable label for the table, used in log fields and metrics.
func (t TableId) String() string {
	switch t {
	case TableNone:
		return "none"
	case TableBlockRegex:
		return "block_regex"
	case TableBlockExact:
		return "block_exact"
	case TableDomainAlias:
		return "domain_alias"
	case TableBlockWildcard:
		return "block_wildcard"
	case TableFqdnDnsAllow:
		return "fqdn_dns_allow"
	case TableFqdnDnsBlock:
		return "fqdn_dns_block"
	default:
		return fmt.Sprintf("TableId(%d)", t)
	}
}

// DispositionKind enumerates the terminal classifications a query can
// receive from the Policy Pipeline (spec.md §3.1).
type DispositionKind uint8

const (
	// Passthrough forwards the query unchanged to the default upstream.
	Passthrough DispositionKind = iota
	// Terminate causes the front-end to synthesize a sinkhole answer.
	Terminate
	// DnsBlock forwards the query to the configured block resolver.
	DnsBlock
	// DnsAllow forwards the query to the configured allow resolver.
	DnsAllow
	// Alias causes the front-end to restart resolution with AliasTarget.
	Alias
)

// String returns a stable label for the disposition kind.
func (k DispositionKind) String() string {
	switch k {
	case Passthrough:
		return "passthrough"
	case Terminate:
		return "terminate"
	case DnsBlock:
		return "dns_block"
	case DnsAllow:
		return "dns_allow"
	case Alias:
		return "alias"
	default:
		return fmt.Sprintf("DispositionKind(%d)", k)
	}
}

// Disposition is the classification result produced by the Policy Pipeline
// for a single normalized query name (spec.md §3.1).
type Disposition struct {
	Kind         DispositionKind
	AliasTarget  Name    // set iff Kind == Alias
	MatchedRule  TableId // which table produced the decision, for observability
	MatchedValue string  // the specific key within that table that fired
}

// PassthroughDisposition is the zero-cost default: forward unchanged.
func PassthroughDisposition() Disposition {
	return Disposition{Kind: Passthrough}
}

// IsTerminal reports whether the disposition ends classification (every
// kind does, today; Alias is "terminal" to its caller but recurses inside
// the Pipeline before returning — see services/pipeline).
func (d Disposition) IsTerminal() bool { return true }
