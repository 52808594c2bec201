// Package metrics implements the observability surface described in
// spec.md §6: per-stage hit counters, LRU/Bloom hit ratios, alias expansion
// and truncation counts, store errors, rewrite counts, and reload cycles.
// It is the single Prometheus registrant the rest of the module depends on
// through narrow per-package interfaces (services/pipeline.Metrics,
// services/rewriter.Metrics, services/refresh.Metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kestrel-dns/policyengine/internal/policy/domain"
)

// Metrics is the concrete Prometheus-backed implementation shared by the
// Pipeline, Rewriter, and Refresh Controller.
type Metrics struct {
	stageHits     *prometheus.CounterVec
	lruHits       prometheus.Counter
	lruMisses     prometheus.Counter
	bloomPositive prometheus.Counter
	aliasExpand   prometheus.Counter
	aliasTruncate prometheus.Counter
	storeErrors   prometheus.Counter
	rewrites      *prometheus.CounterVec
	reloads       prometheus.Counter
	rebuildErrors *prometheus.CounterVec
}

// New registers every metric against reg and returns the handle. Tests and
// cmd/policyengined alike pass a dedicated prometheus.NewRegistry(), so
// independent instances never collide in the global registry;
// cmd/policyengined serves that registry on /metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		stageHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "stage_hits_total",
			Help:      "Classifications terminated at each rule table.",
		}, []string{"table"}),
		lruHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "lru_hits_total",
			Help:      "Disposition cache hits.",
		}),
		lruMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "lru_misses_total",
			Help:      "Disposition cache misses.",
		}),
		bloomPositive: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "bloom_positive_total",
			Help:      "Bloom pre-filter positive reports (may include false positives).",
		}),
		aliasExpand: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "alias_expansions_total",
			Help:      "domain_alias matches that triggered re-entrant classification.",
		}),
		aliasTruncate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "alias_truncations_total",
			Help:      "Alias expansions truncated at the max-depth bound.",
		}),
		storeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "store_errors_total",
			Help:      "Persistent store probe errors, each degraded to PASSTHROUGH.",
		}),
		rewrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "ip_rewrites_total",
			Help:      "Post-resolution IP rewrite attempts by address family and outcome.",
		}, []string{"family", "rewritten"}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "reloads_total",
			Help:      "Refresh Controller reload cycles triggered.",
		}),
		rebuildErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyengine",
			Name:      "rebuild_errors_total",
			Help:      "Background Bloom/Regex rebuild failures by component.",
		}, []string{"component"}),
	}
}

// ObserveStageHit satisfies services/pipeline.Metrics.
func (m *Metrics) ObserveStageHit(table domain.TableId) {
	m.stageHits.WithLabelValues(table.String()).Inc()
}

// ObserveLRU satisfies services/pipeline.Metrics.
func (m *Metrics) ObserveLRU(hit bool) {
	if hit {
		m.lruHits.Inc()
		return
	}
	m.lruMisses.Inc()
}

// ObserveBloomPositive satisfies services/pipeline.Metrics.
func (m *Metrics) ObserveBloomPositive() { m.bloomPositive.Inc() }

// ObserveAliasExpansion satisfies services/pipeline.Metrics.
func (m *Metrics) ObserveAliasExpansion() { m.aliasExpand.Inc() }

// ObserveAliasTruncation satisfies services/pipeline.Metrics.
func (m *Metrics) ObserveAliasTruncation() { m.aliasTruncate.Inc() }

// ObserveStoreError satisfies services/pipeline.Metrics, services/rewriter.Metrics.
func (m *Metrics) ObserveStoreError() { m.storeErrors.Inc() }

// ObserveRewrite satisfies services/rewriter.Metrics.
func (m *Metrics) ObserveRewrite(v6 bool, rewritten bool) {
	family := "v4"
	if v6 {
		family = "v6"
	}
	outcome := "false"
	if rewritten {
		outcome = "true"
	}
	m.rewrites.WithLabelValues(family, outcome).Inc()
}

// ObserveReload satisfies services/refresh.Metrics.
func (m *Metrics) ObserveReload() { m.reloads.Inc() }

// ObserveRebuildError satisfies services/refresh.Metrics.
func (m *Metrics) ObserveRebuildError(component string) {
	m.rebuildErrors.WithLabelValues(component).Inc()
}
