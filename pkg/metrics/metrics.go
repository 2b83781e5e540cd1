// Package metrics exposes Prometheus counters for button presses, prunes
// and the remote lookup cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/small-frappuccino/rolebuttons/pkg/discord/cache"
)

const namespace = "rolebuttons"

// Press outcomes.
const (
	PressAssigned        = "assigned"
	PressRemoved         = "removed"
	PressNoop            = "noop"
	PressUnknownButton   = "unknown_button"
	PressMismatch        = "origin_mismatch"
	PressRoleMissing     = "role_missing"
	PressMemberMissing   = "member_missing"
	PressMutationFailure = "mutation_failed"
)

var (
	presses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presses_total",
		Help:      "Role button presses by outcome.",
	}, []string{"outcome"})

	integrityMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "integrity_mismatches_total",
		Help:      "Presses whose location did not match the stored button origin.",
	})

	prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pruned_rows_total",
		Help:      "Stale button rows deleted by prunes.",
	})

	pruneRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prune_runs_total",
		Help:      "Prune runs by result.",
	}, []string{"result"})

	remoteProbes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_probes_total",
		Help:      "Remote existence probes issued by prunes, by object kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(presses, integrityMismatches, prunedRows, pruneRuns, remoteProbes)
}

// ObservePress counts one handled press.
func ObservePress(outcome string) {
	presses.WithLabelValues(outcome).Inc()
}

func ObserveIntegrityMismatch() {
	integrityMismatches.Inc()
}

// ObservePrune records the result of one prune run.
func ObservePrune(removed int, err error) {
	if err != nil {
		pruneRuns.WithLabelValues("error").Inc()
		return
	}
	pruneRuns.WithLabelValues("ok").Inc()
	if removed > 0 {
		prunedRows.Add(float64(removed))
	}
}

// ObserveRemoteProbe fits prune.Engine.OnProbe.
func ObserveRemoteProbe(kind string) {
	remoteProbes.WithLabelValues(kind).Inc()
}

// StatsSource is implemented by *cache.UnifiedCache.
type StatsSource interface {
	Stats() map[string]cache.KindStats
}

// CacheCollector reports cache hit/miss counters and sizes at scrape time.
type CacheCollector struct {
	src     StatsSource
	hits    *prometheus.Desc
	misses  *prometheus.Desc
	entries *prometheus.Desc
}

func NewCacheCollector(src StatsSource) *CacheCollector {
	return &CacheCollector{
		src: src,
		hits: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Cache hits by kind.", []string{"kind"}, nil),
		misses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Cache misses by kind.", []string{"kind"}, nil),
		entries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "entries"),
			"Cached entries by kind.", []string{"kind"}, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.entries
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	for kind, s := range c.src.Stats() {
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), kind)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), kind)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries), kind)
	}
}

// RegisterCache adds a CacheCollector for src to the default registry.
func RegisterCache(src StatsSource) error {
	return prometheus.Register(NewCacheCollector(src))
}

// DraftCounter is implemented by *editor.MemoryStore.
type DraftCounter interface {
	Len() int
}

// NewDraftsGauge reports the number of open editor drafts at scrape time.
func NewDraftsGauge(src DraftCounter) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_drafts",
		Help:      "Button editor drafts currently held in memory.",
	}, func() float64 { return float64(src.Len()) })
}

// RegisterDrafts adds a drafts gauge for src to the default registry.
func RegisterDrafts(src DraftCounter) error {
	return prometheus.Register(NewDraftsGauge(src))
}

// IntegrityMismatches exposes the mismatch counter for tests.
func IntegrityMismatches() prometheus.Counter {
	return integrityMismatches
}
