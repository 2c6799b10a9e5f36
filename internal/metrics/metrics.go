// Package metrics provides Prometheus metrics for the engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the engine records against.
type Metrics struct {
	// Top-level operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Structural metrics
	NodeSplitsTotal       prometheus.Counter
	NodeMergesTotal       prometheus.Counter
	NodeDestroysTotal     prometheus.Counter
	DataPageReclaimsTotal prometheus.Counter

	// Cache metrics
	NodeCacheHitsTotal          prometheus.Counter
	NodeCacheMissesTotal        prometheus.Counter
	NodeCacheEvictionsTotal     prometheus.Counter
	DataPageCacheEvictionsTotal prometheus.Counter

	// Gauges
	NodeCountTotal     prometheus.Gauge
	DataPageCountTotal prometheus.Gauge
	FreeListLength     prometheus.Gauge

	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers every instrument above against reg. Each
// Engine gets its own registry (rather than promauto's package-global
// default) so opening more than one Engine in a process — as the test
// suite does — never collides on instrument names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blinkkv_operations_total",
			Help: "Total number of top-level engine operations (insert/update/erase/select)",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blinkkv_operation_duration_seconds",
			Help:    "Duration of top-level engine operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.NodeSplitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_splits_total",
			Help: "Total number of B-link-tree node splits",
		},
	)

	m.NodeMergesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_merges_total",
			Help: "Total number of B-link-tree node merges",
		},
	)

	m.NodeDestroysTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_destroys_total",
			Help: "Total number of B-link-tree nodes returned to the free list",
		},
	)

	m.DataPageReclaimsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_data_page_reclaims_total",
			Help: "Total number of fully-tombstoned data pages returned to the free list",
		},
	)

	m.NodeCacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_cache_hits_total",
			Help: "Total number of node-cache hits",
		},
	)

	m.NodeCacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_cache_misses_total",
			Help: "Total number of node-cache misses",
		},
	)

	m.NodeCacheEvictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_node_cache_evictions_total",
			Help: "Total number of node-cache evictions",
		},
	)

	m.DataPageCacheEvictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "blinkkv_data_page_cache_evictions_total",
			Help: "Total number of data-page-cache evictions",
		},
	)

	m.NodeCountTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "blinkkv_node_count",
			Help: "Current number of live B-link-tree nodes",
		},
	)

	m.DataPageCountTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "blinkkv_data_page_count",
			Help: "Current number of live data pages",
		},
	)

	m.FreeListLength = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "blinkkv_free_list_length",
			Help: "Current number of pages on the free list",
		},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "blinkkv_uptime_seconds",
			Help: "Engine process uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the uptime gauge.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordOperation records a top-level engine operation's outcome and
// duration.
func (m *Metrics) RecordOperation(operation string, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateCounts refreshes the node-count/data-page-count/free-list gauges.
func (m *Metrics) UpdateCounts(nodeCount, dataPageCount, freeListLength int64) {
	m.NodeCountTotal.Set(float64(nodeCount))
	m.DataPageCountTotal.Set(float64(dataPageCount))
	m.FreeListLength.Set(float64(freeListLength))
}

// The methods below satisfy pkg/btree's Hooks and pkg/storage's Hooks
// interfaces by name, without either package importing this one —
// structural typing in place of the explicit observer registration the
// teacher's GrpcMetricsInterceptor relies on, since btree/storage are
// lower-level than internal/metrics in this module's dependency graph.

// NodeSplit records a B-link-tree node split.
func (m *Metrics) NodeSplit() { m.NodeSplitsTotal.Inc() }

// NodeMerge records a B-link-tree node merge.
func (m *Metrics) NodeMerge() { m.NodeMergesTotal.Inc() }

// NodeDestroy records a node returned to the free list.
func (m *Metrics) NodeDestroy() { m.NodeDestroysTotal.Inc() }

// NodeCacheHit records a node-cache hit.
func (m *Metrics) NodeCacheHit() { m.NodeCacheHitsTotal.Inc() }

// NodeCacheMiss records a node-cache miss.
func (m *Metrics) NodeCacheMiss() { m.NodeCacheMissesTotal.Inc() }

// NodeCacheEviction records a node-cache eviction.
func (m *Metrics) NodeCacheEviction() { m.NodeCacheEvictionsTotal.Inc() }

// DataPageReclaim records a fully-tombstoned data page returned to the
// free list.
func (m *Metrics) DataPageReclaim() { m.DataPageReclaimsTotal.Inc() }

// DataPageCacheEviction records a data-page-cache eviction.
func (m *Metrics) DataPageCacheEviction() { m.DataPageCacheEvictionsTotal.Inc() }
