package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the team snapshot pipeline

var (
	// Upstream API metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_api_calls_total",
			Help: "Total number of upstream API attempts",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ntteams_api_call_duration_seconds",
			Help:    "Duration of upstream API attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ntteams_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntteams_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntteams_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntteams_cache_hits_total",
			Help: "Total number of rate cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntteams_cache_misses_total",
			Help: "Total number of rate cache misses",
		},
	)

	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_cycles_total",
			Help: "Total number of ingestion cycles",
		},
		[]string{"trigger"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntteams_cycle_duration_seconds",
			Help:    "Duration of ingestion cycles in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntteams_cycles_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	TeamResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_team_results_total",
			Help: "Per-team cycle outcomes",
		},
		[]string{"outcome"},
	)

	RowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntteams_rows_written_total",
			Help: "Total number of player snapshot rows written",
		},
	)

	LastSuccessfulCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntteams_last_successful_cycle_timestamp",
			Help: "Timestamp of the last cycle in which every team was stored",
		},
	)

	// Read path metrics
	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_aggregations_total",
			Help: "Total number of rate computations",
		},
		[]string{"source"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntteams_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntteams_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)
)

// RecordAPICall records an upstream API attempt
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCycle records a finished ingestion cycle.
// A cycle counts as successful only when no team failed.
func RecordCycle(trigger string, failed int, duration float64) {
	CyclesTotal.WithLabelValues(trigger).Inc()
	CycleDuration.Observe(duration)

	if failed == 0 {
		LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordCycleSkipped records a tick dropped by the overlap guard
func RecordCycleSkipped() {
	CyclesSkipped.Inc()
}

// RecordTeamResult records the outcome of one team within a cycle
func RecordTeamResult(outcome string, rows int) {
	TeamResultsTotal.WithLabelValues(outcome).Inc()
	if rows > 0 {
		RowsWritten.Add(float64(rows))
	}
}

// RecordAggregation records a rate computation and where it was served from
func RecordAggregation(source string) {
	AggregationsTotal.WithLabelValues(source).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
