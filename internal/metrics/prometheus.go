package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Prometheus metrics for the ranking job

var (
	// API Call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bwsrank_api_calls_total",
			Help: "Total number of osu! API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bwsrank_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	TokenRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bwsrank_token_refreshes_total",
			Help: "Total number of access token exchanges",
		},
	)

	// Sheet store metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bwsrank_db_queries_total",
			Help: "Total number of sheet store queries",
		},
		[]string{"operation", "sheet", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bwsrank_db_query_duration_seconds",
			Help:    "Duration of sheet store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "sheet"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bwsrank_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bwsrank_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Run metrics
	PlayersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bwsrank_players_processed_total",
			Help: "Total number of players fetched and scored",
		},
	)

	QualifyingBadges = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bwsrank_qualifying_badges",
			Help:    "Qualifying badge count per processed player",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	FallbackRatingsAssigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bwsrank_fallback_ratings_total",
			Help: "Duel ratings assigned from the rank band table",
		},
		[]string{"source"},
	)

	CheckpointOffset = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bwsrank_checkpoint_offset",
			Help: "Next import row index to process",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bwsrank_runs_total",
			Help: "Total number of runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bwsrank_run_duration_seconds",
			Help:    "Duration of runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	LastCompletedRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bwsrank_last_completed_run_timestamp",
			Help: "Timestamp of the last run that wrote output",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bwsrank_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a sheet store query metric
func RecordDBQuery(operation, sheet, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, sheet, status).Inc()
	DBQueryDuration.WithLabelValues(operation, sheet).Observe(duration)
}

// RecordPlayer records one processed player
func RecordPlayer(badges int, fallbackSource string) {
	PlayersProcessed.Inc()
	QualifyingBadges.Observe(float64(badges))
	if fallbackSource != "" {
		FallbackRatingsAssigned.WithLabelValues(fallbackSource).Inc()
	}
}

// RecordRun records a finished invocation
func RecordRun(status string, duration float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.WithLabelValues(status).Observe(duration)

	if status == "completed" {
		LastCompletedRun.SetToCurrentTime()
	}
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

// Push sends the default registry to a Pushgateway
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
