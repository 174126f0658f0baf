// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Lifecycle metrics
	ProposalsTotal   *prometheus.CounterVec
	OrdersPlaced     prometheus.Counter
	TradesClosed     *prometheus.CounterVec
	OpenPositions    prometheus.Gauge
	DailyRealizedPnL prometheus.Gauge

	// Risk metrics
	RiskRejections *prometheus.CounterVec

	// Gateway metrics
	GatewayErrors  prometheus.Counter
	GatewayLatency *prometheus.HistogramVec

	// Learning metrics
	LearningRunsTotal   *prometheus.CounterVec
	LearningRunDuration *prometheus.HistogramVec
	PatternsDetected    prometheus.Counter
	PatternsInvalidated prometheus.Counter
	ExperimentDecisions *prometheus.CounterVec
	ActiveConfigVersion prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulLearningRun prometheus.Gauge
	UptimeSeconds             prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "short_options_loop"
	}

	return &Metrics{
		// Lifecycle metrics
		ProposalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "proposals_total",
			Help:      "Total number of trade proposals by outcome",
		}, []string{"outcome"}),
		OrdersPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "orders_placed_total",
			Help:      "Total number of entry orders placed",
		}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "trades_closed_total",
			Help:      "Total number of trades closed by exit reason",
		}, []string{"reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),
		DailyRealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "daily_realized_pnl",
			Help:      "Cumulative realized P&L for the current session",
		}),

		// Risk metrics
		RiskRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "Total number of risk rejections by check",
		}, []string{"check"}),

		// Gateway metrics
		GatewayErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total number of gateway call failures",
		}),
		GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Gateway call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Learning metrics
		LearningRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "runs_total",
			Help:      "Total number of learning runs by phase and status",
		}, []string{"phase", "status"}),
		LearningRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "run_duration_seconds",
			Help:      "Learning run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"phase"}),
		PatternsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "patterns_detected_total",
			Help:      "Total number of patterns detected",
		}),
		PatternsInvalidated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "patterns_invalidated_total",
			Help:      "Total number of patterns invalidated",
		}),
		ExperimentDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "experiment_decisions_total",
			Help:      "Total number of experiment adjudications by decision",
		}, []string{"decision"}),
		ActiveConfigVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "active_config_version",
			Help:      "Version ID of the active strategy configuration",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulLearningRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_learning_run_timestamp",
			Help:      "Unix timestamp of last successful learning run",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProposal counts one trade proposal by outcome.
func RecordProposal(outcome string) {
	DefaultMetrics.ProposalsTotal.WithLabelValues(outcome).Inc()
}

// RecordOrderPlaced increments the entry orders placed counter.
func RecordOrderPlaced() {
	DefaultMetrics.OrdersPlaced.Inc()
}

// RecordTradeClosed counts one closed trade by exit reason.
func RecordTradeClosed(reason string) {
	DefaultMetrics.TradesClosed.WithLabelValues(reason).Inc()
}

// SetOpenPositions updates the open positions gauge.
func SetOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// SetDailyRealized updates the session realized P&L gauge.
func SetDailyRealized(v float64) {
	DefaultMetrics.DailyRealizedPnL.Set(v)
}

// RecordRiskRejection counts one risk rejection by check.
func RecordRiskRejection(check string) {
	DefaultMetrics.RiskRejections.WithLabelValues(check).Inc()
}

// RecordGatewayError increments the gateway error counter.
func RecordGatewayError() {
	DefaultMetrics.GatewayErrors.Inc()
}

// RecordGatewayLatency records one gateway call's latency.
func RecordGatewayLatency(operation string, seconds float64) {
	DefaultMetrics.GatewayLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordLearningRun records one learning run.
func RecordLearningRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.LearningRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.LearningRunDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordPatternDetected increments the patterns detected counter.
func RecordPatternDetected() {
	DefaultMetrics.PatternsDetected.Inc()
}

// RecordPatternInvalidated increments the patterns invalidated counter.
func RecordPatternInvalidated() {
	DefaultMetrics.PatternsInvalidated.Inc()
}

// RecordExperimentDecision counts one experiment adjudication by decision.
func RecordExperimentDecision(decision string) {
	DefaultMetrics.ExperimentDecisions.WithLabelValues(decision).Inc()
}

// SetActiveConfigVersion updates the active config version gauge.
func SetActiveConfigVersion(version int64) {
	DefaultMetrics.ActiveConfigVersion.Set(float64(version))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
