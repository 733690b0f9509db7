// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trade metrics
	TradesTotal         *prometheus.CounterVec
	TradeDuration       *prometheus.HistogramVec
	BroadcastTransition *prometheus.CounterVec
	BroadcastAttempts   prometheus.Histogram
	BundlesTotal        *prometheus.CounterVec
	DecodeResults       *prometheus.CounterVec

	// Dispatch metrics
	JobsEnqueued     *prometheus.CounterVec
	JobsDeduplicated *prometheus.CounterVec
	JobRetries       *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	OpportunityMatch prometheus.Histogram

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationLimited prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_engine"
	}

	return &Metrics{
		// Trade metrics
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "executions_total",
			Help:      "Total number of trade executions by protocol, side and outcome",
		}, []string{"protocol", "side", "outcome"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "duration_seconds",
			Help:      "Time from job start to persisted result",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"protocol", "side"}),
		BroadcastTransition: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "transitions_total",
			Help:      "Broadcast state machine transitions",
		}, []string{"from", "to"}),
		BroadcastAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "attempts",
			Help:      "Blockhash attempts needed to land a transaction",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		BundlesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "submissions_total",
			Help:      "Relay bundle submissions by outcome",
		}, []string{"outcome"}),
		DecodeResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "results_total",
			Help:      "Decode results by protocol",
		}, []string{"protocol", "result"}),

		// Dispatch metrics
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs accepted onto a queue",
		}, []string{"queue"}),
		JobsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "jobs_deduplicated_total",
			Help:      "Enqueues dropped because the same job was already pending",
		}, []string{"queue"}),
		JobRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "job_retries_total",
			Help:      "Job attempts after the first",
		}, []string{"queue"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "jobs_completed_total",
			Help:      "Jobs finished by outcome",
		}, []string{"queue", "outcome"}),
		OpportunityMatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "opportunity_wallets_matched",
			Help:      "Wallets matched per opportunity",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		// Notification metrics
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications delivered by kind and outcome",
		}, []string{"kind", "outcome"}),
		NotificationLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "rate_limited_total",
			Help:      "Sends rejected with a server retry_after",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),

		// Health metrics
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

// RecordTrade records a finished trade execution.
func RecordTrade(protocol, side, outcome string, d time.Duration) {
	DefaultMetrics.TradesTotal.WithLabelValues(protocol, side, outcome).Inc()
	DefaultMetrics.TradeDuration.WithLabelValues(protocol, side).Observe(d.Seconds())
}

// RecordBroadcastTransition records a broadcast state change.
func RecordBroadcastTransition(from, to string) {
	DefaultMetrics.BroadcastTransition.WithLabelValues(from, to).Inc()
}

// RecordBroadcastAttempts records how many attempts a landed transaction took.
func RecordBroadcastAttempts(n int) {
	DefaultMetrics.BroadcastAttempts.Observe(float64(n))
}

// RecordBundle records a relay submission outcome ("landed" or "dropped").
func RecordBundle(outcome string) {
	DefaultMetrics.BundlesTotal.WithLabelValues(outcome).Inc()
}

// RecordDecode records a decode result ("ok", "not_found" or "error").
func RecordDecode(protocol, result string) {
	DefaultMetrics.DecodeResults.WithLabelValues(protocol, result).Inc()
}

// RecordEnqueue records an enqueue attempt; dup is true when the job was already pending.
func RecordEnqueue(queue string, dup bool) {
	if dup {
		DefaultMetrics.JobsDeduplicated.WithLabelValues(queue).Inc()
		return
	}
	DefaultMetrics.JobsEnqueued.WithLabelValues(queue).Inc()
}

// RecordRetry records a job attempt after the first.
func RecordRetry(queue string) {
	DefaultMetrics.JobRetries.WithLabelValues(queue).Inc()
}

// RecordJobDone records a finished job.
func RecordJobDone(queue string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	DefaultMetrics.JobsCompleted.WithLabelValues(queue, outcome).Inc()
}

// RecordOpportunity records how many wallets an opportunity matched.
func RecordOpportunity(matched int) {
	DefaultMetrics.OpportunityMatch.Observe(float64(matched))
}

// RecordNotification records a notification send.
func RecordNotification(kind string, err error, rateLimited bool) {
	if rateLimited {
		DefaultMetrics.NotificationLimited.Inc()
	}
	outcome := "sent"
	if err != nil {
		outcome = "error"
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(kind, outcome).Inc()
}

// RecordRPCLatency records RPC call latency. It matches the solana.WithObserver signature.
func RecordRPCLatency(method string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			status = "canceled"
		}
	}
	DefaultMetrics.RPCCallLatency.WithLabelValues(method, status).Observe(d.Seconds())
}

// RecordUptime adds d to the uptime counter.
func RecordUptime(d time.Duration) {
	DefaultMetrics.UptimeSeconds.Add(d.Seconds())
}
