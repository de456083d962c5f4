// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

var (
	// Supervisor Metrics
	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_worker_state",
			Help: "Worker lifecycle state (1 for the current state, 0 otherwise)",
		},
		[]string{"worker", "state"},
	)

	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_worker_restarts_total",
			Help: "Total number of scheduled worker restarts",
		},
		[]string{"worker"},
	)

	WorkerCrashes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_worker_crashes_total",
			Help: "Total number of unexpected worker exits and hangs",
		},
		[]string{"worker", "reason"}, // reason: "exit", "hang", "resources"
	)

	WorkerShutdownKills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_worker_shutdown_kills_total",
			Help: "Total number of workers killed after their stop grace period expired",
		},
		[]string{"worker"},
	)

	ResourceBreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_resource_breaches_total",
			Help: "Total number of resource limit breaches observed",
		},
		[]string{"worker", "resource"}, // resource: "cpu", "memory"
	)

	WorkerCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_worker_cpu_percent",
			Help: "Worker process CPU usage in percent",
		},
		[]string{"worker"},
	)

	WorkerRSSBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_worker_rss_bytes",
			Help: "Worker process resident memory in bytes",
		},
		[]string{"worker"},
	)

	// Worker Health Metrics
	HealthSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_health_samples_total",
			Help: "Total number of health samples received from workers",
		},
		[]string{"worker"},
	)

	HealthSamplesDropped = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_health_samples_dropped",
			Help: "Health samples a worker dropped because its channel was full",
		},
		[]string{"worker"},
	)

	WorkerPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_worker_phase",
			Help: "Worker round phase (0=unknown, 1=waiting, 2=active, 3=ended_confirmed)",
		},
		[]string{"worker"},
	)

	TickLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robin_tick_latency_seconds",
			Help:    "Duration of one worker tick in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"worker"},
	)

	WorkerCounters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robin_worker_counters",
			Help: "Cumulative worker counters as last reported",
		},
		[]string{"worker", "counter"}, // counter: "ticks", "reads", "misses", "read_errors", "confirmations", "rejections"
	)

	// Round Metrics
	RoundsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_rounds_completed_total",
			Help: "Total number of rounds ended with a confirmed final value",
		},
		[]string{"target", "confidence"}, // confidence: "normal", "low"
	)

	RoundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robin_round_duration_seconds",
			Help:    "Round duration in seconds",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"target"},
	)

	MilestonesCrossed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_milestones_crossed_total",
			Help: "Total number of milestone crossings",
		},
		[]string{"target", "out_of_tolerance"},
	)

	// Persistence Metrics
	WALWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robin_wal_writes_total",
			Help: "Total number of rounds written to the WAL",
		},
	)

	WALConfirms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robin_wal_confirms_total",
			Help: "Total number of WAL entries confirmed after storage",
		},
	)

	RoundsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robin_rounds_persisted_total",
			Help: "Total number of rounds stored in DuckDB",
		},
	)

	PersistBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robin_persist_batch_duration_seconds",
			Help:    "Duration of one DuckDB batch insert in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event Publishing Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robin_events_published_total",
			Help: "Total number of round events published to NATS",
		},
		[]string{"type", "result"}, // result: "success", "failure"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

var breakerStateNames = map[int]string{0: "closed", 1: "half_open", 2: "open"}

// SetWorkerState marks state as the worker's current lifecycle state.
func SetWorkerState(worker string, state models.WorkerState) {
	for _, s := range models.AllWorkerStates() {
		v := 0.0
		if s == state {
			v = 1
		}
		WorkerState.WithLabelValues(worker, s.String()).Set(v)
	}
}

// RecordWorkerRestart counts a scheduled restart.
func RecordWorkerRestart(worker string) {
	WorkerRestarts.WithLabelValues(worker).Inc()
}

// RecordWorkerCrash counts an unexpected exit, hang or resource kill.
func RecordWorkerCrash(worker, reason string) {
	WorkerCrashes.WithLabelValues(worker, reason).Inc()
}

// RecordShutdownKill counts a worker killed after its grace period.
func RecordShutdownKill(worker string) {
	WorkerShutdownKills.WithLabelValues(worker).Inc()
}

// RecordResourceBreach counts a resource limit breach.
func RecordResourceBreach(worker, resource string) {
	ResourceBreaches.WithLabelValues(worker, resource).Inc()
}

// RecordWorkerResources records the last resource sample of a worker process.
func RecordWorkerResources(worker string, cpuPercent float64, rssBytes uint64) {
	WorkerCPUPercent.WithLabelValues(worker).Set(cpuPercent)
	WorkerRSSBytes.WithLabelValues(worker).Set(float64(rssBytes))
}

// RecordHealthSample records a health sample received from a worker.
func RecordHealthSample(s models.HealthSample) {
	HealthSamples.WithLabelValues(s.Target).Inc()
	HealthSamplesDropped.WithLabelValues(s.Target).Set(float64(s.Metrics.DroppedSamples))
	WorkerPhase.WithLabelValues(s.Target).Set(float64(s.Phase))
	TickLatency.WithLabelValues(s.Target).Observe(s.Metrics.TickLatency.Seconds())
}

// RecordSnapshot records the cumulative counters of a worker snapshot.
func RecordSnapshot(s models.RuntimeState) {
	c := s.Counters
	WorkerCounters.WithLabelValues(s.Target, "ticks").Set(float64(c.Ticks))
	WorkerCounters.WithLabelValues(s.Target, "reads").Set(float64(c.Reads))
	WorkerCounters.WithLabelValues(s.Target, "misses").Set(float64(c.Misses))
	WorkerCounters.WithLabelValues(s.Target, "read_errors").Set(float64(c.ReadErrors))
	WorkerCounters.WithLabelValues(s.Target, "confirmations").Set(float64(c.Confirmations))
	WorkerCounters.WithLabelValues(s.Target, "rejections").Set(float64(c.Rejections))
}

// RecordRound records a completed round and its milestones.
func RecordRound(rec models.RoundRecord) {
	confidence := "normal"
	if rec.LowConfidence {
		confidence = "low"
	}
	RoundsCompleted.WithLabelValues(rec.Target, confidence).Inc()
	RoundDuration.WithLabelValues(rec.Target).Observe(rec.DurationSeconds)
	for _, h := range rec.Milestones {
		MilestonesCrossed.WithLabelValues(rec.Target, strconv.FormatBool(h.OutOfTolerance)).Inc()
	}
}

// RecordWALWrite counts a round written to the WAL.
func RecordWALWrite() {
	WALWrites.Inc()
}

// RecordWALConfirm counts a WAL entry confirmed after storage.
func RecordWALConfirm() {
	WALConfirms.Inc()
}

// RecordRoundsPersisted records one successful batch insert.
func RecordRoundsPersisted(n int, duration time.Duration) {
	RoundsPersisted.Add(float64(n))
	PersistBatchDuration.Observe(duration.Seconds())
}

// RecordEventPublish records the outcome of publishing one event.
func RecordEventPublish(eventType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(eventType, result).Inc()
}

// RecordBreakerState records a circuit breaker transition.
// States follow gobreaker: 0 closed, 1 half-open, 2 open.
func RecordBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	to, ok := breakerStateNames[state]
	if !ok {
		to = strconv.Itoa(state)
	}
	CircuitBreakerTransitions.WithLabelValues(name, to).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
