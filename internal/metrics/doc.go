// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package metrics provides Prometheus metrics for the supervisor and its workers.

All collectors are registered with the default registry through promauto and
are exposed by the API server at /metrics:

	curl http://localhost:8470/metrics

# Available Metrics

Supervisor:
  - robin_worker_state: lifecycle state per worker (gauge, one series per state)
  - robin_worker_restarts_total: scheduled restarts (counter)
  - robin_worker_crashes_total: exits, hangs and resource kills (counter)
    Labels: worker, reason
  - robin_worker_cpu_percent, robin_worker_rss_bytes: resource samples (gauge)
  - robin_worker_shutdown_kills_total: workers killed after the stop grace period
  - robin_resource_breaches_total: CPU or memory limit breaches (counter)

Worker health (reported over the uplink):
  - robin_health_samples_total: samples received (counter)
  - robin_health_samples_dropped: samples dropped by the worker (gauge)
  - robin_worker_phase: current round phase (gauge)
  - robin_tick_latency_seconds: tick duration (histogram)
  - robin_worker_counters: cumulative tick counters (gauge)
    Labels: worker, counter

Rounds:
  - robin_rounds_completed_total: rounds ended (counter)
    Labels: target, confidence
  - robin_round_duration_seconds: round length (histogram)
  - robin_milestones_crossed_total: milestone crossings (counter)
    Labels: target, out_of_tolerance

Persistence and events:
  - robin_wal_writes_total, robin_wal_confirms_total (counter)
  - robin_rounds_persisted_total, robin_persist_batch_duration_seconds
  - robin_events_published_total: NATS publishes (counter)
    Labels: type, result
  - circuit_breaker_state, circuit_breaker_state_transitions_total

API and WebSocket:
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - api_rate_limit_hits_total
  - websocket_connections, websocket_messages_sent_total, websocket_errors_total

# Usage

	metrics.SetWorkerState("table-1", models.WorkerRunning)
	metrics.RecordHealthSample(sample)
	metrics.RecordEventPublish(event.Type, err)

All functions are safe for concurrent use.
*/
package metrics
