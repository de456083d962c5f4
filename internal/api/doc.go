// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package api provides the HTTP control API of the supervisor, built on chi.

# Endpoints

Workers:
  - GET  /api/v1/workers: status of every worker
  - POST /api/v1/workers: register a target (JSON or YAML body, merged over
    worker_defaults; ?start=true starts it)
  - GET  /api/v1/workers/{name}: status of one worker
  - POST /api/v1/workers/{name}/start|stop|restart|reset
  - GET  /api/v1/workers/{name}/state: last runtime snapshot
  - GET  /api/v1/workers/{name}/history: recent rounds (?limit=N)
  - GET  /api/v1/workers/{name}/health: last health sample and staleness
  - POST /api/v1/shutdown: stop every worker

Operations:
  - GET /healthz: worker counts by state
  - GET /metrics: Prometheus metrics
  - GET /ws: WebSocket stream of health, snapshot, round, milestone and
    worker_status messages (?targets=a,b to filter)

# Responses

Every JSON endpoint returns the models.APIResponse envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "error": {"code": "NOT_FOUND", "message": "..."}, "metadata": {...}}

Supervisor errors map to statuses: unknown worker 404, state conflicts 409,
capacity 409 with CAPACITY_EXCEEDED, shutdown in progress 503, validation
failures 400 with VALIDATION_ERROR.

# Middleware

Request IDs and Prometheus request metrics (internal/middleware), CORS
(go-chi/cors), per-IP rate limiting on mutating endpoints (go-chi/httprate)
and panic recovery (chi middleware).
*/
package api
