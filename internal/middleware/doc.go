// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package middleware provides HTTP middleware for the control API.

  - RequestID: assigns an X-Request-ID and stores it as the logging
    correlation ID
  - PrometheusMetrics: request count, latency and in-flight gauge, labeled
    by chi route pattern

Both have the func(http.Handler) http.Handler shape used by chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
