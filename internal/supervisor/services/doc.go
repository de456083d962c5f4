// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package services provides suture.Service wrappers for Robin's long-running
components.

Each wrapper translates a component lifecycle (ListenAndServe, Start/Stop,
RunWithContext) into suture's Serve(ctx) pattern and returns an error when
the component fails so the supervisor tree restarts it.

# Available Services

HTTPServerService:
  - Runs the control API *http.Server
  - Graceful shutdown with a configurable timeout

NATSServerService:
  - Owns the embedded NATS server workers publish events to
  - Start creates the server eagerly so its URL can be passed to workers
  - Serve fails with ErrNATSServerDown if the server stops on its own;
    the restarted service creates a new server

WebSocketHubService:
  - Runs the live-update hub event loop

StoreService:
  - Runs the round appender flush loop
  - On shutdown flushes pending rounds, then closes the WAL and DuckDB

# Placement

	tree.AddDataService(services.NewStoreService(appender, wal, db))
	tree.AddDataService(services.NewNATSServerService(newServer, 5*time.Second))
	tree.AddDataService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
*/
package services
