// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package supervisor runs one worker process per monitored target and keeps
those processes alive.

# Worker Supervision

Supervisor owns a handle per registered target. Each handle moves through
the states of models.WorkerState:

	STOPPED -> STARTING -> RUNNING -> STOPPING -> STOPPED
	                          |
	                          v
	                       CRASHED -> RESTARTING -> STARTING

Workers are separate operating system processes started by a Launcher.
ExecLauncher re-executes the robin binary with the worker subcommand, puts
the child in its own process group and reads newline-delimited uplink
frames from its stdout. The last known round id is passed in the
ROBIN_ROUND_SEQ environment variable so round numbering survives restarts.

The health loop (Serve) inspects each running worker once per
health_check_interval:

  - An exited process is recorded as a crash.
  - A worker silent for longer than hang_timeout is killed and then
    handled as a crash.
  - CPU and resident memory are sampled with gopsutil. A breach is logged
    and counted; it only restarts the worker when
    restart_on_resource_breach is set.

Crashes are restarted after a delay that grows by backoff_multiplier up to
max_delay (cenkalti/backoff). After max_restarts automatic restarts the
worker stays CRASHED and is flagged as needing attention until
ResetRestarts or Restart is called.

ShutdownAll sends SIGTERM to every live worker at once, waits a single
shutdown_timeout shared by all of them, then SIGKILLs stragglers. The
total time is bounded by shutdown_timeout + kill_grace regardless of the
number of workers.

# Supervisor Tree

SupervisorTree hosts the long-running services of the supervise command
in a suture v4 tree:

	RootSupervisor ("robin")
	├── DataSupervisor ("data-layer")
	│   ├── StoreService
	│   ├── NATSServerService (if nats.embedded_server)
	│   └── WebSocketHubService
	├── ProcessSupervisor ("process-layer")
	│   └── Supervisor health loop
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Usage:

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	sup := supervisor.New(cfg.Supervisor, supervisor.WithFrameHandlers(hub, reg))
	tree.AddProcessService(sup)
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	_ = sup.ShutdownAll()
	<-errCh

# Thread Safety

Supervisor is safe for concurrent use. Uplink frames, status listeners and
the HTTP API all call into it from their own goroutines. Listeners are
invoked outside the supervisor lock and must not block.
*/
package supervisor
