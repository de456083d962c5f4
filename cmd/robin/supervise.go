// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/UVuruna/Robin-sub000/internal/api"
	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/eventprocessor"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/metrics"
	"github.com/UVuruna/Robin-sub000/internal/registry"
	"github.com/UVuruna/Robin-sub000/internal/store"
	"github.com/UVuruna/Robin-sub000/internal/supervisor"
	"github.com/UVuruna/Robin-sub000/internal/supervisor/services"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
	ws "github.com/UVuruna/Robin-sub000/internal/websocket"
)

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run the worker supervisor",
	Args:  cobra.NoArgs,
	RunE:  runSupervise,
}

func initLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
}

//nolint:gocyclo // Sequential component setup
func runSupervise(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg)

	logging.Info().
		Str("config", cfg.Path()).
		Int("targets", len(cfg.Targets)).
		Int("max_workers", cfg.Supervisor.MaxWorkers).
		Msg("Starting Robin supervisor")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	go trackUptime(ctx, time.Now())

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("suture"), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	reg := registry.New(cfg.WorkerDefaults.Tracking.HistorySize)
	handlers := []uplink.Handler{reg}
	roundSeq := reg.LastRoundID

	// === ROUND STORE ===
	if cfg.Store.Enabled {
		rs, err := openRoundStore(ctx, cfg, reg)
		if err != nil {
			return err
		}
		handlers = append(handlers, rs.appender)
		roundSeq = rs.roundSeq(ctx, reg)
		tree.AddDataService(services.NewStoreService(rs.appender, rs.wal, rs.db))
		logging.Info().Str("duckdb", cfg.Store.DuckDBPath).Str("wal", cfg.Store.WALPath).Msg("Round store added to supervisor tree")
	}

	// === EMBEDDED NATS ===
	var workerEnv []string
	if cfg.NATS.Enabled && cfg.NATS.EmbeddedServer {
		natsSvc := services.NewNATSServerService(func() (services.NATSServer, error) {
			srv, err := eventprocessor.NewEmbeddedServer(eventprocessor.ServerConfigFrom(cfg.NATS))
			if err != nil {
				return nil, err
			}
			return srv, nil
		}, 5*time.Second)
		url, err := natsSvc.Start()
		if err != nil {
			return fmt.Errorf("start embedded NATS server: %w", err)
		}
		// Workers publish to the embedded server whatever the file says.
		workerEnv = append(workerEnv, "ROBIN_NATS_ENABLED=true", "ROBIN_NATS_URL="+url)
		tree.AddDataService(natsSvc)
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	// === WEBSOCKET HUB ===
	hub := ws.NewHub()
	handlers = append(handlers, hub)
	tree.AddDataService(services.NewWebSocketHubService(hub))

	// === WORKER SUPERVISOR ===
	sup := supervisor.New(cfg.Supervisor,
		supervisor.WithLauncher(&supervisor.ExecLauncher{
			Command:    cfg.Supervisor.WorkerCommand,
			ConfigPath: cfg.Path(),
			Env:        workerEnv,
			Logger:     logging.WithComponent("launcher"),
		}),
		supervisor.WithSampler(supervisor.NewProcessSampler()),
		supervisor.WithFrameHandlers(handlers...),
		supervisor.WithRoundSeq(roundSeq),
		supervisor.WithStatusListener(hub.BroadcastStatus),
	)
	tree.AddProcessService(sup)

	for _, target := range cfg.Targets {
		if err := sup.Register(target); err != nil {
			return fmt.Errorf("register target %s: %w", target.Name, err)
		}
	}

	// === CONTROL API ===
	if cfg.Server.Enabled {
		router := api.NewRouter(api.Deps{
			Workers:        sup,
			State:          reg,
			Hub:            hub,
			Server:         cfg.Server,
			WorkerDefaults: cfg.WorkerDefaults,
			StopTimeout:    cfg.Supervisor.StopTimeout,
			OnShutdown:     cancel,
		})
		server := router.NewServer()
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}

	if path := cfg.Path(); path != "" {
		if err := config.WatchConfigFile(path, func() { registerNewTargets(path, sup) }); err != nil {
			logging.Warn().Err(err).Msg("Config file watch disabled")
		}
	}

	// === START ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		case <-ctx.Done():
		}
		if err := sup.ShutdownAll(); err != nil {
			logging.Warn().Err(err).Msg("Workers did not all stop gracefully")
		}
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	if cfg.Supervisor.AutoStart {
		for _, target := range cfg.Targets {
			if err := sup.Start(target.Name); err != nil {
				logging.Error().Err(err).Str("target", target.Name).Msg("Failed to start worker")
			}
		}
	}

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		if stopErr := sup.ShutdownAll(); stopErr != nil {
			logging.Warn().Err(stopErr).Msg("Workers did not all stop gracefully")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("Robin stopped gracefully")
	return nil
}

// trackUptime updates the uptime gauge until ctx is done.
func trackUptime(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.AppUptime.Set(time.Since(started).Seconds())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// roundStore bundles the durable round persistence components.
type roundStore struct {
	db       *store.DuckDBStore
	wal      *store.WAL
	appender *store.Appender
}

// openRoundStore opens DuckDB and the WAL, replays rounds left in the WAL
// by a previous run and seeds the registry with recent history.
func openRoundStore(ctx context.Context, cfg *config.Config, reg *registry.Registry) (*roundStore, error) {
	db, err := store.OpenDuckDB(cfg.Store.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("open round database: %w", err)
	}
	wal, err := store.OpenWAL(store.DefaultWALConfig(cfg.Store.WALPath))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open round WAL: %w", err)
	}
	appender, err := store.NewAppender(db, wal, store.AppenderConfig{
		BatchSize:     cfg.Store.BatchSize,
		FlushInterval: cfg.Store.FlushInterval,
	})
	if err != nil {
		_ = wal.Close()
		_ = db.Close()
		return nil, err
	}

	recovered, err := appender.Recover(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("WAL recovery incomplete")
	} else if recovered > 0 {
		logging.Info().Int("rounds", recovered).Msg("Recovered rounds from WAL")
	}

	for _, target := range cfg.Targets {
		rounds, err := db.RecentRounds(ctx, target.Name, target.Tracking.HistorySize)
		if err != nil {
			logging.Warn().Err(err).Str("target", target.Name).Msg("Failed to load round history")
			continue
		}
		reg.Seed(target.Name, rounds)
	}
	return &roundStore{db: db, wal: wal, appender: appender}, nil
}

// roundSeq returns the last round id of a target, taking the larger of
// what workers reported in this run and what the database holds.
func (rs *roundStore) roundSeq(ctx context.Context, reg *registry.Registry) func(string) uint64 {
	return func(target string) uint64 {
		seq := reg.LastRoundID(target)
		stored, err := rs.db.LastRoundID(ctx, target)
		if err != nil {
			logging.Warn().Err(err).Str("target", target).Msg("Failed to read last round id")
			return seq
		}
		return max(seq, stored)
	}
}

// registerNewTargets reloads the config file and registers targets that
// are not known yet. Changed definitions of known targets are ignored.
func registerNewTargets(path string, sup *supervisor.Supervisor) {
	cfg, err := config.Load(path)
	if err != nil {
		logging.Warn().Err(err).Msg("Ignoring invalid configuration change")
		return
	}
	for _, target := range cfg.Targets {
		err := sup.Register(target)
		switch {
		case err == nil:
			logging.Info().Str("target", target.Name).Msg("Registered target from configuration change")
			if cfg.Supervisor.AutoStart {
				if err := sup.Start(target.Name); err != nil {
					logging.Error().Err(err).Str("target", target.Name).Msg("Failed to start worker")
				}
			}
		case errors.Is(err, supervisor.ErrAlreadyRegistered):
		default:
			logging.Warn().Err(err).Str("target", target.Name).Msg("Failed to register target")
		}
	}
}
