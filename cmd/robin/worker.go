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
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/UVuruna/Robin-sub000/internal/agent"
	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/eventprocessor"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/source"
	"github.com/UVuruna/Robin-sub000/internal/supervisor"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
	"github.com/UVuruna/Robin-sub000/internal/worker"
)

// forwardGrace is how long frames queued when the worker stops are still
// written to the uplink.
const forwardGrace = time.Second

var workerTarget string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the worker for one target",
	Long: `Run the sampling worker for one target. The supervisor starts this
command for every registered target; frames are written to stdout and logs
to stderr.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVarP(&workerTarget, "target", "t", "", "target name (default: $ROBIN_TARGET)")
}

// resolveWorker returns the configuration of target and the last round id
// it reached. The supervisor passes both through the environment; without
// them the target is looked up in the config file and numbering starts at 1.
func resolveWorker(cfg *config.Config, target string, getenv func(string) string) (config.WorkerConfig, uint64, error) {
	if target == "" {
		target = getenv(supervisor.EnvTarget)
	}

	var seq uint64
	if raw := getenv(supervisor.EnvRoundSeq); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return config.WorkerConfig{}, 0, fmt.Errorf("invalid %s %q: %w", supervisor.EnvRoundSeq, raw, err)
		}
		seq = v
	}

	if raw := getenv(supervisor.EnvWorkerConfig); raw != "" {
		var wc config.WorkerConfig
		if err := json.Unmarshal([]byte(raw), &wc); err != nil {
			return config.WorkerConfig{}, 0, fmt.Errorf("decode %s: %w", supervisor.EnvWorkerConfig, err)
		}
		if target != "" && wc.Name != target {
			return config.WorkerConfig{}, 0, fmt.Errorf("worker config is for %q, not %q", wc.Name, target)
		}
		if err := wc.Validate(); err != nil {
			return config.WorkerConfig{}, 0, err
		}
		return wc, seq, nil
	}

	if target == "" {
		return config.WorkerConfig{}, 0, errors.New("no target: use --target or " + supervisor.EnvTarget)
	}
	wc, ok := cfg.Target(target)
	if !ok {
		return config.WorkerConfig{}, 0, fmt.Errorf("target %q not found in configuration", target)
	}
	return wc, seq, nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg)

	wc, seq, err := resolveWorker(cfg, workerTarget, os.Getenv)
	if err != nil {
		return err
	}
	logger := logging.ForTarget("worker-main", wc.Name)

	src, err := source.New(wc.Source, wc.ReadTimeout)
	if err != nil {
		return fmt.Errorf("create signal source: %w", err)
	}

	out := uplink.NewWriter(os.Stdout, wc.Name)
	sinks := []worker.Sink{out}

	if cfg.NATS.Enabled {
		pub, err := eventprocessor.NewPublisher(eventprocessor.PublisherConfigFrom(cfg.NATS), eventprocessor.NewWatermillLogger("nats-publisher"))
		if err != nil {
			// Events still reach the supervisor over the uplink.
			logger.Warn().Err(err).Msg("NATS publishing disabled")
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					logger.Warn().Err(err).Msg("Error closing NATS publisher")
				}
			}()
			sink, err := eventprocessor.NewSink(pub)
			if err != nil {
				return err
			}
			sinks = append(sinks, sink)
		}
	}

	w := worker.New(wc, src,
		worker.WithAuxReader(src),
		worker.WithSinks(sinks...),
		worker.WithStartRoundID(seq),
	)

	agents, err := agent.Build(wc.Name, wc.Agents)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutdown requested")
			w.RequestShutdown()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			logger.Warn().Msg("Second signal, stopping immediately")
			cancel()
		case <-ctx.Done():
		}
	}()

	fwdCtx, stopForward := context.WithCancel(context.Background())
	forwarded := make(chan error, 1)
	snapshots := w.Subscribe(1)
	go func() { forwarded <- out.Forward(fwdCtx, w.Health(), snapshots) }()

	if len(agents) > 0 {
		runner := agent.NewRunner(wc.Name, agents...)
		go runner.Run(ctx, w)
	}

	runErr := w.Run(ctx)

	// Run closed the snapshot stream; give the forwarder a moment to
	// write what is still queued.
	select {
	case err := <-forwarded:
		if err != nil {
			logger.Warn().Err(err).Msg("Uplink forwarding stopped")
		}
	case <-time.After(forwardGrace):
	}
	stopForward()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
