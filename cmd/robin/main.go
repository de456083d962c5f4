// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package main is the entry point of the robin binary.
//
// Robin supervises one worker process per monitored target. Each worker
// samples a numeric signal at a phase dependent interval, confirms the
// final value of every round with extra reads, records milestone crossings
// and reports health to the supervisor over its stdout.
//
// # Commands
//
//	robin supervise   run the supervisor, control API and round store
//	robin worker      run the worker for one target (started by supervise)
//	robin tail        print round and milestone events published on NATS
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (ROBIN_LOG_LEVEL, ROBIN_NATS_URL, ...)
//   - Config file (--config, ROBIN_CONFIG or ./robin.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// supervise stops every worker on SIGINT or SIGTERM within the configured
// shutdown timeout, then stops the API and flushes the round store. A worker
// receiving SIGTERM drains its active round first; a second signal stops it
// immediately.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/UVuruna/Robin-sub000/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "robin",
	Short: "Supervised adaptive round monitoring",
	Long: `Robin runs one worker process per monitored target. Workers sample a
numeric signal, detect round starts and confirmed ends, and record
milestone crossings. The supervisor restarts crashed or hung workers and
serves a control API.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $ROBIN_CONFIG or ./robin.yaml)")
	rootCmd.AddCommand(superviseCmd, workerCmd, tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("robin failed")
		os.Exit(1)
	}
}
