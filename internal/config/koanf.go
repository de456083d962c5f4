// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"robin.yaml",
	"robin.yml",
	"/etc/robin/robin.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ROBIN_CONFIG"

// DefaultWorkerConfig returns the defaults every target is layered over.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Restart: RestartPolicy{
			AutoRestart:       true,
			MaxRestarts:       5,
			Delay:             2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxDelay:          time.Minute,
		},
		HealthCheckInterval: time.Second,
		HangTimeout:         0,
		ReadTimeout:         500 * time.Millisecond,
		Source: SourceConfig{
			Kind: "http",
		},
		Tracking: TrackingConfig{
			Milestones:     []float64{1.5, 2.0, 10.0},
			Tolerance:      0.05,
			ConfirmReads:   3,
			ConfirmSpacing: 100 * time.Millisecond,
			HistorySize:    100,
		},
		Intervals: IntervalTable{
			Unknown:    time.Second,
			Waiting:    time.Second,
			Active:     100 * time.Millisecond,
			ActiveLate: 500 * time.Millisecond,
			Ended:      2 * time.Second,
		},
		Drain: DrainConfig{
			Enabled: true,
			Timeout: 30 * time.Second,
		},
		HealthBuffer: 16,
		EventBuffer:  64,
	}
}

// defaultConfig returns a Config with all default values.
func defaultConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			MaxWorkers:      32,
			HealthInterval:  500 * time.Millisecond,
			StopTimeout:     10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			KillGrace:       3 * time.Second,
			AutoStart:       true,
		},
		WorkerDefaults: DefaultWorkerConfig(),
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			Host:           "127.0.0.1",
			Port:           4222,
			SubjectPrefix:  "robin",
			PublishTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Enabled:       false,
			WALPath:       "/data/robin/wal",
			DuckDBPath:    "/data/robin/rounds.duckdb",
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8470,
			Timeout:         15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, the config file and the
// environment, merges each target over worker_defaults and validates the
// result. An empty path searches ROBIN_CONFIG and DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	targets, err := mergeTargets(k, cfg.WorkerDefaults)
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// mergeTargets decodes every entry of "targets" on top of a copy of the
// worker defaults, so unset keys keep their default values.
func mergeTargets(k *koanf.Koanf, defaults WorkerConfig) ([]WorkerConfig, error) {
	raw := k.Slices("targets")
	targets := make([]WorkerConfig, 0, len(raw))
	for i, tk := range raw {
		wc := defaults.Clone()
		// Lists replace the default instead of being merged element-wise.
		if tk.Exists("tracking.milestones") {
			wc.Tracking.Milestones = nil
		}
		if tk.Exists("agents") {
			wc.Agents = nil
		}
		if err := tk.UnmarshalWithConf("", &wc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target %d: %w", i, err)
		}
		targets = append(targets, wc)
	}
	return targets, nil
}

// findConfigFile returns the first config file that exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"supervisor.worker_command",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Supervisor
	"robin_max_workers":      "supervisor.max_workers",
	"robin_health_interval":  "supervisor.health_interval",
	"robin_stop_timeout":     "supervisor.stop_timeout",
	"robin_shutdown_timeout": "supervisor.shutdown_timeout",
	"robin_kill_grace":       "supervisor.kill_grace",
	"robin_auto_start":       "supervisor.auto_start",
	"robin_worker_command":   "supervisor.worker_command",

	// NATS
	"robin_nats_enabled":        "nats.enabled",
	"robin_nats_url":            "nats.url",
	"robin_nats_embedded":       "nats.embedded_server",
	"robin_nats_host":           "nats.host",
	"robin_nats_port":           "nats.port",
	"robin_nats_subject_prefix": "nats.subject_prefix",

	// Store
	"robin_store_enabled":        "store.enabled",
	"robin_wal_path":             "store.wal_path",
	"robin_duckdb_path":          "store.duckdb_path",
	"robin_store_batch_size":     "store.batch_size",
	"robin_store_flush_interval": "store.flush_interval",

	// HTTP server
	"robin_http_enabled":      "server.enabled",
	"robin_http_host":         "server.host",
	"robin_http_port":         "server.port",
	"robin_http_timeout":      "server.timeout",
	"robin_cors_origins":      "server.cors_origins",
	"robin_rate_limit_reqs":   "server.rate_limit_reqs",
	"robin_rate_limit_window": "server.rate_limit_window",

	// Logging
	"robin_log_level":  "logging.level",
	"robin_log_format": "logging.format",
	"robin_log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Unmapped variables are skipped so unrelated environment does not leak
// into the configuration.
//
//   - ROBIN_LOG_LEVEL -> logging.level
//   - ROBIN_NATS_URL -> nats.url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile invokes callback whenever the file at path changes.
// The caller is responsible for reloading and applying the configuration.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
