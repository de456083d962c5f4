// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package config loads Robin configuration with Koanf v2.
//
// Configuration Loading Order:
//  1. Defaults: built-in values for every optional setting
//  2. Config File: YAML file (--config flag, ROBIN_CONFIG, or a default path)
//  3. Environment Variables: explicit ROBIN_* mappings (see envTransformFunc)
//
// Targets are listed under "targets". Each entry is layered over
// "worker_defaults", so a target only has to name what differs:
//
//	worker_defaults:
//	  tracking:
//	    milestones: [1.5, 2.0, 10.0]
//	targets:
//	  - name: table-1
//	    source: {kind: http, url: "http://reader-1/value"}
//	  - name: table-2
//	    source: {kind: replay, script: "testdata/table-2.yaml"}
//	    restart: {max_restarts: 10}
package config

import (
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Supervisor     SupervisorConfig `koanf:"supervisor"`
	WorkerDefaults WorkerConfig     `koanf:"worker_defaults" validate:"-"`
	Targets        []WorkerConfig   `koanf:"targets" validate:"dive"`
	NATS           NATSConfig       `koanf:"nats"`
	Store          StoreConfig      `koanf:"store"`
	Server         ServerConfig     `koanf:"server"`
	Logging        LoggingConfig    `koanf:"logging"`

	// path is the file the configuration was loaded from, if any.
	path string
}

// Path returns the config file this configuration was read from.
func (c *Config) Path() string {
	return c.path
}

// Target returns the merged configuration of a named target.
func (c *Config) Target(name string) (WorkerConfig, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t.Clone(), true
		}
	}
	return WorkerConfig{}, false
}

// SupervisorConfig controls the process supervisor.
type SupervisorConfig struct {
	// MaxWorkers bounds the number of registered workers.
	MaxWorkers int `koanf:"max_workers" validate:"gte=1,lte=1024"`

	// HealthInterval is the cadence of the supervisor health loop.
	HealthInterval time.Duration `koanf:"health_interval" validate:"gt=0"`

	// StopTimeout is how long Stop and Restart wait after SIGTERM.
	StopTimeout time.Duration `koanf:"stop_timeout" validate:"gt=0"`

	// ShutdownTimeout is the single grace window shared by all workers on ShutdownAll.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// KillGrace is how long to wait for a process to be reaped after SIGKILL.
	KillGrace time.Duration `koanf:"kill_grace" validate:"gt=0"`

	// AutoStart starts every configured target when the supervisor comes up.
	AutoStart bool `koanf:"auto_start"`

	// WorkerCommand overrides the worker process command line. Empty means
	// re-executing the current binary with the worker subcommand.
	WorkerCommand []string `koanf:"worker_command"`
}

// WorkerConfig describes one monitored target and how its worker is run.
// It is immutable once registered with the supervisor.
type WorkerConfig struct {
	Name string `koanf:"name" json:"name" validate:"required,target_name"`

	Restart RestartPolicy  `koanf:"restart" json:"restart"`
	Limits  ResourceLimits `koanf:"limits" json:"limits"`

	// HealthCheckInterval is how often the health loop inspects this worker.
	HealthCheckInterval time.Duration `koanf:"health_check_interval" json:"health_check_interval" validate:"gt=0"`

	// HangTimeout kills a worker that has sent no health sample for this
	// long. Zero disables hang detection.
	HangTimeout time.Duration `koanf:"hang_timeout" json:"hang_timeout" validate:"gte=0"`

	// ReadTimeout bounds a single signal read.
	ReadTimeout time.Duration `koanf:"read_timeout" json:"read_timeout" validate:"gt=0"`

	Source    SourceConfig   `koanf:"source" json:"source"`
	Tracking  TrackingConfig `koanf:"tracking" json:"tracking"`
	Intervals IntervalTable  `koanf:"intervals" json:"intervals"`
	Drain     DrainConfig    `koanf:"drain" json:"drain"`

	// HealthBuffer and EventBuffer size the worker's outbound channels.
	HealthBuffer int `koanf:"health_buffer" json:"health_buffer" validate:"gte=1"`
	EventBuffer  int `koanf:"event_buffer" json:"event_buffer" validate:"gte=1"`

	Agents []AgentConfig `koanf:"agents" json:"agents,omitempty" validate:"dive"`
}

// Clone returns a deep copy of the configuration.
func (w WorkerConfig) Clone() WorkerConfig {
	c := w
	if w.Tracking.Milestones != nil {
		c.Tracking.Milestones = append([]float64(nil), w.Tracking.Milestones...)
	}
	if w.Source.Headers != nil {
		c.Source.Headers = make(map[string]string, len(w.Source.Headers))
		for k, v := range w.Source.Headers {
			c.Source.Headers[k] = v
		}
	}
	if w.Agents != nil {
		c.Agents = make([]AgentConfig, len(w.Agents))
		for i, a := range w.Agents {
			c.Agents[i] = a
			c.Agents[i].Rules = append([]RuleConfig(nil), a.Rules...)
		}
	}
	return c
}

// RestartPolicy controls automatic restarts after a crash.
type RestartPolicy struct {
	AutoRestart bool `koanf:"auto_restart" json:"auto_restart"`

	// MaxRestarts bounds automatic restarts until an explicit reset.
	MaxRestarts int `koanf:"max_restarts" json:"max_restarts" validate:"gte=0"`

	// Delay is the wait before the first restart attempt.
	Delay time.Duration `koanf:"delay" json:"delay" validate:"gte=0"`

	// BackoffMultiplier grows the delay for each further attempt.
	BackoffMultiplier float64 `koanf:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`

	// MaxDelay caps the grown delay. Zero means no cap.
	MaxDelay time.Duration `koanf:"max_delay" json:"max_delay" validate:"gte=0"`

	// RestartOnResourceBreach restarts a worker that exceeds its resource limits.
	RestartOnResourceBreach bool `koanf:"restart_on_resource_breach" json:"restart_on_resource_breach"`
}

// ResourceLimits are advisory per-process limits. Zero disables a check.
type ResourceLimits struct {
	MaxCPUPercent float64 `koanf:"max_cpu_percent" json:"max_cpu_percent" validate:"gte=0"`
	MaxMemoryMB   uint64  `koanf:"max_memory_mb" json:"max_memory_mb"`
}

// SourceConfig selects where a worker reads its signal from.
type SourceConfig struct {
	// Kind is "http" or "replay".
	Kind string `koanf:"kind" json:"kind" validate:"oneof=http replay"`

	// URL returns {"value": <number|null>} for the http source.
	URL string `koanf:"url" json:"url,omitempty" validate:"required_if=Kind http,omitempty,url"`

	// AuxURL optionally returns a flat object of auxiliary numbers.
	AuxURL string `koanf:"aux_url" json:"aux_url,omitempty" validate:"omitempty,url"`

	// Headers are sent with every http request.
	Headers map[string]string `koanf:"headers" json:"headers,omitempty"`

	// Script is the YAML reading script for the replay source.
	Script string `koanf:"script" json:"script,omitempty" validate:"required_if=Kind replay"`

	// Loop restarts the replay script at its end instead of holding the last reading.
	Loop bool `koanf:"loop" json:"loop"`
}

// TrackingConfig configures milestones and finality confirmation.
type TrackingConfig struct {
	// Milestones must be strictly ascending.
	Milestones []float64 `koanf:"milestones" json:"milestones" validate:"ascending"`

	// Tolerance is how far past a milestone a crossing may be observed
	// before it is flagged out of tolerance.
	Tolerance float64 `koanf:"tolerance" json:"tolerance" validate:"gte=0"`

	// ConfirmReads is K: identical readings needed to trigger confirmation
	// and additional reads the confirmation performs.
	ConfirmReads int `koanf:"confirm_reads" json:"confirm_reads" validate:"gte=1,lte=10"`

	// ConfirmSpacing separates confirmation reads.
	ConfirmSpacing time.Duration `koanf:"confirm_spacing" json:"confirm_spacing" validate:"gte=0"`

	// HistorySize caps the in-memory round history.
	HistorySize int `koanf:"history_size" json:"history_size" validate:"gte=1,lte=10000"`
}

// IntervalTable maps each phase to the sampling interval used in it.
type IntervalTable struct {
	Unknown    time.Duration `koanf:"unknown" json:"unknown" validate:"gt=0"`
	Waiting    time.Duration `koanf:"waiting" json:"waiting" validate:"gt=0"`
	Active     time.Duration `koanf:"active" json:"active" validate:"gt=0"`
	ActiveLate time.Duration `koanf:"active_late" json:"active_late" validate:"gt=0"`
	Ended      time.Duration `koanf:"ended" json:"ended" validate:"gt=0"`
}

// DrainConfig controls whether a worker finishes a round in progress on shutdown.
type DrainConfig struct {
	Enabled bool          `koanf:"enabled" json:"enabled"`
	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gte=0"`
}

// AgentConfig configures a reactive agent running beside the worker loop.
type AgentConfig struct {
	Name     string         `koanf:"name" json:"name" validate:"required"`
	Executor ExecutorConfig `koanf:"executor" json:"executor"`
	Rules    []RuleConfig   `koanf:"rules" json:"rules" validate:"dive"`
}

// ExecutorConfig selects how an agent performs actions.
type ExecutorConfig struct {
	Kind          string        `koanf:"kind" json:"kind" validate:"oneof=log http"`
	URL           string        `koanf:"url" json:"url,omitempty" validate:"required_if=Kind http,omitempty,url"`
	RatePerSecond float64       `koanf:"rate_per_second" json:"rate_per_second" validate:"gte=0"`
	Burst         int           `koanf:"burst" json:"burst" validate:"gte=0"`
	Timeout       time.Duration `koanf:"timeout" json:"timeout" validate:"gte=0"`
}

// RuleConfig maps a trigger to an action.
type RuleConfig struct {
	// Trigger is "round_start", "milestone" or "round_end".
	Trigger   string            `koanf:"trigger" json:"trigger" validate:"oneof=round_start milestone round_end"`
	Milestone float64           `koanf:"milestone" json:"milestone,omitempty"`
	Action    string            `koanf:"action" json:"action" validate:"required"`
	Params    map[string]string `koanf:"params" json:"params,omitempty"`
}

// NATSConfig configures event publishing.
type NATSConfig struct {
	// Enabled controls whether round and milestone events are published.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server workers publish to.
	URL string `koanf:"url" validate:"required_if=Enabled true"`

	// EmbeddedServer runs a NATS server inside the supervisor.
	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port" validate:"gte=0,lte=65535"`

	// SubjectPrefix is prepended to every event subject.
	SubjectPrefix string `koanf:"subject_prefix" validate:"required_if=Enabled true"`

	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration `koanf:"publish_timeout" validate:"gt=0"`
}

// StoreConfig configures durable round persistence.
type StoreConfig struct {
	Enabled bool `koanf:"enabled"`

	// WALPath is the BadgerDB directory for the round write-ahead log.
	WALPath string `koanf:"wal_path" validate:"required_if=Enabled true"`

	// DuckDBPath is the analytics database file.
	DuckDBPath string `koanf:"duckdb_path" validate:"required_if=Enabled true"`

	BatchSize     int           `koanf:"batch_size" validate:"gte=1"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=0,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error"`

	// Format is the output format: json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}
