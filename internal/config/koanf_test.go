// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
supervisor:
  max_workers: 4
  health_interval: 250ms
worker_defaults:
  tracking:
    milestones: [1.5, 2.0]
targets:
  - name: table-1
    source:
      kind: http
      url: http://127.0.0.1:9000/value
  - name: table-2
    source:
      kind: replay
      script: table-2.yaml
    restart:
      max_restarts: 9
    tracking:
      milestones: [3.0]
      tolerance: 0.1
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robin.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Supervisor.MaxWorkers != 32 {
		t.Errorf("MaxWorkers = %d, want 32", cfg.Supervisor.MaxWorkers)
	}
	if cfg.WorkerDefaults.Tracking.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.WorkerDefaults.Tracking.HistorySize)
	}
	if cfg.WorkerDefaults.Tracking.ConfirmReads != 3 {
		t.Errorf("ConfirmReads = %d, want 3", cfg.WorkerDefaults.Tracking.ConfirmReads)
	}
	if len(cfg.Targets) != 0 {
		t.Errorf("expected no targets, got %d", len(cfg.Targets))
	}
}

func TestLoadMergesTargetsOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Supervisor.HealthInterval != 250*time.Millisecond {
		t.Errorf("HealthInterval = %s", cfg.Supervisor.HealthInterval)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
	}

	t1, ok := cfg.Target("table-1")
	if !ok {
		t.Fatal("table-1 not found")
	}
	if t1.Restart.MaxRestarts != 5 || !t1.Restart.AutoRestart {
		t.Errorf("table-1 restart policy not defaulted: %+v", t1.Restart)
	}
	if got := t1.Tracking.Milestones; len(got) != 2 || got[0] != 1.5 || got[1] != 2.0 {
		t.Errorf("table-1 milestones = %v, want worker_defaults", got)
	}
	if t1.Intervals.Active != 100*time.Millisecond {
		t.Errorf("table-1 active interval = %s", t1.Intervals.Active)
	}

	t2, _ := cfg.Target("table-2")
	if t2.Restart.MaxRestarts != 9 {
		t.Errorf("table-2 max_restarts = %d, want 9", t2.Restart.MaxRestarts)
	}
	if t2.Restart.Delay != 2*time.Second {
		t.Errorf("table-2 restart delay = %s, want default 2s", t2.Restart.Delay)
	}
	if got := t2.Tracking.Milestones; len(got) != 1 || got[0] != 3.0 {
		t.Errorf("table-2 milestones = %v, want [3]", got)
	}
	if t2.Tracking.Tolerance != 0.1 || t2.Tracking.ConfirmReads != 3 {
		t.Errorf("table-2 tracking = %+v", t2.Tracking)
	}
}

func TestTargetReturnsCopy(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t1, _ := cfg.Target("table-1")
	t1.Tracking.Milestones[0] = 99

	again, _ := cfg.Target("table-1")
	if again.Tracking.Milestones[0] != 1.5 {
		t.Error("Target() exposed internal milestone slice")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROBIN_LOG_LEVEL", "warn")
	t.Setenv("ROBIN_HTTP_PORT", "9999")
	t.Setenv("ROBIN_WORKER_COMMAND", "sleep, 60")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if got := cfg.Supervisor.WorkerCommand; len(got) != 2 || got[0] != "sleep" || got[1] != "60" {
		t.Errorf("WorkerCommand = %v", got)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "descending milestones",
			yaml:    "targets:\n  - name: a\n    source: {kind: replay, script: s.yaml}\n    tracking: {milestones: [2.0, 1.5]}\n",
			wantErr: "ascending",
		},
		{
			name:    "duplicate names",
			yaml:    "targets:\n  - name: a\n    source: {kind: replay, script: s.yaml}\n  - name: a\n    source: {kind: replay, script: s.yaml}\n",
			wantErr: "duplicate",
		},
		{
			name:    "http source without url",
			yaml:    "targets:\n  - name: a\n",
			wantErr: "url",
		},
		{
			name:    "too many targets",
			yaml:    "supervisor: {max_workers: 1}\ntargets:\n  - name: a\n    source: {kind: replay, script: s.yaml}\n  - name: b\n    source: {kind: replay, script: s.yaml}\n",
			wantErr: "max_workers",
		},
		{
			name:    "unknown milestone in agent rule",
			yaml:    "targets:\n  - name: a\n    source: {kind: replay, script: s.yaml}\n    agents:\n      - name: bot\n        executor: {kind: log}\n        rules:\n          - {trigger: milestone, milestone: 7, action: cashout}\n",
			wantErr: "unknown milestone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	if got := envTransformFunc("ROBIN_NATS_URL"); got != "nats.url" {
		t.Errorf("got %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped variable should be skipped, got %q", got)
	}
}
