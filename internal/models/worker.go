// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package models

import (
	"fmt"
	"time"
)

// WorkerState is the supervisor-side lifecycle state of a worker process.
type WorkerState uint8

const (
	WorkerStopped WorkerState = iota
	WorkerStarting
	WorkerRunning
	WorkerStopping
	WorkerCrashed
	WorkerRestarting
)

var workerStateNames = [...]string{
	WorkerStopped:    "STOPPED",
	WorkerStarting:   "STARTING",
	WorkerRunning:    "RUNNING",
	WorkerStopping:   "STOPPING",
	WorkerCrashed:    "CRASHED",
	WorkerRestarting: "RESTARTING",
}

func (s WorkerState) String() string {
	if int(s) < len(workerStateNames) {
		return workerStateNames[s]
	}
	return fmt.Sprintf("WorkerState(%d)", uint8(s))
}

// MarshalText encodes the state by name.
func (s WorkerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *WorkerState) UnmarshalText(text []byte) error {
	for i, name := range workerStateNames {
		if name == string(text) {
			*s = WorkerState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown worker state %q", text)
}

// AllWorkerStates lists every lifecycle state, in declaration order.
func AllWorkerStates() []WorkerState {
	return []WorkerState{WorkerStopped, WorkerStarting, WorkerRunning, WorkerStopping, WorkerCrashed, WorkerRestarting}
}

// WorkerStatus is a point-in-time copy of a supervised worker's handle.
type WorkerStatus struct {
	Name           string      `json:"name"`
	State          WorkerState `json:"state"`
	PID            int         `json:"pid,omitempty"`
	StartedAt      time.Time   `json:"started_at,omitempty"`
	RestartCount   int         `json:"restart_count"`
	MaxRestarts    int         `json:"max_restarts"`
	CrashCount     int         `json:"crash_count"`
	LastError      string      `json:"last_error,omitempty"`
	LastHealthAt   time.Time   `json:"last_health_at,omitempty"`
	NextRestartAt  time.Time   `json:"next_restart_at,omitempty"`
	CPUPercent     float64     `json:"cpu_percent"`
	RSSBytes       uint64      `json:"rss_bytes"`
	NeedsAttention bool        `json:"needs_attention"`
}
