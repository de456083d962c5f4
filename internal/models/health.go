// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package models

import "time"

// HealthMetrics are the lightweight counters carried by a health sample.
type HealthMetrics struct {
	Ticks          uint64        `json:"ticks"`
	Misses         uint64        `json:"misses"`
	RoundID        uint64        `json:"round_id"`
	Streak         int           `json:"streak"`
	Interval       time.Duration `json:"interval"`
	TickLatency    time.Duration `json:"tick_latency"`
	DroppedSamples uint64        `json:"dropped_samples"`
	PendingEvents  int           `json:"pending_events"`
}

// HealthSample is a transient liveness report from a worker. It is never persisted.
type HealthSample struct {
	Target    string        `json:"target"`
	Phase     Phase         `json:"phase"`
	Metrics   HealthMetrics `json:"metrics"`
	Timestamp time.Time     `json:"timestamp"`
}
