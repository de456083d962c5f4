// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package models

import "time"

// Reading is one sample of the monitored signal. Present is false when the
// source had nothing to report (display idle, read failure, timeout).
type Reading struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Value builds a present reading.
func Value(v float64) Reading {
	return Reading{Value: v, Present: true}
}

// Absent is the reading used when the source reports no value.
var Absent = Reading{}

// Equal reports strict equality of two readings.
func (r Reading) Equal(o Reading) bool {
	return r.Present == o.Present && (!r.Present || r.Value == o.Value)
}

// TickCounters are monotonic per-worker counters.
type TickCounters struct {
	Ticks           uint64 `json:"ticks"`
	Reads           uint64 `json:"reads"`
	Misses          uint64 `json:"misses"`
	ReadErrors      uint64 `json:"read_errors"`
	Confirmations   uint64 `json:"confirmations"`
	Rejections      uint64 `json:"rejections"`
	RoundsCompleted uint64 `json:"rounds_completed"`
}

// RuntimeState is the mutable state a worker keeps for its target. It is
// owned by a single worker goroutine; everyone else sees Clone copies.
type RuntimeState struct {
	Target             string        `json:"target"`
	Phase              Phase         `json:"phase"`
	RoundID            uint64        `json:"round_id"`
	Last               Reading       `json:"last"`
	Previous           Reading       `json:"previous"`
	Streak             int           `json:"streak"`
	FiredMilestones    []float64     `json:"fired_milestones"`
	RoundStartedAt     time.Time     `json:"round_started_at,omitempty"`
	LowConfidence      bool          `json:"low_confidence"`
	LowConfidenceCount int           `json:"low_confidence_count"`
	// LastEndedRound and LastFinalValue describe the most recent confirmed
	// round. They outlive the ENDED_CONFIRMED phase.
	LastEndedRound     uint64        `json:"last_ended_round,omitempty"`
	LastFinalValue     float64       `json:"last_final_value,omitempty"`
	Counters           TickCounters  `json:"counters"`
	Interval           time.Duration `json:"interval"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *RuntimeState) Clone() RuntimeState {
	c := *s
	if s.FiredMilestones != nil {
		c.FiredMilestones = make([]float64, len(s.FiredMilestones))
		copy(c.FiredMilestones, s.FiredMilestones)
	}
	return c
}

// HasFired reports whether milestone m already fired this round.
func (s *RuntimeState) HasFired(m float64) bool {
	for _, f := range s.FiredMilestones {
		if f == m {
			return true
		}
	}
	return false
}
