// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package models

import (
	"maps"
	"time"
)

// MilestoneHit records the first reading at or above a configured milestone.
type MilestoneHit struct {
	Milestone      float64            `json:"milestone"`
	Value          float64            `json:"value"`
	Timestamp      time.Time          `json:"timestamp"`
	Aux            map[string]float64 `json:"aux,omitempty"`
	OutOfTolerance bool               `json:"out_of_tolerance"`
}

// Clone returns a deep copy of the hit.
func (h MilestoneHit) Clone() MilestoneHit {
	if h.Aux != nil {
		h.Aux = maps.Clone(h.Aux)
	}
	return h
}

// RoundRecord is the immutable summary of a confirmed round.
type RoundRecord struct {
	ID              uint64         `json:"id"`
	Target          string         `json:"target"`
	FinalValue      float64        `json:"final_value"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Milestones      []MilestoneHit `json:"milestones"`
	LowConfidence   bool           `json:"low_confidence"`
}

// Clone returns a deep copy of the record.
func (r *RoundRecord) Clone() RoundRecord {
	c := *r
	if r.Milestones != nil {
		c.Milestones = make([]MilestoneHit, len(r.Milestones))
		for i, h := range r.Milestones {
			c.Milestones[i] = h.Clone()
		}
	}
	return c
}

// MilestoneEvent announces a milestone crossing while a round is in progress.
type MilestoneEvent struct {
	Target  string       `json:"target"`
	RoundID uint64       `json:"round_id"`
	Hit     MilestoneHit `json:"hit"`
}
