// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package uplink carries worker output to the supervisor. A worker process
// writes one JSON frame per line to its stdout; the supervisor decodes the
// stream and dispatches frames to its handlers.
package uplink

import (
	"github.com/UVuruna/Robin-sub000/internal/models"
)

// FrameType identifies the payload of a frame.
type FrameType string

const (
	FrameHealth    FrameType = "health"
	FrameSnapshot  FrameType = "snapshot"
	FrameRound     FrameType = "round"
	FrameMilestone FrameType = "milestone"
)

// Frame is one line of the uplink stream. Exactly one payload field is set,
// matching Type.
type Frame struct {
	Type   FrameType `json:"type"`
	Target string    `json:"target"`

	Health    *models.HealthSample   `json:"health,omitempty"`
	Snapshot  *models.RuntimeState   `json:"snapshot,omitempty"`
	Round     *models.RoundRecord    `json:"round,omitempty"`
	Milestone *models.MilestoneEvent `json:"milestone,omitempty"`
}

// Valid reports whether the payload matching Type is present.
func (f *Frame) Valid() bool {
	if f.Target == "" {
		return false
	}
	switch f.Type {
	case FrameHealth:
		return f.Health != nil
	case FrameSnapshot:
		return f.Snapshot != nil
	case FrameRound:
		return f.Round != nil
	case FrameMilestone:
		return f.Milestone != nil
	default:
		return false
	}
}

// Handler consumes decoded frames.
type Handler interface {
	HandleFrame(f Frame)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(f Frame)

// HandleFrame calls fn(f).
func (fn HandlerFunc) HandleFrame(f Frame) { fn(f) }

// MultiHandler fans a frame out to several handlers in order.
type MultiHandler []Handler

// HandleFrame passes f to every handler.
func (m MultiHandler) HandleFrame(f Frame) {
	for _, h := range m {
		h.HandleFrame(f)
	}
}
