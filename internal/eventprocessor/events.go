// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// SchemaVersion is the current event schema version.
// Increment this when making breaking changes to Event.
const SchemaVersion = 1

// Event types.
const (
	EventRoundEnded       = "round.ended"
	EventMilestoneCrossed = "milestone.crossed"
)

// Event is the envelope published for round and milestone events.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Target        string    `json:"target"`
	RoundID       uint64    `json:"round_id"`
	Timestamp     time.Time `json:"timestamp"`

	Round     *models.RoundRecord  `json:"round,omitempty"`
	Milestone *models.MilestoneHit `json:"milestone,omitempty"`
}

// NewRoundEvent wraps a finished round.
func NewRoundEvent(rec models.RoundRecord) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		Type:          EventRoundEnded,
		Target:        rec.Target,
		RoundID:       rec.ID,
		Timestamp:     rec.EndedAt,
		Round:         &rec,
	}
}

// NewMilestoneEvent wraps a milestone crossing.
func NewMilestoneEvent(ev models.MilestoneEvent) *Event {
	hit := ev.Hit.Clone()
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		Type:          EventMilestoneCrossed,
		Target:        ev.Target,
		RoundID:       ev.RoundID,
		Timestamp:     hit.Timestamp,
		Milestone:     &hit,
	}
}

// Topic returns the NATS subject of the event under prefix.
func (e *Event) Topic(prefix string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.Target, e.Type)
}

// Validate checks required fields and payload consistency.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if e.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidEvent)
	}
	switch e.Type {
	case EventRoundEnded:
		if e.Round == nil {
			return fmt.Errorf("%w: round payload missing", ErrInvalidEvent)
		}
	case EventMilestoneCrossed:
		if e.Milestone == nil {
			return fmt.Errorf("%w: milestone payload missing", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}
