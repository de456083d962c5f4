// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package eventprocessor

import (
	"context"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// Sink adapts an EventPublisher to the worker's event sink.
type Sink struct {
	publisher EventPublisher
}

// NewSink creates a sink publishing through p.
func NewSink(p EventPublisher) (*Sink, error) {
	if p == nil {
		return nil, ErrNilPublisher
	}
	return &Sink{publisher: p}, nil
}

// HandleRound publishes a round.ended event.
func (s *Sink) HandleRound(ctx context.Context, rec models.RoundRecord) error {
	return s.publisher.Publish(ctx, NewRoundEvent(rec))
}

// HandleMilestone publishes a milestone.crossed event.
func (s *Sink) HandleMilestone(ctx context.Context, ev models.MilestoneEvent) error {
	return s.publisher.Publish(ctx, NewMilestoneEvent(ev))
}
