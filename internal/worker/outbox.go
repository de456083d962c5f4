// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// Sink receives round and milestone events off the tick loop.
// Persistence and publishing collaborators both implement it.
type Sink interface {
	HandleRound(ctx context.Context, rec models.RoundRecord) error
	HandleMilestone(ctx context.Context, ev models.MilestoneEvent) error
}

type outboxEvent struct {
	round     *models.RoundRecord
	milestone *models.MilestoneEvent
}

// Outbox queues round and milestone events for a dispatcher goroutine.
// Enqueueing never blocks: when the channel is full the event is kept in a
// pending queue and retried on later ticks, preserving order.
//
// Enqueue, Retry, Pending and Close must be called from the owning worker
// goroutine; Run runs on its own goroutine.
type Outbox struct {
	ch          chan outboxEvent
	pending     []outboxEvent
	sinks       []Sink
	sinkTimeout time.Duration
	logger      zerolog.Logger
}

// NewOutbox creates an outbox with a channel of size events.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewOutbox(size int, sinkTimeout time.Duration, logger zerolog.Logger, sinks ...Sink) *Outbox {
	if size < 1 {
		size = 1
	}
	return &Outbox{
		ch:          make(chan outboxEvent, size),
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		logger:      logger,
	}
}

// PersistRound queues a finished round. It never blocks.
func (o *Outbox) PersistRound(rec models.RoundRecord) {
	o.enqueue(outboxEvent{round: &rec})
}

// EnqueueMilestone queues a milestone event. It never blocks.
func (o *Outbox) EnqueueMilestone(ev models.MilestoneEvent) {
	o.enqueue(outboxEvent{milestone: &ev})
}

func (o *Outbox) enqueue(ev outboxEvent) {
	o.Retry()
	if len(o.pending) == 0 {
		select {
		case o.ch <- ev:
			return
		default:
		}
	}
	o.pending = append(o.pending, ev)
	o.logger.Warn().Int("pending", len(o.pending)).Msg("Event channel full, event queued for retry")
}

// Retry moves pending events into the channel while it has room.
func (o *Outbox) Retry() {
	for len(o.pending) > 0 {
		select {
		case o.ch <- o.pending[0]:
			o.pending[0] = outboxEvent{}
			o.pending = o.pending[1:]
		default:
			return
		}
	}
}

// Pending returns the number of events waiting for channel space.
func (o *Outbox) Pending() int {
	return len(o.pending)
}

// Close flushes pending events into the channel until ctx is done and
// closes it, letting Run finish.
func (o *Outbox) Close(ctx context.Context) {
	for _, ev := range o.pending {
		select {
		case o.ch <- ev:
		case <-ctx.Done():
			o.logger.Warn().Int("dropped", len(o.pending)).Msg("Outbox flush timed out, dropping pending events")
			o.pending = nil
			close(o.ch)
			return
		}
	}
	o.pending = nil
	close(o.ch)
}

// Run delivers events to every sink until the outbox is closed.
func (o *Outbox) Run(ctx context.Context) {
	for ev := range o.ch {
		for _, s := range o.sinks {
			o.deliver(ctx, s, ev)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, s Sink, ev outboxEvent) {
	if o.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.sinkTimeout)
		defer cancel()
	}

	var err error
	switch {
	case ev.round != nil:
		err = s.HandleRound(ctx, *ev.round)
	case ev.milestone != nil:
		err = s.HandleMilestone(ctx, *ev.milestone)
	}
	if err != nil {
		o.logger.Warn().Err(err).Msg("Event delivery failed")
	}
}
