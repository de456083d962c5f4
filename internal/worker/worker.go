// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package worker implements the per-target sampling loop. Each tick reads
// the signal once, advances the phase state machine, fires milestones,
// confirms final values and picks the next sampling interval from the
// phase.
//
// All mutable state is owned by the goroutine calling Tick or Run. Other
// goroutines observe the worker through Snapshot, Subscribe and the
// health channel, which only ever hand out copies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/clock"
	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/tracker"
)

// ErrTransientRead wraps a failed signal read. It is logged and counted,
// never propagated out of the tick loop.
var ErrTransientRead = errors.New("transient read failure")

const (
	// flushTimeout bounds how long Run waits for queued events on exit.
	flushTimeout = 5 * time.Second

	sinkTimeout = 5 * time.Second
)

// SignalReader reads the primary signal of a target.
type SignalReader interface {
	ReadSignal(ctx context.Context, target string) (value float64, ok bool, err error)
}

// Option configures optional Worker collaborators.
type Option func(*Worker)

// WithClock sets the time source used for intervals, confirmation spacing
// and timestamps.
func WithClock(c clock.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithAuxReader sets the auxiliary data source read on milestone hits.
func WithAuxReader(r tracker.AuxReader) Option {
	return func(w *Worker) { w.aux = r }
}

// WithSinks adds collaborators that receive round and milestone events.
func WithSinks(sinks ...Sink) Option {
	return func(w *Worker) { w.sinks = append(w.sinks, sinks...) }
}

// WithStartRoundID continues round numbering after lastID.
func WithStartRoundID(lastID uint64) Option {
	return func(w *Worker) { w.startRoundID = lastID }
}

// Worker samples one target.
type Worker struct {
	cfg          config.WorkerConfig
	reader       SignalReader
	aux          tracker.AuxReader
	clock        clock.Clock
	sinks        []Sink
	startRoundID uint64
	logger       zerolog.Logger

	tracker   *tracker.Tracker
	confirmer *tracker.Confirmer
	outbox    *Outbox
	health    *HealthReporter
	snapshots snapshotHub
	current   atomic.Pointer[models.RuntimeState]

	// Owned by the tick goroutine.
	state         models.RuntimeState
	stale         models.Reading
	drainDeadline time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a worker for the target described by cfg.
func New(cfg config.WorkerConfig, reader SignalReader, opts ...Option) *Worker {
	w := &Worker{
		cfg:      cfg.Clone(),
		reader:   reader,
		clock:    clock.Real{},
		logger:   logging.ForTarget("worker", cfg.Name),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.outbox = NewOutbox(cfg.EventBuffer, sinkTimeout, w.logger, w.sinks...)
	w.health = NewHealthReporter(cfg.HealthBuffer)
	w.confirmer = tracker.NewConfirmer(cfg.Tracking.ConfirmReads, cfg.Tracking.ConfirmSpacing, w.clock)

	trackerOpts := []tracker.Option{
		tracker.WithClock(w.clock),
		tracker.WithPersister(w.outbox),
	}
	if w.aux != nil {
		trackerOpts = append(trackerOpts, tracker.WithAuxReader(w.aux))
	}
	w.tracker = tracker.New(tracker.Config{
		Target:       cfg.Name,
		Milestones:   cfg.Tracking.Milestones,
		Tolerance:    cfg.Tracking.Tolerance,
		HistorySize:  cfg.Tracking.HistorySize,
		StartRoundID: w.startRoundID,
	}, trackerOpts...)

	w.state = models.RuntimeState{
		Target:   cfg.Name,
		Phase:    models.PhaseUnknown,
		RoundID:  w.startRoundID,
		Interval: cfg.Intervals.Unknown,
	}
	snap := w.state.Clone()
	w.current.Store(&snap)
	return w
}

// Name returns the target name.
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Tick performs one sampling step and returns the interval to wait before
// the next one.
func (w *Worker) Tick(ctx context.Context) time.Duration {
	started := w.clock.Now()
	w.state.Counters.Ticks++
	w.outbox.Retry()

	reading := w.read(ctx)
	if w.state.Phase == models.PhaseActive {
		w.stepActive(ctx, reading)
	} else {
		w.stepIdle(ctx, reading)
	}

	w.state.Interval = w.nextInterval()
	w.state.UpdatedAt = w.clock.Now()
	w.publish(w.clock.Since(started))
	return w.state.Interval
}

// read performs one signal read. Failures count as a read error and are
// reported as an absent reading.
func (w *Worker) read(ctx context.Context) models.Reading {
	if w.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.ReadTimeout)
		defer cancel()
	}

	w.state.Counters.Reads++
	v, ok, err := w.reader.ReadSignal(ctx, w.cfg.Name)
	if err != nil {
		w.state.Counters.ReadErrors++
		w.logger.Debug().Err(fmt.Errorf("%w: %w", ErrTransientRead, err)).Msg("Signal read failed")
		return models.Absent
	}
	if !ok {
		return models.Absent
	}
	return models.Value(v)
}

func (w *Worker) stepIdle(ctx context.Context, r models.Reading) {
	// The display keeps showing the last final value after a round ends.
	// Seeing it again is not the start of a new round.
	if r.Present && w.stale.Present && r.Value == w.stale.Value {
		w.setPhase(models.PhaseWaiting)
		return
	}
	w.stale = models.Absent

	if !r.Present {
		w.setPhase(models.PhaseWaiting)
		return
	}

	id, err := w.tracker.StartRound()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to start round")
		return
	}
	w.state.RoundID = id
	w.state.RoundStartedAt = w.tracker.StartedAt()
	w.state.Last = models.Absent
	w.state.Previous = models.Absent
	w.state.Streak = 0
	w.state.FiredMilestones = nil
	w.state.LowConfidence = false
	w.state.LowConfidenceCount = 0
	w.setPhase(models.PhaseActive)
	w.logger.Info().Uint64("round_id", id).Float64("value", r.Value).Msg("Round started")

	w.observe(ctx, r)
}

func (w *Worker) stepActive(ctx context.Context, r models.Reading) {
	if !r.Present {
		w.state.Counters.Misses++
		return
	}
	w.observe(ctx, r)
}

// observe records a present reading of an active round.
func (w *Worker) observe(ctx context.Context, r models.Reading) {
	w.state.Previous = w.state.Last
	w.state.Last = r
	if w.state.Previous.Present && w.state.Previous.Value == r.Value {
		w.state.Streak++
	} else {
		w.state.Streak = 1
	}

	for _, hit := range w.tracker.OnCrossing(ctx, r.Value) {
		w.logger.Info().
			Uint64("round_id", w.state.RoundID).
			Float64("milestone", hit.Milestone).
			Float64("value", hit.Value).
			Bool("out_of_tolerance", hit.OutOfTolerance).
			Msg("Milestone crossed")
		w.outbox.EnqueueMilestone(models.MilestoneEvent{
			Target:  w.cfg.Name,
			RoundID: w.state.RoundID,
			Hit:     hit,
		})
	}
	w.state.FiredMilestones = w.tracker.Fired()

	if w.state.Streak >= w.cfg.Tracking.ConfirmReads {
		w.confirm(ctx, r.Value)
	}
}

// confirm runs the finality check for candidate and ends the round when
// every confirmation read agrees.
func (w *Worker) confirm(ctx context.Context, candidate float64) {
	observed, err := w.confirmer.Confirm(ctx, candidate, w.read)
	switch {
	case err == nil:
		rec, endErr := w.tracker.EndRound(candidate)
		if endErr != nil {
			w.logger.Error().Err(endErr).Msg("Failed to end round")
			return
		}
		w.state.Counters.Confirmations++
		w.state.Counters.RoundsCompleted++
		w.state.LastEndedRound = rec.ID
		w.state.LastFinalValue = rec.FinalValue
		w.state.Streak = 0
		w.stale = models.Value(candidate)
		w.setPhase(models.PhaseEndedConfirmed)
		w.logger.Info().
			Uint64("round_id", rec.ID).
			Float64("final_value", rec.FinalValue).
			Float64("duration_seconds", rec.DurationSeconds).
			Int("milestones", len(rec.Milestones)).
			Bool("low_confidence", rec.LowConfidence).
			Msg("Round ended")

	case errors.Is(err, tracker.ErrInconsistentFinality):
		w.state.Counters.Rejections++
		w.state.LowConfidence = true
		w.state.LowConfidenceCount++
		w.tracker.MarkLowConfidence()
		ev := w.logger.Warn().
			Uint64("round_id", w.state.RoundID).
			Float64("candidate", candidate)
		if n := len(observed); n > 0 && observed[n-1].Present {
			ev = ev.Float64("observed", observed[n-1].Value)
		}
		ev.Msg("Final value not confirmed")

	default:
		w.logger.Debug().Err(err).Msg("Confirmation interrupted")
	}
}

func (w *Worker) setPhase(next models.Phase) {
	prev := w.state.Phase
	if prev == next {
		return
	}
	if !prev.CanTransitionTo(next) {
		w.logger.Error().Stringer("from", prev).Stringer("to", next).Msg("Invalid phase transition")
		return
	}
	w.state.Phase = next
	w.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("Phase changed")
}

// nextInterval picks the sampling interval for the current phase.
func (w *Worker) nextInterval() time.Duration {
	iv := w.cfg.Intervals
	switch w.state.Phase {
	case models.PhaseWaiting:
		return iv.Waiting
	case models.PhaseActive:
		if w.tracker.AllFired() {
			return iv.ActiveLate
		}
		return iv.Active
	case models.PhaseEndedConfirmed:
		return iv.Ended
	default:
		return iv.Unknown
	}
}

func (w *Worker) publish(latency time.Duration) {
	snap := w.state.Clone()
	w.current.Store(&snap)
	w.snapshots.publish(&snap)

	w.health.Report(models.HealthSample{
		Target: w.cfg.Name,
		Phase:  w.state.Phase,
		Metrics: models.HealthMetrics{
			Ticks:          w.state.Counters.Ticks,
			Misses:         w.state.Counters.Misses,
			RoundID:        w.state.RoundID,
			Streak:         w.state.Streak,
			Interval:       w.state.Interval,
			TickLatency:    latency,
			DroppedSamples: w.health.Dropped(),
			PendingEvents:  w.outbox.Pending(),
		},
		Timestamp: w.state.UpdatedAt,
	})
}

// Snapshot returns a copy of the state published by the latest tick.
func (w *Worker) Snapshot() models.RuntimeState {
	return w.current.Load().Clone()
}

// Subscribe returns a channel receiving a snapshot after every tick. A
// subscriber that falls behind skips to the newest snapshot. The channel
// is closed when Run returns.
func (w *Worker) Subscribe(buffer int) <-chan models.RuntimeState {
	return w.snapshots.subscribe(buffer)
}

// Health returns the channel health samples are delivered on.
func (w *Worker) Health() <-chan models.HealthSample {
	return w.health.C()
}

// DroppedHealthSamples returns the number of health samples dropped
// because the consumer fell behind.
func (w *Worker) DroppedHealthSamples() uint64 {
	return w.health.Dropped()
}

// History returns the finished rounds kept by this worker, oldest first.
func (w *Worker) History() []models.RoundRecord {
	return w.tracker.History().List()
}

// RequestShutdown asks Run to stop. With draining enabled an active round
// keeps being sampled until it ends or the drain timeout passes.
func (w *Worker) RequestShutdown() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Run ticks until ctx is cancelled or a requested shutdown completes.
// Queued events are flushed before it returns.
func (w *Worker) Run(ctx context.Context) error {
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		w.outbox.Run(dispatchCtx)
	}()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		w.outbox.Close(flushCtx)
		select {
		case <-dispatched:
		case <-flushCtx.Done():
			cancelDispatch()
			<-dispatched
		}
		cancelDispatch()
		w.snapshots.close()
	}()

	w.logger.Info().
		Stringer("phase", w.state.Phase).
		Uint64("round_id", w.state.RoundID).
		Msg("Worker started")

	shutdown := w.shutdown
	for {
		if w.shutdownDone() {
			w.logger.Info().Uint64("rounds_completed", w.state.Counters.RoundsCompleted).Msg("Worker stopped")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		interval := w.Tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			// Observed once; further waits use the interval only.
			shutdown = nil
		case <-w.clock.After(interval):
		}
	}
}

// shutdownDone reports whether a requested shutdown may complete now.
func (w *Worker) shutdownDone() bool {
	select {
	case <-w.shutdown:
	default:
		return false
	}

	if w.state.Phase != models.PhaseActive || !w.cfg.Drain.Enabled {
		return true
	}

	now := w.clock.Now()
	if w.drainDeadline.IsZero() {
		w.drainDeadline = now.Add(w.cfg.Drain.Timeout)
		w.logger.Info().
			Uint64("round_id", w.state.RoundID).
			Dur("timeout", w.cfg.Drain.Timeout).
			Msg("Draining active round before shutdown")
	}
	if !now.Before(w.drainDeadline) {
		w.logger.Warn().Uint64("round_id", w.state.RoundID).Msg("Drain timeout reached, stopping mid-round")
		return true
	}
	return false
}
