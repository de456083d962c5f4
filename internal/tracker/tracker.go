// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package tracker follows one target's rounds: it assigns round ids, fires
// ascending milestones at most once per round, confirms final values and
// keeps a bounded history of finished rounds.
//
// A Tracker is owned by a single worker goroutine and is not safe for
// concurrent use. Its History is.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/clock"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

var (
	// ErrNoActiveRound is returned by EndRound when no round is in progress.
	ErrNoActiveRound = errors.New("no active round")

	// ErrRoundActive is returned by StartRound when a round is already in progress.
	ErrRoundActive = errors.New("round already active")
)

// AuxReader reads optional auxiliary data recorded alongside a milestone.
type AuxReader interface {
	ReadAuxiliary(ctx context.Context, target string) (map[string]float64, bool, error)
}

// Persister receives finished round records. Implementations must not block.
type Persister interface {
	PersistRound(rec models.RoundRecord)
}

// Config configures a Tracker.
type Config struct {
	Target     string
	Milestones []float64
	Tolerance  float64

	// HistorySize caps the round history. Defaults to DefaultHistorySize.
	HistorySize int

	// StartRoundID is the id of the last round seen before this tracker
	// existed; the first round started gets StartRoundID+1.
	StartRoundID uint64
}

// Option configures optional Tracker collaborators.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithAuxReader sets the auxiliary data source.
func WithAuxReader(r AuxReader) Option {
	return func(t *Tracker) { t.aux = r }
}

// WithPersister sets the collaborator that receives finished rounds.
func WithPersister(p Persister) Option {
	return func(t *Tracker) { t.persist = p }
}

// WithHistory shares an existing history instead of allocating one.
func WithHistory(h *History) Option {
	return func(t *Tracker) { t.history = h }
}

// Tracker tracks rounds and milestones for one target.
type Tracker struct {
	cfg     Config
	clock   clock.Clock
	aux     AuxReader
	persist Persister
	history *History
	logger  zerolog.Logger

	lastID        uint64
	active        bool
	roundID       uint64
	startedAt     time.Time
	fired         []bool
	hits          []models.MilestoneHit
	lowConfidence bool
}

// New creates a Tracker. Milestones must be strictly ascending.
func New(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:    cfg,
		clock:  clock.Real{},
		lastID: cfg.StartRoundID,
		fired:  make([]bool, len(cfg.Milestones)),
		logger: logging.ForTarget("tracker", cfg.Target),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.history == nil {
		t.history = NewHistory(cfg.HistorySize)
	}
	return t
}

// StartRound begins a new round and returns its id. The fired-milestone
// set is cleared exactly here.
func (t *Tracker) StartRound() (uint64, error) {
	if t.active {
		return t.roundID, ErrRoundActive
	}
	t.lastID++
	t.roundID = t.lastID
	t.active = true
	t.startedAt = t.clock.Now()
	t.hits = nil
	t.lowConfidence = false
	for i := range t.fired {
		t.fired[i] = false
	}
	return t.roundID, nil
}

// OnCrossing fires every not-yet-fired milestone at or below value, in
// ascending order, and returns the new hits. Crossings observed more than
// the tolerance past their milestone are kept and flagged.
func (t *Tracker) OnCrossing(ctx context.Context, value float64) []models.MilestoneHit {
	if !t.active {
		return nil
	}

	var fresh []models.MilestoneHit
	for i, m := range t.cfg.Milestones {
		if t.fired[i] {
			continue
		}
		if value < m {
			break
		}
		t.fired[i] = true
		hit := models.MilestoneHit{
			Milestone:      m,
			Value:          value,
			Timestamp:      t.clock.Now(),
			Aux:            t.readAux(ctx),
			OutOfTolerance: value-m > t.cfg.Tolerance,
		}
		if hit.OutOfTolerance {
			t.logger.Warn().
				Uint64("round_id", t.roundID).
				Float64("milestone", m).
				Float64("value", value).
				Float64("tolerance", t.cfg.Tolerance).
				Msg("Milestone crossed out of tolerance")
		}
		t.hits = append(t.hits, hit)
		fresh = append(fresh, hit.Clone())
	}
	return fresh
}

// readAux reads auxiliary data once. Failures are recorded as absent.
func (t *Tracker) readAux(ctx context.Context) map[string]float64 {
	if t.aux == nil {
		return nil
	}
	values, ok, err := t.aux.ReadAuxiliary(ctx, t.cfg.Target)
	if err != nil {
		t.logger.Debug().Err(err).Msg("Auxiliary read failed")
		return nil
	}
	if !ok {
		return nil
	}
	return values
}

// MarkLowConfidence flags the current round after a rejected confirmation.
func (t *Tracker) MarkLowConfidence() {
	if t.active {
		t.lowConfidence = true
	}
}

// EndRound freezes the current round with its final value, hands the
// record to the persister, appends it to the history and resets.
func (t *Tracker) EndRound(final float64) (models.RoundRecord, error) {
	if !t.active {
		return models.RoundRecord{}, ErrNoActiveRound
	}
	now := t.clock.Now()
	rec := models.RoundRecord{
		ID:              t.roundID,
		Target:          t.cfg.Target,
		FinalValue:      final,
		StartedAt:       t.startedAt,
		EndedAt:         now,
		DurationSeconds: now.Sub(t.startedAt).Seconds(),
		Milestones:      make([]models.MilestoneHit, len(t.hits)),
		LowConfidence:   t.lowConfidence,
	}
	for i, h := range t.hits {
		rec.Milestones[i] = h.Clone()
	}

	t.active = false
	t.hits = nil
	t.lowConfidence = false

	t.history.Append(rec)
	if t.persist != nil {
		t.persist.PersistRound(rec.Clone())
	}
	return rec, nil
}

// Active reports whether a round is in progress.
func (t *Tracker) Active() bool {
	return t.active
}

// RoundID returns the current or most recent round id.
func (t *Tracker) RoundID() uint64 {
	return t.lastID
}

// StartedAt returns the start time of the current round.
func (t *Tracker) StartedAt() time.Time {
	return t.startedAt
}

// Fired returns the milestones fired in the current round, ascending.
func (t *Tracker) Fired() []float64 {
	out := make([]float64, 0, len(t.fired))
	for i, f := range t.fired {
		if f {
			out = append(out, t.cfg.Milestones[i])
		}
	}
	return out
}

// AllFired reports whether the final tracked milestone has fired.
func (t *Tracker) AllFired() bool {
	n := len(t.fired)
	return n > 0 && t.fired[n-1]
}

// History returns the round history.
func (t *Tracker) History() *History {
	return t.history
}
