// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/clock"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

type recordingPersister struct {
	records []models.RoundRecord
}

func (p *recordingPersister) PersistRound(rec models.RoundRecord) {
	p.records = append(p.records, rec)
}

type stubAux struct {
	values map[string]float64
	err    error
	calls  int
}

func (s *stubAux) ReadAuxiliary(_ context.Context, _ string) (map[string]float64, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.values, s.values != nil, nil
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(fc)}, opts...)
	return New(Config{
		Target:     "table-1",
		Milestones: []float64{1.5, 2.0, 10.0},
		Tolerance:  0.05,
	}, opts...), fc
}

func TestMilestonesFireOncePerRound(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.StartRound(); err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}

	var all []models.MilestoneHit
	for _, v := range []float64{1.2, 1.5, 1.7, 1.6, 2.01, 2.01, 2.5, 1.9} {
		all = append(all, tr.OnCrossing(ctx, v)...)
	}

	if len(all) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(all), all)
	}
	if all[0].Milestone != 1.5 || all[0].Value != 1.5 || all[0].OutOfTolerance {
		t.Errorf("unexpected first hit %+v", all[0])
	}
	if all[1].Milestone != 2.0 || all[1].Value != 2.01 || all[1].OutOfTolerance {
		t.Errorf("unexpected second hit %+v", all[1])
	}
	if got := tr.Fired(); len(got) != 2 {
		t.Errorf("Fired() = %v", got)
	}
	if tr.AllFired() {
		t.Error("AllFired() should be false before 10.0")
	}
}

func TestMilestoneHitsAreOrderedForAnySequence(t *testing.T) {
	milestones := []float64{1.5, 2.0, 3.0, 5.0, 10.0}

	tests := []struct {
		name     string
		readings []float64
	}{
		{"rising", []float64{1.0, 1.4, 1.5, 1.9, 2.2, 2.9, 3.1, 4.8, 5.0, 9.9, 10.0}},
		{"dipping", []float64{1.6, 1.2, 1.0, 2.1, 1.7, 2.0, 3.3, 2.5, 5.2, 4.0}},
		{"jump past several", []float64{1.0, 4.2, 4.1, 12.0}},
		{"single huge value", []float64{50}},
		{"never reaches first", []float64{0.1, 1.0, 1.49, 1.2}},
		{"flat on milestone", []float64{2.0, 2.0, 2.0, 2.0}},
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		readings := make([]float64, 5+rng.Intn(30))
		for j := range readings {
			readings[j] = rng.Float64() * 12
		}
		tests = append(tests, struct {
			name     string
			readings []float64
		}{fmt.Sprintf("random-%02d", i), readings})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
			tr := New(Config{Target: "table-1", Milestones: milestones, Tolerance: 0.05}, WithClock(fc))
			if _, err := tr.StartRound(); err != nil {
				t.Fatalf("StartRound() error = %v", err)
			}

			var hits []models.MilestoneHit
			peak := 0.0
			for _, v := range tt.readings {
				hits = append(hits, tr.OnCrossing(context.Background(), v)...)
				peak = math.Max(peak, v)
			}

			seen := make(map[float64]bool)
			for i, h := range hits {
				if seen[h.Milestone] {
					t.Fatalf("milestone %v fired twice: %+v", h.Milestone, hits)
				}
				seen[h.Milestone] = true
				if h.Value < h.Milestone {
					t.Errorf("hit %d fired below its milestone: %+v", i, h)
				}
				if i > 0 {
					if h.Milestone <= hits[i-1].Milestone {
						t.Errorf("milestones out of order: %v after %v", h.Milestone, hits[i-1].Milestone)
					}
					if h.Value < hits[i-1].Value {
						t.Errorf("observed values decreased: %v after %v", h.Value, hits[i-1].Value)
					}
				}
			}
			for _, m := range milestones {
				if m <= peak && !seen[m] {
					t.Errorf("milestone %v not fired although %v was observed", m, peak)
				}
			}
		})
	}
}

func TestMultipleMilestonesInOneReading(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	_, _ = tr.StartRound()

	hits := tr.OnCrossing(ctx, 12.0)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	prev := 0.0
	for _, h := range hits {
		if h.Milestone <= prev {
			t.Errorf("milestones not ascending: %+v", hits)
		}
		prev = h.Milestone
		if !h.OutOfTolerance {
			t.Errorf("milestone %v at 12.0 should be out of tolerance", h.Milestone)
		}
	}
	if !tr.AllFired() {
		t.Error("AllFired() should be true")
	}
}

func TestOutOfToleranceIsRecorded(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, _ = tr.StartRound()

	hits := tr.OnCrossing(context.Background(), 1.6)
	if len(hits) != 1 || !hits[0].OutOfTolerance {
		t.Fatalf("expected one out-of-tolerance hit, got %+v", hits)
	}

	rec, err := tr.EndRound(1.6)
	if err != nil {
		t.Fatalf("EndRound() error = %v", err)
	}
	if len(rec.Milestones) != 1 || !rec.Milestones[0].OutOfTolerance {
		t.Errorf("record lost the flagged milestone: %+v", rec.Milestones)
	}
}

func TestStartRoundResetsMilestones(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	id1, _ := tr.StartRound()
	tr.OnCrossing(ctx, 2.5)
	if _, err := tr.EndRound(2.5); err != nil {
		t.Fatal(err)
	}

	id2, _ := tr.StartRound()
	if id2 != id1+1 {
		t.Errorf("round ids not monotonic: %d then %d", id1, id2)
	}
	if len(tr.Fired()) != 0 {
		t.Errorf("fired set not reset: %v", tr.Fired())
	}
	if hits := tr.OnCrossing(ctx, 1.5); len(hits) != 1 {
		t.Errorf("milestone should fire again in a new round, got %+v", hits)
	}
}

func TestStartRoundWhileActive(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, _ = tr.StartRound()
	if _, err := tr.StartRound(); !errors.Is(err, ErrRoundActive) {
		t.Errorf("expected ErrRoundActive, got %v", err)
	}
}

func TestEndRoundWithoutStart(t *testing.T) {
	tr, _ := newTestTracker(t)
	if _, err := tr.EndRound(1.0); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("expected ErrNoActiveRound, got %v", err)
	}
}

func TestEndRoundPersistsAndRecords(t *testing.T) {
	p := &recordingPersister{}
	aux := &stubAux{values: map[string]float64{"players": 42}}
	tr, fc := newTestTracker(t, WithPersister(p), WithAuxReader(aux))
	ctx := context.Background()

	_, _ = tr.StartRound()
	fc.Advance(3 * time.Second)
	tr.OnCrossing(ctx, 1.52)
	fc.Advance(2 * time.Second)
	tr.MarkLowConfidence()
	rec, err := tr.EndRound(1.87)
	if err != nil {
		t.Fatal(err)
	}

	if rec.DurationSeconds != 5 {
		t.Errorf("DurationSeconds = %v, want 5", rec.DurationSeconds)
	}
	if !rec.LowConfidence {
		t.Error("expected low confidence flag")
	}
	if rec.Milestones[0].Aux["players"] != 42 {
		t.Errorf("aux not recorded: %+v", rec.Milestones[0])
	}
	if len(p.records) != 1 || p.records[0].FinalValue != 1.87 {
		t.Errorf("persister got %+v", p.records)
	}
	if tr.History().Len() != 1 {
		t.Errorf("history len = %d", tr.History().Len())
	}
	if tr.Active() {
		t.Error("tracker still active after EndRound")
	}
}

func TestAuxFailureDoesNotBlockMilestone(t *testing.T) {
	aux := &stubAux{err: errors.New("ocr timeout")}
	tr, _ := newTestTracker(t, WithAuxReader(aux))
	_, _ = tr.StartRound()

	hits := tr.OnCrossing(context.Background(), 1.5)
	if len(hits) != 1 {
		t.Fatalf("expected hit despite aux failure, got %+v", hits)
	}
	if hits[0].Aux != nil {
		t.Errorf("aux should be absent, got %v", hits[0].Aux)
	}
	if aux.calls != 1 {
		t.Errorf("aux read should not be retried, calls = %d", aux.calls)
	}
}

func TestStartRoundID(t *testing.T) {
	tr := New(Config{Target: "t", StartRoundID: 41})
	id, _ := tr.StartRound()
	if id != 42 {
		t.Errorf("first round id = %d, want 42", id)
	}
}
