// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package registry

import (
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

func roundFrame(target string, id uint64) uplink.Frame {
	return uplink.Frame{
		Type:   uplink.FrameRound,
		Target: target,
		Round:  &models.RoundRecord{ID: id, Target: target, FinalValue: float64(id)},
	}
}

func TestHandleFrameUpdatesState(t *testing.T) {
	r := New(10)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	snap := &models.RuntimeState{Target: "a", Phase: models.PhaseActive, RoundID: 4, FiredMilestones: []float64{1.5}}
	r.HandleFrame(uplink.Frame{Type: uplink.FrameSnapshot, Target: "a", Snapshot: snap})
	r.HandleFrame(uplink.Frame{Type: uplink.FrameHealth, Target: "a", Health: &models.HealthSample{Target: "a", Phase: models.PhaseActive}})
	r.HandleFrame(uplink.Frame{Type: uplink.FrameMilestone, Target: "a", Milestone: &models.MilestoneEvent{Target: "a"}})

	state, ok := r.State("a")
	if !ok || state.Phase != models.PhaseActive || state.RoundID != 4 {
		t.Fatalf("State() = %+v, %v", state, ok)
	}
	snap.FiredMilestones[0] = 99
	if again, _ := r.State("a"); again.FiredMilestones[0] != 1.5 {
		t.Error("registry shares the frame's snapshot")
	}

	_, at, ok := r.Health("a")
	if !ok || !at.Equal(fixed) {
		t.Errorf("Health() at = %v, ok = %v", at, ok)
	}
	if r.Milestones("a") != 1 {
		t.Errorf("Milestones() = %d", r.Milestones("a"))
	}
	if _, ok := r.State("missing"); ok {
		t.Error("State() for unknown target")
	}
}

func TestHistoryIsBoundedAndDeduplicated(t *testing.T) {
	r := New(3)
	for id := uint64(1); id <= 5; id++ {
		r.HandleFrame(roundFrame("a", id))
	}
	r.HandleFrame(roundFrame("a", 5))

	hist := r.History("a")
	if len(hist) != 3 || hist[0].ID != 3 || hist[2].ID != 5 {
		t.Fatalf("History() = %+v", hist)
	}
	if r.LastRoundID("a") != 5 {
		t.Errorf("LastRoundID() = %d", r.LastRoundID("a"))
	}
}

func TestLastRoundIDPrefersSnapshot(t *testing.T) {
	r := New(10)
	r.HandleFrame(roundFrame("a", 2))
	r.HandleFrame(uplink.Frame{Type: uplink.FrameSnapshot, Target: "a", Snapshot: &models.RuntimeState{Target: "a", RoundID: 3}})

	if got := r.LastRoundID("a"); got != 3 {
		t.Errorf("LastRoundID() = %d, want 3", got)
	}
	if got := r.LastRoundID("missing"); got != 0 {
		t.Errorf("LastRoundID(missing) = %d", got)
	}
}

func TestSeed(t *testing.T) {
	r := New(10)
	r.Seed("a", []models.RoundRecord{{ID: 7, Target: "a"}, {ID: 8, Target: "a"}})
	r.HandleFrame(roundFrame("a", 8))
	r.HandleFrame(roundFrame("a", 9))

	hist := r.History("a")
	if len(hist) != 3 || hist[0].ID != 7 || hist[2].ID != 9 {
		t.Errorf("History() after seed = %+v", hist)
	}
	if got := r.Targets(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Targets() = %v", got)
	}
}
