// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package tracker

import (
	"sync"
	"testing"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

func TestHistoryCapEvictsOldest(t *testing.T) {
	h := NewHistory(DefaultHistorySize)

	for i := 1; i <= 250; i++ {
		evicted := h.Append(models.RoundRecord{ID: uint64(i)})
		if wantEvict := i > DefaultHistorySize; evicted != wantEvict {
			t.Fatalf("append %d: evicted = %v, want %v", i, evicted, wantEvict)
		}
	}

	list := h.List()
	if len(list) != 100 {
		t.Fatalf("len = %d, want 100", len(list))
	}
	if list[0].ID != 151 || list[99].ID != 250 {
		t.Errorf("expected ids 151..250, got %d..%d", list[0].ID, list[99].ID)
	}
	for i := 1; i < len(list); i++ {
		if list[i].ID != list[i-1].ID+1 {
			t.Fatalf("history out of order at %d", i)
		}
	}
	if last, ok := h.Last(); !ok || last.ID != 250 {
		t.Errorf("Last() = %d, %v", last.ID, ok)
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	h := NewHistory(2)
	h.Append(models.RoundRecord{ID: 1, Milestones: []models.MilestoneHit{{Milestone: 2}}})

	list := h.List()
	list[0].Milestones[0].Milestone = 99

	if again := h.List(); again[0].Milestones[0].Milestone != 2 {
		t.Error("List() exposed stored record")
	}
}

func TestHistoryConcurrentAccess(t *testing.T) {
	h := NewHistory(10)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Append(models.RoundRecord{ID: uint64(i)})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if n := len(h.List()); n > 10 {
					t.Errorf("history exceeded capacity: %d", n)
				}
			}
		}()
	}
	wg.Wait()
}
