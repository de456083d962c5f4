// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package registry keeps the supervisor's view of every target: the last
// health sample, the last runtime snapshot and a bounded history of
// finished rounds, all fed by worker uplink frames.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/metrics"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/tracker"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

type entry struct {
	snapshot   *models.RuntimeState
	health     *models.HealthSample
	healthAt   time.Time
	history    *tracker.History
	milestones uint64
}

// Registry is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	targets     map[string]*entry
	historySize int
	now         func() time.Time
}

// New creates a registry whose per-target history holds historySize rounds.
func New(historySize int) *Registry {
	if historySize <= 0 {
		historySize = tracker.DefaultHistorySize
	}
	return &Registry{
		targets:     make(map[string]*entry),
		historySize: historySize,
		now:         time.Now,
	}
}

// entry returns the entry for target, creating it (must be called with mu held).
func (r *Registry) entry(target string) *entry {
	e, ok := r.targets[target]
	if !ok {
		e = &entry{history: tracker.NewHistory(r.historySize)}
		r.targets[target] = e
	}
	return e
}

// HandleFrame records a worker frame.
func (r *Registry) HandleFrame(f uplink.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(f.Target)
	switch f.Type {
	case uplink.FrameHealth:
		s := *f.Health
		e.health = &s
		e.healthAt = r.now()
		metrics.RecordHealthSample(s)
	case uplink.FrameSnapshot:
		s := f.Snapshot.Clone()
		e.snapshot = &s
		metrics.RecordSnapshot(s)
	case uplink.FrameRound:
		if last, ok := e.history.Last(); ok && last.ID >= f.Round.ID {
			return
		}
		e.history.Append(f.Round.Clone())
		metrics.RecordRound(*f.Round)
	case uplink.FrameMilestone:
		e.milestones++
	}
}

// Seed preloads history for target from storage. Rounds must be oldest first.
func (r *Registry) Seed(target string, rounds []models.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(target)
	for _, rec := range rounds {
		if last, ok := e.history.Last(); ok && last.ID >= rec.ID {
			continue
		}
		e.history.Append(rec.Clone())
	}
}

// State returns the last snapshot of target.
func (r *Registry) State(target string) (models.RuntimeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.targets[target]
	if !ok || e.snapshot == nil {
		return models.RuntimeState{}, false
	}
	return e.snapshot.Clone(), true
}

// Health returns the last health sample of target and when it arrived.
func (r *Registry) Health(target string) (models.HealthSample, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.targets[target]
	if !ok || e.health == nil {
		return models.HealthSample{}, time.Time{}, false
	}
	return *e.health, e.healthAt, true
}

// History returns the finished rounds of target, oldest first.
func (r *Registry) History(target string) []models.RoundRecord {
	r.mu.RLock()
	e, ok := r.targets[target]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.history.List()
}

// LastRoundID returns the highest round id seen for target, from either
// its history or its last snapshot.
func (r *Registry) LastRoundID(target string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.targets[target]
	if !ok {
		return 0
	}
	var id uint64
	if last, ok := e.history.Last(); ok {
		id = last.ID
	}
	if e.snapshot != nil && e.snapshot.RoundID > id {
		id = e.snapshot.RoundID
	}
	return id
}

// Milestones returns the number of milestone crossings seen for target.
func (r *Registry) Milestones(target string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.targets[target]; ok {
		return e.milestones
	}
	return 0
}

// Targets returns every target the registry has seen, sorted.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.targets))
	for t := range r.targets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
