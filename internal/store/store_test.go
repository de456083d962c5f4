// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func round(target string, id uint64, final float64) models.RoundRecord {
	return models.RoundRecord{
		ID:              id,
		Target:          target,
		FinalValue:      final,
		StartedAt:       t0,
		EndedAt:         t0.Add(4 * time.Second),
		DurationSeconds: 4,
		Milestones: []models.MilestoneHit{
			{Milestone: 1.5, Value: 1.52, Timestamp: t0.Add(time.Second), Aux: map[string]float64{"players": 31}},
			{Milestone: 2.0, Value: 2.2, Timestamp: t0.Add(2 * time.Second), OutOfTolerance: true},
		},
	}
}

func setupWAL(t *testing.T) *WAL {
	t.Helper()
	w, err := OpenWAL(WALConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenWAL() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func setupDuckDB(t *testing.T) *DuckDBStore {
	t.Helper()
	s, err := OpenDuckDB("")
	if err != nil {
		t.Fatalf("OpenDuckDB() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWALWriteConfirm(t *testing.T) {
	w := setupWAL(t)
	ctx := context.Background()

	id1, err := w.Write(ctx, round("a", 1, 2.0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(ctx, round("a", 2, 3.0)); err != nil {
		t.Fatal(err)
	}

	pending, err := w.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := w.Confirm(ctx, id1); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	pending, _ = w.Pending(ctx)
	if len(pending) != 1 || pending[0].Round.ID != 2 {
		t.Errorf("pending after confirm = %+v", pending)
	}
	if len(pending[0].Round.Milestones) != 2 {
		t.Error("milestones lost in WAL entry")
	}

	if err := w.Confirm(ctx, id1); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second confirm = %v, want ErrEntryNotFound", err)
	}
	if err := w.Confirm(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("empty id = %v", err)
	}
	if writes, confirms := w.Stats(); writes != 2 || confirms != 1 {
		t.Errorf("Stats() = %d, %d", writes, confirms)
	}
}

func TestWALClosed(t *testing.T) {
	w, err := OpenWAL(WALConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(context.Background(), round("a", 1, 1)); !errors.Is(err, ErrWALClosed) {
		t.Errorf("Write() after close = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestDuckDBInsertAndQuery(t *testing.T) {
	s := setupDuckDB(t)
	ctx := context.Background()

	n, err := s.InsertRounds(ctx, []models.RoundRecord{round("a", 1, 2.5), round("a", 2, 1.9), round("b", 1, 7)})
	if err != nil {
		t.Fatalf("InsertRounds() error = %v", err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3", n)
	}

	n, err = s.InsertRounds(ctx, []models.RoundRecord{round("a", 2, 1.9)})
	if err != nil {
		t.Fatalf("duplicate insert error = %v", err)
	}
	if n != 0 {
		t.Errorf("duplicate round inserted again")
	}

	rounds, err := s.RecentRounds(ctx, "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 2 || rounds[0].ID != 1 || rounds[1].ID != 2 {
		t.Fatalf("RecentRounds() = %+v", rounds)
	}
	ms := rounds[0].Milestones
	if len(ms) != 2 || ms[0].Aux["players"] != 31 || !ms[1].OutOfTolerance {
		t.Errorf("milestones = %+v", ms)
	}

	last, err := s.LastRoundID(ctx, "a")
	if err != nil || last != 2 {
		t.Errorf("LastRoundID(a) = %d, %v", last, err)
	}
	if last, _ := s.LastRoundID(ctx, "missing"); last != 0 {
		t.Errorf("LastRoundID(missing) = %d", last)
	}
}

func TestDuckDBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rounds.duckdb")
	s, err := OpenDuckDB(path)
	if err != nil {
		t.Fatalf("OpenDuckDB() error = %v", err)
	}
	if _, err := s.InsertRounds(context.Background(), []models.RoundRecord{round("a", 1, 2)}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = OpenDuckDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if last, _ := s.LastRoundID(context.Background(), "a"); last != 1 {
		t.Errorf("round not persisted across reopen, last = %d", last)
	}
}

func TestAppenderFlushConfirmsWAL(t *testing.T) {
	w := setupWAL(t)
	db := setupDuckDB(t)
	ctx := context.Background()

	a, err := NewAppender(db, w, AppenderConfig{BatchSize: 10, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 3; i++ {
		a.HandleFrame(uplink.Frame{Type: uplink.FrameRound, Target: "a", Round: ptr(round("a", i, 2))})
	}
	a.HandleFrame(uplink.Frame{Type: uplink.FrameHealth, Target: "a"})

	if pending, _ := w.Pending(ctx); len(pending) != 3 {
		t.Fatalf("WAL pending before flush = %d", len(pending))
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if pending, _ := w.Pending(ctx); len(pending) != 0 {
		t.Errorf("WAL pending after flush = %d", len(pending))
	}
	if last, _ := db.LastRoundID(ctx, "a"); last != 3 {
		t.Errorf("LastRoundID = %d", last)
	}
	stats := a.Stats()
	if stats.Received != 3 || stats.Flushed != 3 || stats.BufferSize != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

type failingInserter struct{ calls int }

func (f *failingInserter) InsertRounds(context.Context, []models.RoundRecord) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestAppenderFailureKeepsRounds(t *testing.T) {
	w := setupWAL(t)
	ctx := context.Background()
	a, _ := NewAppender(&failingInserter{}, w, AppenderConfig{BatchSize: 10, FlushInterval: time.Hour})

	if err := a.Append(ctx, round("a", 1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := a.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if a.Stats().BufferSize != 1 {
		t.Error("failed round dropped from buffer")
	}
	if pending, _ := w.Pending(ctx); len(pending) != 1 {
		t.Error("failed round confirmed in WAL")
	}

	// A fresh appender over the same WAL recovers it.
	db := setupDuckDB(t)
	b, _ := NewAppender(db, w, AppenderConfig{BatchSize: 10, FlushInterval: time.Hour})
	n, err := b.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover() = %d, %v", n, err)
	}
	if last, _ := db.LastRoundID(ctx, "a"); last != 1 {
		t.Errorf("recovered round not stored")
	}
}

func TestAppenderBatchSizeTriggersFlush(t *testing.T) {
	db := setupDuckDB(t)
	ctx := context.Background()
	a, _ := NewAppender(db, nil, AppenderConfig{BatchSize: 2, FlushInterval: time.Hour})

	_ = a.Append(ctx, round("a", 1, 2))
	_ = a.Append(ctx, round("a", 2, 2))
	a.flushWg.Wait()

	if last, _ := db.LastRoundID(ctx, "a"); last != 2 {
		t.Errorf("batch not flushed, last = %d", last)
	}
}

func TestAppenderStartStop(t *testing.T) {
	db := setupDuckDB(t)
	ctx := context.Background()
	a, _ := NewAppender(db, nil, AppenderConfig{BatchSize: 100, FlushInterval: time.Hour})

	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !a.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	_ = a.Append(ctx, round("a", 1, 2))
	a.Stop()

	if a.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if last, _ := db.LastRoundID(ctx, "a"); last != 1 {
		t.Error("Stop() did not flush")
	}
	if err := a.Append(ctx, round("a", 2, 2)); !errors.Is(err, ErrAppenderClosed) {
		t.Errorf("Append() after Stop = %v", err)
	}
}

func TestNewAppenderValidation(t *testing.T) {
	if _, err := NewAppender(nil, nil, AppenderConfig{BatchSize: 1, FlushInterval: time.Second}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewAppender(&failingInserter{}, nil, AppenderConfig{FlushInterval: time.Second}); err == nil {
		t.Error("expected error for zero batch size")
	}
}

func ptr[T any](v T) *T { return &v }
