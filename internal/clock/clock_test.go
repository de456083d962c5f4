// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package clock

import (
	"context"
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(5 * time.Second)
	if got := c.Since(start); got != 5*time.Second {
		t.Errorf("Since() = %v, want 5s", got)
	}

	if err := c.Sleep(context.Background(), time.Second); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if got := c.Since(start); got != 6*time.Second {
		t.Errorf("Since() after Sleep = %v, want 6s", got)
	}

	<-c.After(4 * time.Second)
	if got := c.Since(start); got != 10*time.Second {
		t.Errorf("Since() after After = %v, want 10s", got)
	}
}

func TestFakeSleepCancelled(t *testing.T) {
	c := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Second); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := (Real{}).Sleep(ctx, time.Minute); err == nil {
		t.Error("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not honor context cancellation")
	}
}
