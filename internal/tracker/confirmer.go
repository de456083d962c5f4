// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/clock"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

// ErrInconsistentFinality means a confirmation read disagreed with the
// candidate final value.
var ErrInconsistentFinality = errors.New("inconsistent finality")

// ReadFunc performs one bounded read of the signal.
type ReadFunc func(ctx context.Context) models.Reading

// Confirmer verifies a candidate final value with additional reads before a
// round is declared ended. It never mutates worker state.
type Confirmer struct {
	reads   int
	spacing time.Duration
	clock   clock.Clock
}

// NewConfirmer creates a confirmer performing reads additional reads spaced
// by spacing.
func NewConfirmer(reads int, spacing time.Duration, c clock.Clock) *Confirmer {
	if reads < 1 {
		reads = 1
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Confirmer{reads: reads, spacing: spacing, clock: c}
}

// Reads returns the number of confirmation reads.
func (c *Confirmer) Reads() int {
	return c.reads
}

// Confirm reads the signal until every read has strictly equalled candidate.
// An absent read counts as a mismatch. On mismatch it stops early and
// returns ErrInconsistentFinality together with the reads taken so far.
// A cancelled context aborts with the context error.
func (c *Confirmer) Confirm(ctx context.Context, candidate float64, read ReadFunc) ([]models.Reading, error) {
	want := models.Value(candidate)
	observed := make([]models.Reading, 0, c.reads)

	for i := 0; i < c.reads; i++ {
		if err := c.clock.Sleep(ctx, c.spacing); err != nil {
			return observed, err
		}
		r := read(ctx)
		observed = append(observed, r)
		if !r.Equal(want) {
			if err := ctx.Err(); err != nil {
				return observed, err
			}
			return observed, fmt.Errorf("%w: candidate %v, read %d of %d was %s",
				ErrInconsistentFinality, candidate, i+1, c.reads, describe(r))
		}
	}
	return observed, nil
}

func describe(r models.Reading) string {
	if !r.Present {
		return "absent"
	}
	return fmt.Sprintf("%v", r.Value)
}
