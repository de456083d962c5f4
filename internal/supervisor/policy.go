// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package supervisor

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/UVuruna/Robin-sub000/internal/config"
)

// newRestartBackoff returns the restart delay sequence of a policy:
// Delay, Delay*BackoffMultiplier, ... capped at MaxDelay, without jitter.
func newRestartBackoff(p config.RestartPolicy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = p.BackoffMultiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
