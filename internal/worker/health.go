// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package worker

import (
	"sync/atomic"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// HealthReporter hands health samples to a consumer without ever blocking
// the producer. When the buffer is full the sample is dropped and counted.
type HealthReporter struct {
	ch      chan models.HealthSample
	dropped atomic.Uint64
}

// NewHealthReporter creates a reporter with a buffer of size samples.
func NewHealthReporter(size int) *HealthReporter {
	if size < 1 {
		size = 1
	}
	return &HealthReporter{ch: make(chan models.HealthSample, size)}
}

// Report offers a sample, returning false if it was dropped.
func (h *HealthReporter) Report(s models.HealthSample) bool {
	select {
	case h.ch <- s:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// C returns the channel samples are delivered on.
func (h *HealthReporter) C() <-chan models.HealthSample {
	return h.ch
}

// Dropped returns the number of samples dropped so far.
func (h *HealthReporter) Dropped() uint64 {
	return h.dropped.Load()
}
