// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package tracker

import (
	"sync"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// DefaultHistorySize is the number of rounds kept per target.
const DefaultHistorySize = 100

// History is a fixed-capacity FIFO of round records. When full, appending
// evicts the oldest record. It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	buf   []models.RoundRecord
	start int
	n     int
}

// NewHistory creates a history holding at most capacity records.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]models.RoundRecord, capacity)}
}

// Append stores a copy of rec, reporting whether an older record was evicted.
func (h *History) Append(rec models.RoundRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := rec.Clone()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = c
		h.n++
		return false
	}
	h.buf[h.start] = c
	h.start = (h.start + 1) % len(h.buf)
	return true
}

// List returns copies of the stored records, oldest first.
func (h *History) List() []models.RoundRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.RoundRecord, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)].Clone()
	}
	return out
}

// Last returns a copy of the newest record.
func (h *History) Last() (models.RoundRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.n == 0 {
		return models.RoundRecord{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)].Clone(), true
}

// Len returns the number of stored records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Cap returns the history capacity.
func (h *History) Cap() int {
	return len(h.buf)
}
