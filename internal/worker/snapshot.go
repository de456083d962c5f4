// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package worker

import (
	"sync"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// snapshotHub fans owned state copies out to subscribers. A slow
// subscriber only ever misses intermediate snapshots, never the newest.
type snapshotHub struct {
	mu     sync.Mutex
	subs   []chan models.RuntimeState
	closed bool
}

func (h *snapshotHub) subscribe(buffer int) <-chan models.RuntimeState {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.RuntimeState, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

func (h *snapshotHub) publish(s *models.RuntimeState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- s.Clone():
			continue
		default:
		}
		// Full: discard the oldest snapshot to make room for this one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.Clone():
		default:
		}
	}
}

func (h *snapshotHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
