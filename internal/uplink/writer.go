// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package uplink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// Writer encodes frames onto a stream, one per line. It is safe for
// concurrent use and implements worker.Sink.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	target string
}

// NewWriter creates a writer for target's frames.
func NewWriter(w io.Writer, target string) *Writer {
	return &Writer{enc: json.NewEncoder(w), target: target}
}

// Write encodes f. An empty Target is filled in.
func (w *Writer) Write(f Frame) error {
	if f.Target == "" {
		f.Target = w.target
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(&f); err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return nil
}

// HandleRound writes a round frame.
func (w *Writer) HandleRound(_ context.Context, rec models.RoundRecord) error {
	return w.Write(Frame{Type: FrameRound, Round: &rec})
}

// HandleMilestone writes a milestone frame.
func (w *Writer) HandleMilestone(_ context.Context, ev models.MilestoneEvent) error {
	return w.Write(Frame{Type: FrameMilestone, Milestone: &ev})
}

// Forward writes health samples and snapshots until ctx is done or both
// channels are closed. A nil channel is ignored.
func (w *Writer) Forward(ctx context.Context, health <-chan models.HealthSample, snapshots <-chan models.RuntimeState) error {
	for health != nil || snapshots != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-health:
			if !ok {
				health = nil
				continue
			}
			if err := w.Write(Frame{Type: FrameHealth, Health: &s}); err != nil {
				return err
			}
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			if err := w.Write(Frame{Type: FrameSnapshot, Snapshot: &snap}); err != nil {
				return err
			}
		}
	}
	return nil
}
