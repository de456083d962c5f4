// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package source

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/UVuruna/Robin-sub000/internal/models"
)

// scriptFile is the on-disk replay format:
//
//	readings: [null, null, 1.2, 1.5, 2.01, 2.01, 2.01, 2.01]
//	aux:
//	  players: 40
type scriptFile struct {
	Readings []*float64        `yaml:"readings"`
	Aux      map[string]float64 `yaml:"aux"`
}

// Replay serves a fixed sequence of readings, one per read. After the last
// reading it either starts over (loop) or keeps returning the last one.
type Replay struct {
	mu       sync.Mutex
	readings []models.Reading
	aux      map[string]float64
	loop     bool
	pos      int
}

// NewReplay creates a replay source from readings.
func NewReplay(loop bool, readings ...models.Reading) *Replay {
	return &Replay{readings: readings, loop: loop}
}

// LoadReplay reads a YAML script from path.
func LoadReplay(path string, loop bool) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	var sf scriptFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse replay script %s: %w", path, err)
	}
	readings := make([]models.Reading, len(sf.Readings))
	for i, v := range sf.Readings {
		if v != nil {
			readings[i] = models.Value(*v)
		}
	}
	r := NewReplay(loop, readings...)
	r.aux = sf.Aux
	return r, nil
}

// WithAux sets the auxiliary values returned by ReadAuxiliary.
func (r *Replay) WithAux(values map[string]float64) *Replay {
	r.mu.Lock()
	r.aux = values
	r.mu.Unlock()
	return r
}

// ReadSignal returns the next scripted reading.
func (r *Replay) ReadSignal(ctx context.Context, _ string) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.readings) == 0 {
		return 0, false, nil
	}
	if r.pos >= len(r.readings) {
		if !r.loop {
			last := r.readings[len(r.readings)-1]
			return last.Value, last.Present, nil
		}
		r.pos = 0
	}
	cur := r.readings[r.pos]
	r.pos++
	return cur.Value, cur.Present, nil
}

// ReadAuxiliary returns a copy of the scripted auxiliary values.
func (r *Replay) ReadAuxiliary(_ context.Context, _ string) (map[string]float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.aux) == 0 {
		return nil, false, nil
	}
	out := make(map[string]float64, len(r.aux))
	for k, v := range r.aux {
		out[k] = v
	}
	return out, true, nil
}

// Position returns how many scripted readings have been consumed.
func (r *Replay) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}
