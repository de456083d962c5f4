// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package supervisor

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ResourceUsage is one resource sample of a worker process.
type ResourceUsage struct {
	CPUPercent float64
	RSSBytes   uint64
}

// ResourceSampler samples worker process resource usage.
type ResourceSampler interface {
	Sample(pid int) (ResourceUsage, error)

	// Forget drops any state kept for pid once its process has exited.
	Forget(pid int)
}

// ProcessSampler samples processes with gopsutil. CPU usage is measured
// between consecutive samples of the same pid.
type ProcessSampler struct {
	mu    sync.Mutex
	procs map[int]*process.Process
}

// NewProcessSampler creates a ProcessSampler.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{procs: make(map[int]*process.Process)}
}

// Sample returns the current CPU percentage and resident memory of pid.
func (s *ProcessSampler) Sample(pid int) (ResourceUsage, error) {
	s.mu.Lock()
	p, ok := s.procs[pid]
	if !ok {
		var err error
		p, err = process.NewProcess(int32(pid)) //nolint:gosec // pids fit in int32
		if err != nil {
			s.mu.Unlock()
			return ResourceUsage{}, fmt.Errorf("open process %d: %w", pid, err)
		}
		s.procs[pid] = p
	}
	s.mu.Unlock()

	cpu, err := p.Percent(0)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("cpu of process %d: %w", pid, err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("memory of process %d: %w", pid, err)
	}
	return ResourceUsage{CPUPercent: cpu, RSSBytes: mem.RSS}, nil
}

// Forget drops the cached handle for pid.
func (s *ProcessSampler) Forget(pid int) {
	s.mu.Lock()
	delete(s.procs, pid)
	s.mu.Unlock()
}
