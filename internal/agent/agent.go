// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package agent runs reactive agents next to a worker. Agents receive
// owned state snapshots on their own goroutines and trigger actions
// through an ActionExecutor; they never touch worker state.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

// Trigger names accepted in rule configuration.
const (
	TriggerRoundStart = "round_start"
	TriggerMilestone  = "milestone"
	TriggerRoundEnd   = "round_end"
)

// Action is a request to act on a target.
type Action struct {
	Agent     string            `json:"agent"`
	Name      string            `json:"name"`
	Trigger   string            `json:"trigger"`
	RoundID   uint64            `json:"round_id"`
	Milestone float64           `json:"milestone,omitempty"`
	Value     float64           `json:"value"`
	Params    map[string]string `json:"params,omitempty"`
	At        time.Time         `json:"at"`
}

// ActionExecutor performs actions on behalf of agents.
type ActionExecutor interface {
	PerformAction(ctx context.Context, target string, action Action) error
}

// Agent reacts to state snapshots.
type Agent interface {
	Name() string
	Observe(ctx context.Context, snap models.RuntimeState)
}

// Subscriber hands out snapshot subscriptions. *worker.Worker implements it.
type Subscriber interface {
	Subscribe(buffer int) <-chan models.RuntimeState
}

// Runner drives a set of agents for one target.
type Runner struct {
	target string
	agents []Agent
	logger zerolog.Logger
}

// NewRunner creates a runner for target.
func NewRunner(target string, agents ...Agent) *Runner {
	return &Runner{
		target: target,
		agents: agents,
		logger: logging.ForTarget("agent-runner", target),
	}
}

// Run subscribes each agent separately and feeds it snapshots until ctx is
// done or the subscription closes.
func (r *Runner) Run(ctx context.Context, sub Subscriber) {
	var wg sync.WaitGroup
	for _, a := range r.agents {
		ch := sub.Subscribe(1)
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			r.logger.Debug().Str("agent", a.Name()).Msg("Agent started")
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-ch:
					if !ok {
						return
					}
					a.Observe(ctx, snap)
				}
			}
		}(a)
	}
	wg.Wait()
}

// Build creates the agents described by cfgs for target.
func Build(target string, cfgs []config.AgentConfig) ([]Agent, error) {
	agents := make([]Agent, 0, len(cfgs))
	for _, c := range cfgs {
		exec, err := NewExecutor(c.Executor)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", c.Name, err)
		}
		agents = append(agents, NewRuleAgent(c.Name, target, c.Rules, exec))
	}
	return agents, nil
}
