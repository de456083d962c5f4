// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

// RuleAgent fires each configured rule at most once per round. Triggers
// are derived from state that persists across snapshots, so an agent that
// is busy while a phase passes still sees the round start, its milestones
// and its end on a later snapshot.
type RuleAgent struct {
	name   string
	target string
	rules  []config.RuleConfig
	exec   ActionExecutor
	logger zerolog.Logger

	round uint64
	done  []bool
	ended uint64
}

// NewRuleAgent creates a rule-driven agent.
func NewRuleAgent(name, target string, rules []config.RuleConfig, exec ActionExecutor) *RuleAgent {
	return &RuleAgent{
		name:   name,
		target: target,
		rules:  rules,
		exec:   exec,
		logger: logging.ForTarget("agent", target).With().Str("agent", name).Logger(),
		done:   make([]bool, len(rules)),
	}
}

// Name returns the agent name.
func (a *RuleAgent) Name() string { return a.name }

// Observe evaluates every rule against snap.
func (a *RuleAgent) Observe(ctx context.Context, snap models.RuntimeState) {
	// The end of an earlier round goes out before the next round's rules.
	if snap.LastEndedRound > a.ended && snap.LastEndedRound != snap.RoundID {
		a.roundEnded(ctx, &snap)
	}

	if snap.RoundID != 0 {
		if snap.RoundID != a.round {
			a.round = snap.RoundID
			for i := range a.done {
				a.done[i] = false
			}
		}
		for i, rule := range a.rules {
			if a.done[i] || !matches(rule, &snap) {
				continue
			}
			a.done[i] = true
			a.perform(ctx, Action{
				Agent:     a.name,
				Name:      rule.Action,
				Trigger:   rule.Trigger,
				RoundID:   snap.RoundID,
				Milestone: rule.Milestone,
				Value:     snap.Last.Value,
				Params:    rule.Params,
				At:        snap.UpdatedAt,
			})
		}
	}

	if snap.LastEndedRound > a.ended {
		a.roundEnded(ctx, &snap)
	}
}

// roundEnded runs the round_end rules for the last confirmed round.
func (a *RuleAgent) roundEnded(ctx context.Context, snap *models.RuntimeState) {
	a.ended = snap.LastEndedRound
	for _, rule := range a.rules {
		if rule.Trigger != TriggerRoundEnd {
			continue
		}
		a.perform(ctx, Action{
			Agent:   a.name,
			Name:    rule.Action,
			Trigger: rule.Trigger,
			RoundID: snap.LastEndedRound,
			Value:   snap.LastFinalValue,
			Params:  rule.Params,
			At:      snap.UpdatedAt,
		})
	}
}

func (a *RuleAgent) perform(ctx context.Context, action Action) {
	if err := a.exec.PerformAction(ctx, a.target, action); err != nil {
		a.logger.Warn().Err(err).
			Str("action", action.Name).
			Uint64("round_id", action.RoundID).
			Msg("Action failed")
		return
	}
	a.logger.Debug().Str("action", action.Name).Uint64("round_id", action.RoundID).Msg("Action performed")
}

// matches reports whether a per-round rule applies to snap. Round end rules
// are handled by roundEnded.
func matches(rule config.RuleConfig, snap *models.RuntimeState) bool {
	switch rule.Trigger {
	case TriggerRoundStart:
		return true
	case TriggerMilestone:
		return snap.HasFired(rule.Milestone)
	default:
		return false
	}
}
