// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package models

import (
	"fmt"
	"strings"
)

// Phase is the lifecycle phase a worker has classified its target into.
type Phase uint8

const (
	// PhaseUnknown is the initial phase before the first reading.
	PhaseUnknown Phase = iota
	// PhaseWaiting means no round is in progress.
	PhaseWaiting
	// PhaseActive means a round is in progress and the signal is sampled fast.
	PhaseActive
	// PhaseEndedConfirmed means the round just ended with a confirmed final value.
	PhaseEndedConfirmed
)

var phaseNames = [...]string{
	PhaseUnknown:        "UNKNOWN",
	PhaseWaiting:        "WAITING",
	PhaseActive:         "ACTIVE",
	PhaseEndedConfirmed: "ENDED_CONFIRMED",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("invalid phase %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase parses a phase name case-insensitively.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return Phase(i), nil
		}
	}
	return PhaseUnknown, fmt.Errorf("unknown phase %q", s)
}

// Idle reports whether no round is in progress in this phase.
func (p Phase) Idle() bool {
	return p != PhaseActive
}

// CanTransitionTo reports whether next is a legal successor of p.
func (p Phase) CanTransitionTo(next Phase) bool {
	switch p {
	case PhaseUnknown, PhaseEndedConfirmed:
		return next == PhaseWaiting || next == PhaseActive
	case PhaseWaiting:
		return next == PhaseWaiting || next == PhaseActive
	case PhaseActive:
		return next == PhaseActive || next == PhaseEndedConfirmed
	default:
		return false
	}
}
