// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package config

import (
	"fmt"

	"github.com/UVuruna/Robin-sub000/internal/validation"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	return c.validateSupervisor()
}

// validateTargets checks cross-target constraints.
func (c *Config) validateTargets() error {
	if len(c.Targets) > c.Supervisor.MaxWorkers {
		return fmt.Errorf("%d targets configured but supervisor.max_workers is %d",
			len(c.Targets), c.Supervisor.MaxWorkers)
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := t.validateAgents(); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
	}
	return nil
}

// validateSupervisor checks timing relationships between supervisor settings.
func (c *Config) validateSupervisor() error {
	for _, t := range c.Targets {
		if t.HangTimeout > 0 && t.HangTimeout < t.HealthCheckInterval {
			return fmt.Errorf("target %q: hang_timeout %s is shorter than health_check_interval %s",
				t.Name, t.HangTimeout, t.HealthCheckInterval)
		}
	}
	return nil
}

// Validate checks a single worker configuration, as used when a worker is
// registered at runtime.
func (w *WorkerConfig) Validate() error {
	if err := validation.ValidateStruct(w); err != nil {
		return err
	}
	return w.validateAgents()
}

// validateAgents checks that milestone rules refer to configured milestones.
func (w *WorkerConfig) validateAgents() error {
	for _, a := range w.Agents {
		for _, r := range a.Rules {
			if r.Trigger != "milestone" {
				continue
			}
			found := false
			for _, m := range w.Tracking.Milestones {
				if m == r.Milestone {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("agent %q: rule %q refers to unknown milestone %v", a.Name, r.Action, r.Milestone)
			}
		}
	}
	return nil
}
