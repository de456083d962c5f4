// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package config

import (
	"testing"
	"time"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	defaults := DefaultWorkerConfig()

	t.Run("json over defaults", func(t *testing.T) {
		t.Parallel()
		body := `{
			"name": "table-7",
			"source": {"kind": "http", "url": "http://127.0.0.1:9000/value"},
			"hang_timeout": "5s",
			"tracking": {"milestones": [3.0, 5.0]},
			"restart": {"max_restarts": 2}
		}`
		wc, err := ParseTarget([]byte(body), defaults)
		if err != nil {
			t.Fatalf("ParseTarget: %v", err)
		}
		if wc.Name != "table-7" || wc.HangTimeout != 5*time.Second {
			t.Errorf("name=%q hang=%v", wc.Name, wc.HangTimeout)
		}
		if len(wc.Tracking.Milestones) != 2 || wc.Tracking.Milestones[0] != 3.0 {
			t.Errorf("milestones = %v", wc.Tracking.Milestones)
		}
		if wc.Restart.MaxRestarts != 2 || wc.Restart.Delay != defaults.Restart.Delay {
			t.Errorf("restart = %+v", wc.Restart)
		}
		if wc.Intervals != defaults.Intervals {
			t.Errorf("intervals = %+v", wc.Intervals)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		body := "name: table-8\nsource:\n  kind: replay\n  script: rounds.yaml\nread_timeout: 250ms\n"
		wc, err := ParseTarget([]byte(body), defaults)
		if err != nil {
			t.Fatalf("ParseTarget: %v", err)
		}
		if wc.ReadTimeout != 250*time.Millisecond || wc.Source.Script != "rounds.yaml" {
			t.Errorf("config = %+v", wc)
		}
	})

	t.Run("defaults are not modified", func(t *testing.T) {
		t.Parallel()
		local := DefaultWorkerConfig()
		_, _ = ParseTarget([]byte(`{"name":"x","source":{"kind":"replay","script":"s"},"tracking":{"milestones":[7]}}`), local)
		if local.Tracking.Milestones[0] != 1.5 {
			t.Errorf("defaults modified: %v", local.Tracking.Milestones)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name": `},
		{"missing name", `{"source": {"kind": "replay", "script": "s"}}`},
		{"http without url", `{"name": "t", "source": {"kind": "http"}}`},
		{"descending milestones", `{"name": "t", "source": {"kind": "replay", "script": "s"}, "tracking": {"milestones": [2, 1]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseTarget([]byte(tt.body), defaults); err == nil {
				t.Error("expected error")
			}
		})
	}
}
