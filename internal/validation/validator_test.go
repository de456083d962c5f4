// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Name       string    `koanf:"name" validate:"required,target_name"`
	Milestones []float64 `koanf:"milestones" validate:"ascending"`
	Confirm    int       `koanf:"confirm_reads" validate:"gte=1,lte=10"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     sample
		wantField string
	}{
		{"valid", sample{Name: "table-1", Milestones: []float64{1.5, 2, 10}, Confirm: 3}, ""},
		{"empty milestones are ascending", sample{Name: "t", Confirm: 1}, ""},
		{"missing name", sample{Milestones: []float64{1}, Confirm: 3}, "name"},
		{"bad name", sample{Name: "table 1", Confirm: 3}, "name"},
		{"duplicate milestone", sample{Name: "t", Milestones: []float64{2, 2}, Confirm: 3}, "milestones"},
		{"descending milestones", sample{Name: "t", Milestones: []float64{3, 2}, Confirm: 3}, "milestones"},
		{"confirm out of range", sample{Name: "t", Confirm: 0}, "confirm_reads"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error on %s", tt.wantField)
			}
			if got := err.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&sample{Milestones: []float64{2, 1}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %s", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("expected multi-field details, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "strictly ascending") {
		t.Errorf("message = %q", apiErr.Message)
	}
}
