// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package source provides the signal readers a worker samples: an HTTP
// poller for live targets and a scripted replay for tests and dry runs.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/config"
)

// Source reads the primary signal and optional auxiliary data of a target.
// A read returns ok=false when the target currently shows no value.
type Source interface {
	ReadSignal(ctx context.Context, target string) (value float64, ok bool, err error)
	ReadAuxiliary(ctx context.Context, target string) (values map[string]float64, ok bool, err error)
}

// New builds the source described by cfg.
func New(cfg config.SourceConfig, readTimeout time.Duration) (Source, error) {
	switch cfg.Kind {
	case "http":
		return NewHTTPSource(cfg, readTimeout), nil
	case "replay":
		return LoadReplay(cfg.Script, cfg.Loop)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
