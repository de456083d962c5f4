// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package config

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

// bytesProvider serves an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytesProvider does not support Read")
}

// ParseTarget decodes a single target definition (YAML or JSON) on top of
// defaults and validates it. Durations may be given as "250ms" strings or
// as nanoseconds.
func ParseTarget(data []byte, defaults WorkerConfig) (WorkerConfig, error) {
	k := koanf.New(".")
	if err := k.Load(bytesProvider(data), yaml.Parser()); err != nil {
		return WorkerConfig{}, fmt.Errorf("parse target: %w", err)
	}

	wc := defaults.Clone()
	if k.Exists("tracking.milestones") {
		wc.Tracking.Milestones = nil
	}
	if k.Exists("agents") {
		wc.Agents = nil
	}
	if err := k.UnmarshalWithConf("", &wc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return WorkerConfig{}, fmt.Errorf("decode target: %w", err)
	}
	if err := wc.Validate(); err != nil {
		return WorkerConfig{}, err
	}
	return wc, nil
}
