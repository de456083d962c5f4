// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
)

// ErrActionRejected is returned when the action endpoint answers with a
// non-2xx status.
var ErrActionRejected = errors.New("action rejected")

const defaultActionTimeout = 2 * time.Second

// NewExecutor builds the executor described by cfg.
func NewExecutor(cfg config.ExecutorConfig) (ActionExecutor, error) {
	switch cfg.Kind {
	case "", "log":
		return NewLogExecutor(), nil
	case "http":
		return NewHTTPExecutor(cfg), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}

// LogExecutor records actions in the log only.
type LogExecutor struct {
	logger zerolog.Logger
}

// NewLogExecutor creates a LogExecutor.
func NewLogExecutor() *LogExecutor {
	return &LogExecutor{logger: logging.WithComponent("action")}
}

// PerformAction logs the action.
func (e *LogExecutor) PerformAction(_ context.Context, target string, action Action) error {
	e.logger.Info().
		Str("target", target).
		Str("agent", action.Agent).
		Str("action", action.Name).
		Str("trigger", action.Trigger).
		Uint64("round_id", action.RoundID).
		Float64("value", action.Value).
		Msg("Action")
	return nil
}

// HTTPExecutor posts actions as JSON to an endpoint, rate limited.
type HTTPExecutor struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPExecutor creates an HTTPExecutor. A zero rate disables limiting.
func NewHTTPExecutor(cfg config.ExecutorConfig) *HTTPExecutor {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &HTTPExecutor{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type actionRequest struct {
	Target string `json:"target"`
	Action Action `json:"action"`
}

// PerformAction waits for the limiter and posts the action.
func (e *HTTPExecutor) PerformAction(ctx context.Context, target string, action Action) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(actionRequest{Target: target, Action: action})
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post action: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrActionRejected, resp.StatusCode)
	}
	return nil
}
