// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
)

// maxBodyBytes bounds how much of a response body is decoded.
const maxBodyBytes = 64 << 10

// ErrBadStatus is returned when the signal endpoint answers with a non-2xx status.
var ErrBadStatus = errors.New("unexpected status")

type signalPayload struct {
	Value *float64 `json:"value"`
}

type sample struct {
	value float64
	ok    bool
}

// HTTPSource polls a JSON endpoint answering {"value": <number|null>}.
// Consecutive failures open a circuit breaker so a dead endpoint costs
// nothing until the breaker half-opens again.
type HTTPSource struct {
	client  *http.Client
	url     string
	auxURL  string
	headers map[string]string
	breaker *gobreaker.CircuitBreaker[sample]
}

// NewHTTPSource creates an HTTP source. timeout bounds every request.
func NewHTTPSource(cfg config.SourceConfig, timeout time.Duration) *HTTPSource {
	logger := logging.WithComponent("http-source")
	settings := gobreaker.Settings{
		Name:        "signal:" + cfg.URL,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Signal source circuit breaker state changed")
		},
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		url:     cfg.URL,
		auxURL:  cfg.AuxURL,
		headers: cfg.Headers,
		breaker: gobreaker.NewCircuitBreaker[sample](settings),
	}
}

// ReadSignal fetches the current value.
func (s *HTTPSource) ReadSignal(ctx context.Context, _ string) (float64, bool, error) {
	res, err := s.breaker.Execute(func() (sample, error) {
		var p signalPayload
		if err := s.getJSON(ctx, s.url, &p); err != nil {
			return sample{}, err
		}
		if p.Value == nil {
			return sample{}, nil
		}
		return sample{value: *p.Value, ok: true}, nil
	})
	if err != nil {
		return 0, false, err
	}
	return res.value, res.ok, nil
}

// ReadAuxiliary fetches a flat object of auxiliary numbers, if configured.
func (s *HTTPSource) ReadAuxiliary(ctx context.Context, _ string) (map[string]float64, bool, error) {
	if s.auxURL == "" {
		return nil, false, nil
	}
	var values map[string]float64
	if err := s.getJSON(ctx, s.auxURL, &values); err != nil {
		return nil, false, err
	}
	return values, len(values) > 0, nil
}

// BreakerState reports the circuit breaker state.
func (s *HTTPSource) BreakerState() string {
	return s.breaker.State().String()
}

func (s *HTTPSource) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d from %s", ErrBadStatus, resp.StatusCode, url)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
