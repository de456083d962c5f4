// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/logging"
)

// ErrNATSServerDown is returned by Serve when the embedded server stops
// on its own.
var ErrNATSServerDown = errors.New("embedded NATS server stopped")

// NATSServer is a running embedded NATS server.
type NATSServer interface {
	ClientURL() string
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// NATSServerService owns the embedded NATS server workers publish to. The
// server is created by Start, or lazily by Serve, and recreated after
// suture restarts the service.
type NATSServerService struct {
	newServer       func() (NATSServer, error)
	checkInterval   time.Duration
	shutdownTimeout time.Duration

	mu     sync.Mutex
	server NATSServer
}

// NewNATSServerService creates the service. newServer must start a server
// and return once it accepts connections.
func NewNATSServerService(newServer func() (NATSServer, error), shutdownTimeout time.Duration) *NATSServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSServerService{
		newServer:       newServer,
		checkInterval:   time.Second,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start creates the server if it is not running yet and returns its client URL.
func (s *NATSServerService) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

func (s *NATSServerService) ensure() (string, error) {
	if s.server != nil && s.server.IsRunning() {
		return s.server.ClientURL(), nil
	}
	srv, err := s.newServer()
	if err != nil {
		return "", fmt.Errorf("start embedded NATS server: %w", err)
	}
	s.server = srv
	logging.Info().Str("url", srv.ClientURL()).Msg("Embedded NATS server started")
	return srv.ClientURL(), nil
}

// Serve keeps the server running until ctx is canceled.
func (s *NATSServerService) Serve(ctx context.Context) error {
	s.mu.Lock()
	_, err := s.ensure()
	srv := s.server
	s.mu.Unlock()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			s.mu.Lock()
			s.server = nil
			s.mu.Unlock()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("Embedded NATS server shutdown incomplete")
			}
			return ctx.Err()
		case <-ticker.C:
			if !srv.IsRunning() {
				return ErrNATSServerDown
			}
		}
	}
}

func (s *NATSServerService) String() string {
	return "nats-server"
}
