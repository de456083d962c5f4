// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package services

import (
	"context"
	"fmt"
	"io"

	"github.com/UVuruna/Robin-sub000/internal/logging"
)

// StartStopper is a background loop with an explicit lifecycle.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// StoreService runs the round appender flush loop. When the service is
// stopped the appender is flushed and the closers (WAL, database) are
// closed in order.
type StoreService struct {
	appender StartStopper
	closers  []io.Closer
}

// NewStoreService wraps appender. closers are closed after the final flush.
func NewStoreService(appender StartStopper, closers ...io.Closer) *StoreService {
	return &StoreService{appender: appender, closers: closers}
}

// Serve starts the flush loop and blocks until ctx is canceled.
func (s *StoreService) Serve(ctx context.Context) error {
	if err := s.appender.Start(ctx); err != nil {
		return fmt.Errorf("round appender start failed: %w", err)
	}

	<-ctx.Done()

	s.appender.Stop()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Msg("Closing round store failed")
		}
	}
	return ctx.Err()
}

func (s *StoreService) String() string {
	return "round-store"
}
