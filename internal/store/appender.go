// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/metrics"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

// ErrAppenderClosed is returned by Append after Stop.
var ErrAppenderClosed = errors.New("appender is closed")

const flushTimeout = 30 * time.Second

// RoundInserter writes a batch of rounds.
type RoundInserter interface {
	InsertRounds(ctx context.Context, rounds []models.RoundRecord) (int, error)
}

// RoundLog is the write-ahead log the appender confirms against.
type RoundLog interface {
	Write(ctx context.Context, rec models.RoundRecord) (string, error)
	Confirm(ctx context.Context, entryID string) error
	Pending(ctx context.Context) ([]*Entry, error)
}

// AppenderConfig configures batching.
type AppenderConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// AppenderStats contains appender statistics.
type AppenderStats struct {
	Received   int64     `json:"received"`
	Flushed    int64     `json:"flushed"`
	FlushCount int64     `json:"flush_count"`
	ErrorCount int64     `json:"error_count"`
	LastFlush  time.Time `json:"last_flush"`
	LastError  string    `json:"last_error,omitempty"`
	BufferSize int       `json:"buffer_size"`
}

type pendingRound struct {
	entryID string
	rec     models.RoundRecord
}

// Appender buffers rounds and inserts them in batches. Each round is
// written to the log before it is buffered and confirmed after commit.
type Appender struct {
	store  RoundInserter
	log    RoundLog
	config AppenderConfig

	mu     sync.Mutex
	buffer []pendingRound

	flushMu sync.Mutex
	flushWg sync.WaitGroup

	closed   atomic.Bool
	running  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}

	received   atomic.Int64
	flushed    atomic.Int64
	flushCount atomic.Int64
	errorCount atomic.Int64
	lastFlush  atomic.Value // time.Time
	lastError  atomic.Value // string
}

// NewAppender creates an appender. log may be nil to skip the WAL.
func NewAppender(store RoundInserter, log RoundLog, cfg AppenderConfig) (*Appender, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}

	a := &Appender{
		store:    store,
		log:      log,
		config:   cfg,
		buffer:   make([]pendingRound, 0, cfg.BatchSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	a.lastFlush.Store(time.Time{})
	a.lastError.Store("")
	return a, nil
}

// Append logs rec and buffers it for the next batch.
func (a *Appender) Append(ctx context.Context, rec models.RoundRecord) error {
	if a.closed.Load() {
		return ErrAppenderClosed
	}

	var entryID string
	if a.log != nil {
		id, err := a.log.Write(ctx, rec)
		if err != nil {
			return fmt.Errorf("write round %s/%d to WAL: %w", rec.Target, rec.ID, err)
		}
		entryID = id
	}
	a.enqueue(pendingRound{entryID: entryID, rec: rec})
	return nil
}

func (a *Appender) enqueue(p pendingRound) {
	a.mu.Lock()
	a.buffer = append(a.buffer, p)
	needsFlush := len(a.buffer) >= a.config.BatchSize
	a.mu.Unlock()
	a.received.Add(1)

	if needsFlush {
		a.flushWg.Add(1)
		go func() {
			defer a.flushWg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			a.doFlush(ctx)
		}()
	}
}

// Recover buffers every round still pending in the log and flushes them.
// It returns the number of rounds recovered.
func (a *Appender) Recover(ctx context.Context) (int, error) {
	if a.log == nil {
		return 0, nil
	}
	entries, err := a.log.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("read pending rounds: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	a.mu.Lock()
	for _, e := range entries {
		a.buffer = append(a.buffer, pendingRound{entryID: e.ID, rec: e.Round})
	}
	a.mu.Unlock()
	a.received.Add(int64(len(entries)))

	logging.Info().Int("rounds", len(entries)).Msg("Recovering pending rounds from WAL")
	return len(entries), a.Flush(ctx)
}

// Start runs the periodic flush loop until Stop or ctx cancellation.
func (a *Appender) Start(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAppenderClosed
	}
	if a.running.Swap(true) {
		return nil
	}
	go a.flushLoop(ctx)
	return nil
}

// Stop ends the flush loop and flushes what is buffered.
func (a *Appender) Stop() {
	if a.closed.Swap(true) {
		return
	}
	if a.running.Load() {
		close(a.stopChan)
		<-a.doneChan
	}
	a.flushWg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := a.doFlushSync(ctx); err != nil {
		logging.Warn().Err(err).Msg("Final round flush failed, rounds remain in WAL")
	}
	a.running.Store(false)
}

// IsRunning reports whether the flush loop is active.
func (a *Appender) IsRunning() bool {
	return a.running.Load() && !a.closed.Load()
}

// Flush writes everything buffered now.
func (a *Appender) Flush(ctx context.Context) error {
	a.flushWg.Wait()
	return a.doFlushSync(ctx)
}

// Stats returns a snapshot of appender statistics.
func (a *Appender) Stats() AppenderStats {
	a.mu.Lock()
	size := len(a.buffer)
	a.mu.Unlock()

	last, _ := a.lastFlush.Load().(time.Time)
	lastErr, _ := a.lastError.Load().(string)
	return AppenderStats{
		Received:   a.received.Load(),
		Flushed:    a.flushed.Load(),
		FlushCount: a.flushCount.Load(),
		ErrorCount: a.errorCount.Load(),
		LastFlush:  last,
		LastError:  lastErr,
		BufferSize: size,
	}
}

func (a *Appender) flushLoop(ctx context.Context) {
	defer close(a.doneChan)

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			a.doFlush(flushCtx)
			cancel()
		}
	}
}

func (a *Appender) doFlush(ctx context.Context) {
	if err := a.doFlushSync(ctx); err != nil {
		logging.Debug().Err(err).Msg("Round flush failed, will retry")
	}
}

func (a *Appender) doFlushSync(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := a.buffer
	a.buffer = make([]pendingRound, 0, a.config.BatchSize)
	a.mu.Unlock()

	rounds := make([]models.RoundRecord, len(batch))
	for i, p := range batch {
		rounds[i] = p.rec
	}

	start := time.Now()
	inserted, err := a.store.InsertRounds(ctx, rounds)
	if err != nil {
		a.mu.Lock()
		a.buffer = append(batch, a.buffer...)
		a.mu.Unlock()
		a.errorCount.Add(1)
		a.lastError.Store(err.Error())
		return fmt.Errorf("insert %d rounds: %w", len(rounds), err)
	}

	if a.log != nil {
		for _, p := range batch {
			if p.entryID == "" {
				continue
			}
			if err := a.log.Confirm(ctx, p.entryID); err != nil && !errors.Is(err, ErrEntryNotFound) {
				logging.Warn().Err(err).Str("entry_id", p.entryID).Msg("WAL confirm failed")
			}
		}
	}

	a.flushed.Add(int64(len(batch)))
	a.flushCount.Add(1)
	a.lastFlush.Store(time.Now())
	metrics.RecordRoundsPersisted(len(batch), time.Since(start))

	logging.Debug().
		Int("rounds", len(batch)).
		Int("inserted", inserted).
		Dur("elapsed", time.Since(start)).
		Msg("Rounds flushed")
	return nil
}

// HandleFrame appends round frames. It implements uplink.Handler.
func (a *Appender) HandleFrame(f uplink.Frame) {
	if f.Type != uplink.FrameRound || f.Round == nil {
		return
	}
	if err := a.Append(context.Background(), *f.Round); err != nil {
		logging.Error().Err(err).
			Str("target", f.Target).
			Uint64("round_id", f.Round.ID).
			Msg("Failed to persist round")
	}
}
