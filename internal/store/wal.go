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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/metrics"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

var (
	// ErrWALClosed is returned by operations on a closed WAL.
	ErrWALClosed = errors.New("WAL is closed")

	// ErrEntryNotFound is returned when confirming an unknown entry.
	ErrEntryNotFound = errors.New("WAL entry not found")

	// ErrEmptyEntryID is returned when confirming with an empty id.
	ErrEmptyEntryID = errors.New("empty WAL entry id")
)

// Key prefixes for the two entry states.
const (
	prefixPending   = "pending:"
	prefixConfirmed = "confirmed:"
)

// Entry is a round waiting for, or done with, insertion into DuckDB.
type Entry struct {
	ID          string             `json:"id"`
	Round       models.RoundRecord `json:"round"`
	CreatedAt   time.Time          `json:"created_at"`
	ConfirmedAt *time.Time         `json:"confirmed_at,omitempty"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	// Path is the directory where BadgerDB stores its files.
	Path string

	// InMemory keeps the log in memory only. For tests.
	InMemory bool

	// SyncWrites forces fsync after every write.
	SyncWrites bool

	// ConfirmedTTL expires confirmed entries after this long. Zero keeps
	// them until the directory is removed.
	ConfirmedTTL time.Duration
}

// DefaultWALConfig returns production defaults for a WAL at path.
func DefaultWALConfig(path string) WALConfig {
	return WALConfig{
		Path:         path,
		SyncWrites:   true,
		ConfirmedTTL: 24 * time.Hour,
	}
}

// WAL is a BadgerDB-backed write-ahead log of finished rounds.
type WAL struct {
	db     *badger.DB
	config WALConfig

	mu     sync.RWMutex
	closed bool

	totalWrites   atomic.Int64
	totalConfirms atomic.Int64
}

// OpenWAL opens or creates the log described by cfg.
func OpenWAL(cfg WALConfig) (*WAL, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("WAL opened")
	return &WAL{db: db, config: cfg}, nil
}

func (w *WAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write durably records rec as pending and returns the entry id.
func (w *WAL) Write(_ context.Context, rec models.RoundRecord) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Round:     rec,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixPending+entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	w.totalWrites.Add(1)
	metrics.RecordWALWrite()
	return entry.ID, nil
}

// Confirm moves an entry from pending to confirmed.
func (w *WAL) Confirm(_ context.Context, entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}

	pendingKey := []byte(prefixPending + entryID)
	confirmedKey := []byte(prefixConfirmed + entryID)

	err := w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pendingKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get pending entry: %w", err)
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		now := time.Now().UTC()
		entry.ConfirmedAt = &now
		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal confirmed entry: %w", err)
		}

		e := badger.NewEntry(confirmedKey, data)
		if w.config.ConfirmedTTL > 0 {
			e = e.WithTTL(w.config.ConfirmedTTL)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set confirmed entry: %w", err)
		}
		return txn.Delete(pendingKey)
	})
	if err != nil {
		return err
	}

	w.totalConfirms.Add(1)
	metrics.RecordWALConfirm()
	return nil
}

// Pending returns every unconfirmed entry.
func (w *WAL) Pending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("WAL failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	return entries, nil
}

// Stats returns write and confirm counters for this process.
func (w *WAL) Stats() (writes, confirms int64) {
	return w.totalWrites.Load(), w.totalConfirms.Load()
}

// Close closes the underlying database.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("WAL closed")
	return nil
}
