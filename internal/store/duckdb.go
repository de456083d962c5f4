// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/goccy/go-json"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	target           VARCHAR NOT NULL,
	round_id         BIGINT NOT NULL,
	final_value      DOUBLE NOT NULL,
	started_at       TIMESTAMP,
	ended_at         TIMESTAMP NOT NULL,
	duration_seconds DOUBLE NOT NULL,
	low_confidence   BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (target, round_id)
);
CREATE TABLE IF NOT EXISTS milestones (
	target           VARCHAR NOT NULL,
	round_id         BIGINT NOT NULL,
	milestone        DOUBLE NOT NULL,
	value            DOUBLE NOT NULL,
	crossed_at       TIMESTAMP NOT NULL,
	aux              VARCHAR,
	out_of_tolerance BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (target, round_id, milestone)
);`

// DuckDBStore stores rounds and their milestones in DuckDB.
type DuckDBStore struct {
	conn *sql.DB
}

// OpenDuckDB opens the database at path, creating the schema if needed.
// An empty path opens an in-memory database.
func OpenDuckDB(path string) (*DuckDBStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		dsn = path
	}
	dsn += "?autoinstall_known_extensions=false&autoload_known_extensions=false"

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// A single connection keeps in-memory databases shared.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("DuckDB store opened")
	return &DuckDBStore{conn: conn}, nil
}

// InsertRounds writes rounds and their milestones in one transaction.
// Rounds already stored are skipped. Returns the number of new rounds.
func (s *DuckDBStore) InsertRounds(ctx context.Context, rounds []models.RoundRecord) (int, error) {
	if len(rounds) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	roundStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rounds (target, round_id, final_value, started_at, ended_at, duration_seconds, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare round insert: %w", err)
	}
	defer roundStmt.Close()

	milestoneStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO milestones (target, round_id, milestone, value, crossed_at, aux, out_of_tolerance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare milestone insert: %w", err)
	}
	defer milestoneStmt.Close()

	inserted := 0
	for i := range rounds {
		r := &rounds[i]
		res, err := roundStmt.ExecContext(ctx,
			r.Target, int64(r.ID), r.FinalValue, nullTime(r.StartedAt), r.EndedAt.UTC(), r.DurationSeconds, r.LowConfidence)
		if err != nil {
			return 0, fmt.Errorf("insert round %s/%d: %w", r.Target, r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}

		for _, m := range r.Milestones {
			aux, err := encodeAux(m.Aux)
			if err != nil {
				return 0, err
			}
			if _, err := milestoneStmt.ExecContext(ctx,
				r.Target, int64(r.ID), m.Milestone, m.Value, m.Timestamp.UTC(), aux, m.OutOfTolerance); err != nil {
				return 0, fmt.Errorf("insert milestone %v of %s/%d: %w", m.Milestone, r.Target, r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// RecentRounds returns up to limit of target's most recent rounds, oldest first.
func (s *DuckDBStore) RecentRounds(ctx context.Context, target string, limit int) ([]models.RoundRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT round_id, final_value, started_at, ended_at, duration_seconds, low_confidence
		FROM rounds WHERE target = ?
		ORDER BY round_id DESC LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []models.RoundRecord
	for rows.Next() {
		var (
			id      int64
			started sql.NullTime
			r       = models.RoundRecord{Target: target}
		)
		if err := rows.Scan(&id, &r.FinalValue, &started, &r.EndedAt, &r.DurationSeconds, &r.LowConfidence); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.ID = uint64(id)
		if started.Valid {
			r.StartedAt = started.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for i := range out {
		ms, err := s.milestones(ctx, target, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Milestones = ms
	}
	return out, nil
}

func (s *DuckDBStore) milestones(ctx context.Context, target string, roundID uint64) ([]models.MilestoneHit, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT milestone, value, crossed_at, aux, out_of_tolerance
		FROM milestones WHERE target = ? AND round_id = ?
		ORDER BY milestone`, target, int64(roundID))
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	var out []models.MilestoneHit
	for rows.Next() {
		var (
			h   models.MilestoneHit
			aux sql.NullString
		)
		if err := rows.Scan(&h.Milestone, &h.Value, &h.Timestamp, &aux, &h.OutOfTolerance); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		if aux.Valid {
			if err := json.Unmarshal([]byte(aux.String), &h.Aux); err != nil {
				return nil, fmt.Errorf("decode aux: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LastRoundID returns the highest stored round id of target, or 0.
func (s *DuckDBStore) LastRoundID(ctx context.Context, target string) (uint64, error) {
	var id sql.NullInt64
	err := s.conn.QueryRowContext(ctx, `SELECT max(round_id) FROM rounds WHERE target = ?`, target).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query last round id: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	return s.conn.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeAux(aux map[string]float64) (sql.NullString, error) {
	if len(aux) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(aux)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode aux: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
