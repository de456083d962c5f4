// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package store persists finished rounds.
//
// Rounds reported by workers are first written to a BadgerDB write-ahead
// log, then buffered by an Appender and inserted into DuckDB in batches.
// A WAL entry is confirmed only after its round is committed, so rounds
// pending at a crash are replayed into DuckDB on the next start. Inserts
// are idempotent on (target, round_id).
package store
