// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

// Package eventprocessor publishes round and milestone events to NATS
// through Watermill.
//
// Workers publish best effort: every publish goes through a circuit
// breaker, and a failure is logged by the caller and never retried into
// the tick loop. The supervisor can host an embedded NATS server so a
// single-host deployment needs no external broker.
//
// # Subjects
//
//	<prefix>.<target>.round.ended
//	<prefix>.<target>.milestone.crossed
//
// Subscribers may use NATS wildcards, e.g. "robin.>" for every event or
// "robin.*.round.ended" for finished rounds of all targets.
package eventprocessor
