// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package models defines the data structures shared by Robin's workers, the
supervisor and the control API.

Key Components:

  - Phase: worker state machine phase (UNKNOWN, WAITING, ACTIVE, ENDED_CONFIRMED)
  - Reading: one sample of the signal, present or absent
  - RuntimeState: per-target snapshot owned by the worker tick goroutine
  - RoundRecord and MilestoneHit: a finished round and its crossings
  - HealthSample: periodic worker health report
  - WorkerState and WorkerStatus: supervisor view of a worker process
  - APIResponse: standard control API response envelope

Phases, worker states and readings encode to JSON by name so snapshots and
statuses read the same in logs, uplink frames and API responses.

Thread Safety:

Models are plain values. RuntimeState and RoundRecord hold slices; use
Clone before handing them to another goroutine.
*/
package models
