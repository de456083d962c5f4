// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package supervisor

import "errors"

// Errors returned by Supervisor operations.
var (
	ErrAlreadyRegistered = errors.New("worker already registered")
	ErrCapacityExceeded  = errors.New("worker capacity exceeded")
	ErrUnknownWorker     = errors.New("unknown worker")
	ErrAlreadyRunning    = errors.New("worker already running")
	ErrNotRunning        = errors.New("worker is not running")
	ErrTransitioning     = errors.New("worker is changing state")
	ErrShuttingDown      = errors.New("supervisor is shutting down")

	// ErrWorkerCrashed is recorded as the last error of a worker whose
	// process exited without being asked to.
	ErrWorkerCrashed = errors.New("worker crashed")

	// ErrResourceExceeded marks a worker above its CPU or memory limit.
	ErrResourceExceeded = errors.New("worker resource limit exceeded")

	// ErrShutdownTimeout is returned when a worker had to be killed because
	// it did not exit within its grace period.
	ErrShutdownTimeout = errors.New("worker shutdown timeout")

	ErrNilSupervisorTree = errors.New("supervisor tree cannot be nil")
)
