// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/metrics"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

// handle is the supervisor's record of one worker. All fields are guarded
// by Supervisor.mu.
type handle struct {
	cfg   config.WorkerConfig
	state models.WorkerState
	proc  Process

	startedAt      time.Time
	restartCount   int
	crashCount     int
	lastErr        string
	lastHealthAt   time.Time
	nextCheck      time.Time
	nextRestartAt  time.Time
	usage          ResourceUsage
	needsAttention bool

	backoff      *backoff.ExponentialBackOff
	restartTimer *time.Timer
	restartToken uint64

	// killReason is set when the supervisor itself killed a running worker.
	killReason string
}

func (h *handle) status() models.WorkerStatus {
	s := models.WorkerStatus{
		Name:           h.cfg.Name,
		State:          h.state,
		StartedAt:      h.startedAt,
		RestartCount:   h.restartCount,
		MaxRestarts:    h.cfg.Restart.MaxRestarts,
		CrashCount:     h.crashCount,
		LastError:      h.lastErr,
		LastHealthAt:   h.lastHealthAt,
		NextRestartAt:  h.nextRestartAt,
		CPUPercent:     h.usage.CPUPercent,
		RSSBytes:       h.usage.RSSBytes,
		NeedsAttention: h.needsAttention,
	}
	if h.proc != nil {
		s.PID = h.proc.Pid()
	}
	return s
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher sets how worker processes are started.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithSampler sets the resource sampler. Nil disables resource checks.
func WithSampler(r ResourceSampler) Option {
	return func(s *Supervisor) { s.sampler = r }
}

// WithFrameHandlers adds handlers that receive every worker uplink frame.
func WithFrameHandlers(h ...uplink.Handler) Option {
	return func(s *Supervisor) { s.handlers = append(s.handlers, h...) }
}

// WithRoundSeq sets the source of the last known round id per target.
func WithRoundSeq(fn func(target string) uint64) Option {
	return func(s *Supervisor) { s.roundSeq = fn }
}

// WithStatusListener registers fn to receive every worker status change.
func WithStatusListener(fn func(models.WorkerStatus)) Option {
	return func(s *Supervisor) { s.listeners = append(s.listeners, fn) }
}

// Supervisor owns the worker processes of every registered target. It is
// safe for concurrent use. Serve runs its health loop.
type Supervisor struct {
	cfg       config.SupervisorConfig
	launcher  Launcher
	sampler   ResourceSampler
	handlers  []uplink.Handler
	roundSeq  func(string) uint64
	listeners []func(models.WorkerStatus)
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	workers      map[string]*handle
	shuttingDown bool
	launching    sync.WaitGroup
}

// New creates a Supervisor.
func New(cfg config.SupervisorConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		workers: make(map[string]*handle),
		logger:  logging.WithComponent("supervisor"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = &ExecLauncher{Command: cfg.WorkerCommand, Logger: s.logger}
	}
	return s
}

// String names the supervisor in suture logs.
func (s *Supervisor) String() string {
	return "worker-supervisor"
}

// Register adds a worker in the STOPPED state. The configuration is copied.
func (s *Supervisor) Register(cfg config.WorkerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := s.workers[cfg.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, cfg.Name)
	}
	if len(s.workers) >= s.cfg.MaxWorkers {
		s.mu.Unlock()
		return fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, s.cfg.MaxWorkers)
	}
	h := &handle{
		cfg:     cfg.Clone(),
		state:   models.WorkerStopped,
		backoff: newRestartBackoff(cfg.Restart),
	}
	s.workers[cfg.Name] = h
	st := h.status()
	s.mu.Unlock()

	s.logger.Info().Str("target", cfg.Name).Msg("Worker registered")
	s.notify(st)
	return nil
}

// Start launches the worker process of name.
func (s *Supervisor) Start(name string) error {
	return s.start(name, false)
}

// start launches name. scheduled marks a restart fired by the restart
// policy, which fails silently if the worker was stopped meanwhile.
func (s *Supervisor) start(name string, scheduled bool) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	h, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	switch h.state {
	case models.WorkerRunning, models.WorkerStarting, models.WorkerStopping:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	case models.WorkerRestarting:
		s.cancelRestart(h)
	default:
		if scheduled {
			s.mu.Unlock()
			return nil
		}
	}
	h.state = models.WorkerStarting
	h.killReason = ""
	s.launching.Add(1)
	starting := h.status()
	s.mu.Unlock()
	s.notify(starting)

	var seq uint64
	if s.roundSeq != nil {
		seq = s.roundSeq(name)
	}
	proc, err := s.launcher.Launch(LaunchSpec{
		Target:   name,
		Config:   h.cfg,
		RoundSeq: seq,
		Uplink:   s.frameHandler(name),
	})

	s.mu.Lock()
	now := s.now()
	if err != nil {
		err = fmt.Errorf("launch worker %s: %w", name, err)
		if scheduled {
			s.crashed(h, "launch", err)
		} else {
			h.state = models.WorkerCrashed
			h.lastErr = err.Error()
			h.crashCount++
			metrics.RecordWorkerCrash(name, "launch")
		}
		st := h.status()
		s.launching.Done()
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("target", name).Msg("Worker launch failed")
		s.notify(st)
		return err
	}
	h.proc = proc
	h.state = models.WorkerRunning
	h.startedAt = now
	h.lastHealthAt = now
	h.nextCheck = now.Add(h.cfg.HealthCheckInterval)
	h.nextRestartAt = time.Time{}
	st := h.status()
	s.launching.Done()
	s.mu.Unlock()

	s.logger.Info().
		Str("target", name).
		Int("pid", st.PID).
		Int("restart_count", st.RestartCount).
		Uint64("round_seq", seq).
		Msg("Worker started")
	s.notify(st)
	return nil
}

// frameHandler records health arrival for name and forwards frames to the
// configured handlers.
func (s *Supervisor) frameHandler(name string) uplink.Handler {
	return uplink.HandlerFunc(func(f uplink.Frame) {
		if f.Target != name {
			s.logger.Warn().Str("target", name).Str("frame_target", f.Target).Msg("Dropping frame for another target")
			return
		}
		if f.Type == uplink.FrameHealth {
			s.mu.Lock()
			if h, ok := s.workers[name]; ok {
				h.lastHealthAt = s.now()
			}
			s.mu.Unlock()
		}
		for _, h := range s.handlers {
			h.HandleFrame(f)
		}
	})
}

// Stop terminates the worker of name: SIGTERM, up to timeout for a clean
// exit, then SIGKILL. A pending scheduled restart is cancelled.
func (s *Supervisor) Stop(name string, timeout time.Duration) error {
	s.mu.Lock()
	h, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	switch h.state {
	case models.WorkerRestarting:
		s.cancelRestart(h)
		h.state = models.WorkerStopped
		st := h.status()
		s.mu.Unlock()
		s.logger.Info().Str("target", name).Msg("Pending restart cancelled")
		s.notify(st)
		return nil
	case models.WorkerStarting, models.WorkerStopping:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTransitioning, name, h.state)
	case models.WorkerRunning:
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	proc := h.proc
	h.state = models.WorkerStopping
	st := h.status()
	s.mu.Unlock()
	s.notify(st)

	s.logger.Info().Str("target", name).Int("pid", proc.Pid()).Dur("timeout", timeout).Msg("Stopping worker")
	killed := s.terminate(name, proc, time.Now().Add(timeout))

	s.mu.Lock()
	s.stopped(h)
	if killed {
		h.lastErr = fmt.Sprintf("%v: killed after %s", ErrShutdownTimeout, timeout)
	}
	st = h.status()
	s.mu.Unlock()

	s.logger.Info().Str("target", name).Bool("killed", killed).Msg("Worker stopped")
	s.notify(st)
	return nil
}

// terminate asks proc to exit and kills it if it is still alive at
// deadline. It reports whether SIGKILL was needed.
func (s *Supervisor) terminate(name string, proc Process, deadline time.Time) bool {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug().Err(err).Str("target", name).Msg("SIGTERM failed")
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-proc.Done():
		return false
	case <-timer.C:
	}

	s.logger.Warn().
		Err(ErrShutdownTimeout).
		Str("target", name).
		Int("pid", proc.Pid()).
		Msg("Worker did not exit in time, killing")
	metrics.RecordShutdownKill(name)
	s.kill(name, proc)
	return true
}

// kill sends SIGKILL and waits up to kill_grace for the process to be reaped.
func (s *Supervisor) kill(name string, proc Process) {
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		s.logger.Debug().Err(err).Str("target", name).Msg("SIGKILL failed")
	}
	select {
	case <-proc.Done():
	case <-time.After(s.cfg.KillGrace):
		s.logger.Error().Str("target", name).Int("pid", proc.Pid()).Msg("Worker not reaped after SIGKILL")
	}
}

// stopped marks h as cleanly stopped (must be called with mu held).
func (s *Supervisor) stopped(h *handle) {
	if h.proc != nil && s.sampler != nil {
		s.sampler.Forget(h.proc.Pid())
	}
	h.proc = nil
	h.state = models.WorkerStopped
	h.usage = ResourceUsage{}
}

// Restart stops the worker if it is running, resets its restart budget and
// starts it again.
func (s *Supervisor) Restart(name string) error {
	if err := s.Stop(name, s.cfg.StopTimeout); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	if err := s.ResetRestarts(name); err != nil {
		return err
	}
	return s.Start(name)
}

// ResetRestarts clears the restart count, backoff and attention flag of name.
func (s *Supervisor) ResetRestarts(name string) error {
	s.mu.Lock()
	h, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	h.restartCount = 0
	h.backoff.Reset()
	h.needsAttention = false
	st := h.status()
	s.mu.Unlock()

	s.logger.Info().Str("target", name).Msg("Restart count reset")
	s.notify(st)
	return nil
}

// ShutdownAll stops every worker. It sends SIGTERM to all live workers at
// once, waits one shared shutdown_timeout, kills stragglers and waits at
// most kill_grace more. No worker starts afterwards.
func (s *Supervisor) ShutdownAll() error {
	s.mu.Lock()
	s.shuttingDown = true
	var changed []models.WorkerStatus
	for _, h := range s.workers {
		if h.state == models.WorkerRestarting {
			s.cancelRestart(h)
			h.state = models.WorkerStopped
			changed = append(changed, h.status())
		}
	}
	s.mu.Unlock()
	for _, st := range changed {
		s.notify(st)
	}

	// Starts already past the shutdown check finish before we collect.
	s.launching.Wait()

	type victim struct {
		name string
		h    *handle
		proc Process
	}
	s.mu.Lock()
	var victims []victim
	for name, h := range s.workers {
		if h.proc != nil && (h.state == models.WorkerRunning || h.state == models.WorkerStopping) {
			h.state = models.WorkerStopping
			victims = append(victims, victim{name: name, h: h, proc: h.proc})
		}
	}
	s.mu.Unlock()

	if len(victims) == 0 {
		s.logger.Info().Msg("Shutdown complete, no workers running")
		return nil
	}

	s.logger.Info().Int("workers", len(victims)).Dur("timeout", s.cfg.ShutdownTimeout).Msg("Shutting down workers")
	for _, v := range victims {
		if err := v.proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug().Err(err).Str("target", v.name).Msg("SIGTERM failed")
		}
	}

	grace := time.NewTimer(s.cfg.ShutdownTimeout)
	defer grace.Stop()
	var stragglers []victim
	for _, v := range victims {
		select {
		case <-v.proc.Done():
			continue
		case <-grace.C:
		}
		// The shared window has closed; everyone still alive is a straggler.
		for _, rest := range victims {
			select {
			case <-rest.proc.Done():
			default:
				stragglers = append(stragglers, rest)
			}
		}
		break
	}

	if len(stragglers) > 0 {
		for _, v := range stragglers {
			s.logger.Warn().Err(ErrShutdownTimeout).Str("target", v.name).Int("pid", v.proc.Pid()).Msg("Worker did not exit in time, killing")
			metrics.RecordShutdownKill(v.name)
			_ = v.proc.Signal(syscall.SIGKILL)
		}
		reaped := time.NewTimer(s.cfg.KillGrace)
		defer reaped.Stop()
	wait:
		for _, v := range stragglers {
			select {
			case <-v.proc.Done():
			case <-reaped.C:
				s.logger.Error().Msg("Workers not reaped after SIGKILL")
				break wait
			}
		}
	}

	s.mu.Lock()
	statuses := make([]models.WorkerStatus, 0, len(victims))
	for _, v := range victims {
		s.stopped(v.h)
		statuses = append(statuses, v.h.status())
	}
	s.mu.Unlock()
	for _, st := range statuses {
		s.notify(st)
	}

	if len(stragglers) > 0 {
		s.logger.Warn().Int("killed", len(stragglers)).Msg("Shutdown complete with forced kills")
		return fmt.Errorf("%w: %d of %d workers killed", ErrShutdownTimeout, len(stragglers), len(victims))
	}
	s.logger.Info().Int("workers", len(victims)).Msg("Shutdown complete")
	return nil
}

// Status returns the status of name.
func (s *Supervisor) Status(name string) (models.WorkerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.workers[name]
	if !ok {
		return models.WorkerStatus{}, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return h.status(), nil
}

// Statuses returns the status of every worker, sorted by name.
func (s *Supervisor) Statuses() []models.WorkerStatus {
	s.mu.Lock()
	out := make([]models.WorkerStatus, 0, len(s.workers))
	for _, h := range s.workers {
		out = append(out, h.status())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Config returns a copy of the configuration of name.
func (s *Supervisor) Config(name string) (config.WorkerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.workers[name]
	if !ok {
		return config.WorkerConfig{}, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return h.cfg.Clone(), nil
}

// Serve runs the health loop at health_interval until ctx is done.
func (s *Supervisor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.HealthInterval).Msg("Health loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Health loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.CheckHealth()
		}
	}
}

// CheckHealth inspects every running worker whose health check is due.
// A worker whose process has exited is handled on every call, whatever its
// check interval.
func (s *Supervisor) CheckHealth() {
	now := s.now()
	s.mu.Lock()
	var due []string
	for name, h := range s.workers {
		if h.state != models.WorkerRunning {
			continue
		}
		switch {
		case !now.Before(h.nextCheck):
			h.nextCheck = now.Add(h.cfg.HealthCheckInterval)
			due = append(due, name)
		case h.proc != nil && exited(h.proc):
			due = append(due, name)
		}
	}
	s.mu.Unlock()

	sort.Strings(due)
	for _, name := range due {
		s.check(name, now)
	}
}

func exited(p Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

func (s *Supervisor) check(name string, now time.Time) {
	s.mu.Lock()
	h, ok := s.workers[name]
	if !ok || h.state != models.WorkerRunning || h.proc == nil {
		s.mu.Unlock()
		return
	}
	proc := h.proc

	select {
	case <-proc.Done():
		reason := "exit"
		if h.killReason != "" {
			reason = h.killReason
		}
		exitErr := proc.Err()
		if exitErr == nil {
			exitErr = errors.New("exited")
		}
		s.crashed(h, reason, fmt.Errorf("%w: %v", ErrWorkerCrashed, exitErr))
		st := h.status()
		s.mu.Unlock()
		s.notify(st)
		return
	default:
	}

	if h.killReason != "" {
		// Already killed, waiting for the exit to be observed.
		s.mu.Unlock()
		return
	}

	if hang := h.cfg.HangTimeout; hang > 0 && now.Sub(h.lastHealthAt) > hang {
		h.killReason = "hang"
		silent := now.Sub(h.lastHealthAt)
		s.mu.Unlock()
		s.logger.Error().
			Str("target", name).
			Int("pid", proc.Pid()).
			Dur("silent_for", silent).
			Dur("hang_timeout", hang).
			Msg("Worker hung, killing")
		_ = proc.Signal(syscall.SIGKILL)
		return
	}

	limits := h.cfg.Limits
	restartOnBreach := h.cfg.Restart.RestartOnResourceBreach && h.cfg.Restart.AutoRestart &&
		h.restartCount < h.cfg.Restart.MaxRestarts
	s.mu.Unlock()

	if s.sampler == nil {
		return
	}
	usage, err := s.sampler.Sample(proc.Pid())
	if err != nil {
		s.logger.Debug().Err(err).Str("target", name).Msg("Resource sample failed")
		return
	}
	metrics.RecordWorkerResources(name, usage.CPUPercent, usage.RSSBytes)

	var breached []string
	if limits.MaxCPUPercent > 0 && usage.CPUPercent > limits.MaxCPUPercent {
		breached = append(breached, "cpu")
	}
	if limits.MaxMemoryMB > 0 && usage.RSSBytes > limits.MaxMemoryMB*1024*1024 {
		breached = append(breached, "memory")
	}

	s.mu.Lock()
	if h.proc == proc {
		h.usage = usage
	}
	if len(breached) > 0 && restartOnBreach && h.proc == proc && h.killReason == "" {
		h.killReason = "resources"
	} else {
		restartOnBreach = false
	}
	s.mu.Unlock()

	if len(breached) == 0 {
		return
	}
	for _, r := range breached {
		metrics.RecordResourceBreach(name, r)
	}
	s.logger.Warn().
		Err(ErrResourceExceeded).
		Str("target", name).
		Strs("resources", breached).
		Float64("cpu_percent", usage.CPUPercent).
		Uint64("rss_bytes", usage.RSSBytes).
		Bool("restarting", restartOnBreach).
		Msg("Worker exceeded resource limits")
	if restartOnBreach {
		_ = proc.Signal(syscall.SIGKILL)
	}
}

// crashed records an unexpected exit of h and schedules a restart when the
// policy allows one (must be called with mu held).
func (s *Supervisor) crashed(h *handle, reason string, err error) {
	name := h.cfg.Name
	if h.proc != nil && s.sampler != nil {
		s.sampler.Forget(h.proc.Pid())
	}
	h.proc = nil
	h.usage = ResourceUsage{}
	h.killReason = ""
	h.state = models.WorkerCrashed
	h.crashCount++
	h.lastErr = err.Error()
	metrics.RecordWorkerCrash(name, reason)

	policy := h.cfg.Restart
	switch {
	case s.shuttingDown || !policy.AutoRestart:
		s.logger.Error().Err(err).Str("target", name).Str("reason", reason).Msg("Worker crashed")
	case h.restartCount >= policy.MaxRestarts:
		h.needsAttention = true
		s.logger.Error().
			Err(err).
			Str("target", name).
			Str("reason", reason).
			Int("restart_count", h.restartCount).
			Int("max_restarts", policy.MaxRestarts).
			Msg("Worker crashed, restart limit reached, manual action required")
	default:
		h.restartCount++
		delay := h.backoff.NextBackOff()
		h.state = models.WorkerRestarting
		h.nextRestartAt = s.now().Add(delay)
		h.restartToken++
		token := h.restartToken
		h.restartTimer = time.AfterFunc(delay, func() { s.scheduledRestart(name, token) })
		metrics.RecordWorkerRestart(name)
		s.logger.Warn().
			Err(err).
			Str("target", name).
			Str("reason", reason).
			Int("restart_count", h.restartCount).
			Dur("delay", delay).
			Msg("Worker crashed, restart scheduled")
	}
}

func (s *Supervisor) scheduledRestart(name string, token uint64) {
	s.mu.Lock()
	h, ok := s.workers[name]
	current := ok && h.state == models.WorkerRestarting && h.restartToken == token
	s.mu.Unlock()
	if !current {
		return
	}
	if err := s.start(name, true); err != nil && !errors.Is(err, ErrShuttingDown) {
		s.logger.Debug().Err(err).Str("target", name).Msg("Scheduled restart failed")
	}
}

// cancelRestart stops a pending restart timer (must be called with mu held).
func (s *Supervisor) cancelRestart(h *handle) {
	if h.restartTimer != nil {
		h.restartTimer.Stop()
		h.restartTimer = nil
	}
	h.restartToken++
	h.nextRestartAt = time.Time{}
}

func (s *Supervisor) notify(st models.WorkerStatus) {
	metrics.SetWorkerState(st.Name, st.State)
	for _, fn := range s.listeners {
		fn(st)
	}
}
