// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/supervisor"
	"github.com/UVuruna/Robin-sub000/internal/validation"
	ws "github.com/UVuruna/Robin-sub000/internal/websocket"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// staleFactor marks a health sample stale once it is older than this many
// sampling intervals.
const staleFactor = 3

// WorkerController is the supervisor control surface used by the API.
type WorkerController interface {
	Register(cfg config.WorkerConfig) error
	Start(name string) error
	Stop(name string, timeout time.Duration) error
	Restart(name string) error
	ResetRestarts(name string) error
	ShutdownAll() error
	Status(name string) (models.WorkerStatus, error)
	Statuses() []models.WorkerStatus
}

// StateReader exposes what workers have reported.
type StateReader interface {
	State(target string) (models.RuntimeState, bool)
	Health(target string) (models.HealthSample, time.Time, bool)
	History(target string) []models.RoundRecord
}

// Handler serves the control API endpoints.
type Handler struct {
	workers        WorkerController
	state          StateReader
	hub            *ws.Hub
	workerDefaults config.WorkerConfig
	stopTimeout    time.Duration
	corsOrigins    []string
	onShutdown     func()
	now            func() time.Time
}

// WorkerList handles GET /api/v1/workers.
func (h *Handler) WorkerList(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.workers.Statuses())
}

// WorkerRegister handles POST /api/v1/workers. The body is a target
// definition in JSON or YAML, merged over the worker defaults. With
// ?start=true the worker is started right away.
func (h *Handler) WorkerRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body", nil)
		return
	}
	if len(body) > maxBodyBytes {
		respondError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large", nil)
		return
	}

	cfg, err := config.ParseTarget(body, h.workerDefaults)
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			respondSupervisorError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := h.workers.Register(cfg); err != nil {
		respondSupervisorError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("target", cfg.Name).Msg("Worker registered via API")

	if r.URL.Query().Get("start") == "true" {
		if err := h.workers.Start(cfg.Name); err != nil {
			respondSupervisorError(w, err)
			return
		}
	}
	st, err := h.workers.Status(cfg.Name)
	if err != nil {
		respondSupervisorError(w, err)
		return
	}
	respondData(w, http.StatusCreated, st)
}

// WorkerGet handles GET /api/v1/workers/{name}.
func (h *Handler) WorkerGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.workers.Status(chi.URLParam(r, "name"))
	if err != nil {
		respondSupervisorError(w, err)
		return
	}
	respondData(w, http.StatusOK, st)
}

// WorkerStart handles POST /api/v1/workers/{name}/start.
func (h *Handler) WorkerStart(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.workers.Start)
}

// WorkerStop handles POST /api/v1/workers/{name}/stop. An optional
// ?timeout=5s overrides the configured stop timeout.
func (h *Handler) WorkerStop(w http.ResponseWriter, r *http.Request) {
	timeout, err := parseDurationParam(r, "timeout", h.stopTimeout)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	h.control(w, r, "stop", func(name string) error { return h.workers.Stop(name, timeout) })
}

// WorkerRestart handles POST /api/v1/workers/{name}/restart.
func (h *Handler) WorkerRestart(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "restart", h.workers.Restart)
}

// WorkerReset handles POST /api/v1/workers/{name}/reset. It clears the
// restart count and the needs-attention flag.
func (h *Handler) WorkerReset(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "reset", h.workers.ResetRestarts)
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, action string, fn func(string) error) {
	name := chi.URLParam(r, "name")
	if err := fn(name); err != nil {
		respondSupervisorError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("target", name).Str("action", action).Msg("Worker control action")
	st, err := h.workers.Status(name)
	if err != nil {
		respondSupervisorError(w, err)
		return
	}
	respondData(w, http.StatusOK, st)
}

// ShutdownAll handles POST /api/v1/shutdown. All workers are stopped
// within the shutdown bound; then the supervisor process is asked to exit.
func (h *Handler) ShutdownAll(w http.ResponseWriter, r *http.Request) {
	err := h.workers.ShutdownAll()
	forced := errors.Is(err, supervisor.ErrShutdownTimeout)
	if err != nil && !forced {
		respondSupervisorError(w, err)
		return
	}
	logging.Ctx(r.Context()).Warn().Bool("forced", forced).Msg("All workers shut down via API")
	respondData(w, http.StatusOK, map[string]interface{}{
		"forced":  forced,
		"workers": h.workers.Statuses(),
	})
	if h.onShutdown != nil {
		go h.onShutdown()
	}
}

// WorkerState handles GET /api/v1/workers/{name}/state.
func (h *Handler) WorkerState(w http.ResponseWriter, r *http.Request) {
	name, ok := h.knownWorker(w, r)
	if !ok {
		return
	}
	st, ok := h.state.State(name)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNoData, "worker has not reported state yet", nil)
		return
	}
	respondData(w, http.StatusOK, st)
}

// WorkerHistory handles GET /api/v1/workers/{name}/history. ?limit=N
// returns the N most recent rounds.
func (h *Handler) WorkerHistory(w http.ResponseWriter, r *http.Request) {
	name, ok := h.knownWorker(w, r)
	if !ok {
		return
	}
	limit, err := getIntParam(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	rounds := h.state.History(name)
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[len(rounds)-limit:]
	}
	if rounds == nil {
		rounds = []models.RoundRecord{}
	}
	respondData(w, http.StatusOK, rounds)
}

// HealthView is the response of the worker health endpoint.
type HealthView struct {
	Sample     models.HealthSample `json:"sample"`
	ReceivedAt time.Time           `json:"received_at"`
	AgeSeconds float64             `json:"age_seconds"`
	Stale      bool                `json:"stale"`
}

// WorkerHealth handles GET /api/v1/workers/{name}/health.
func (h *Handler) WorkerHealth(w http.ResponseWriter, r *http.Request) {
	name, ok := h.knownWorker(w, r)
	if !ok {
		return
	}
	sample, at, ok := h.state.Health(name)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNoData, "worker has not reported health yet", nil)
		return
	}
	age := h.now().Sub(at)
	interval := sample.Metrics.Interval
	if interval <= 0 {
		interval = time.Second
	}
	respondData(w, http.StatusOK, HealthView{
		Sample:     sample,
		ReceivedAt: at,
		AgeSeconds: age.Seconds(),
		Stale:      age > staleFactor*interval,
	})
}

func (h *Handler) knownWorker(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if _, err := h.workers.Status(name); err != nil {
		respondSupervisorError(w, err)
		return "", false
	}
	return name, true
}

// Healthz handles GET /healthz. It reports worker counts per state and
// whether any worker needs manual attention.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	attention := 0
	for _, st := range h.workers.Statuses() {
		counts[st.State.String()]++
		if st.NeedsAttention {
			attention++
		}
	}
	status := "ok"
	if attention > 0 {
		status = "degraded"
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":          status,
		"workers":         counts,
		"needs_attention": attention,
	})
}
