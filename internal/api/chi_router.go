// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/middleware"
	ws "github.com/UVuruna/Robin-sub000/internal/websocket"
)

// Deps are the components the control API serves.
type Deps struct {
	Workers WorkerController
	State   StateReader

	// Hub streams live updates on /ws. Nil disables the endpoint.
	Hub *ws.Hub

	Server         config.ServerConfig
	WorkerDefaults config.WorkerConfig
	StopTimeout    time.Duration

	// OnShutdown runs after POST /api/v1/shutdown has stopped all workers.
	OnShutdown func()
}

// Router builds the control API.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	server        config.ServerConfig
}

// NewRouter creates a Router.
func NewRouter(deps Deps) *Router {
	stopTimeout := deps.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Router{
		handler: &Handler{
			workers:        deps.Workers,
			state:          deps.State,
			hub:            deps.Hub,
			workerDefaults: deps.WorkerDefaults,
			stopTimeout:    stopTimeout,
			corsOrigins:    deps.Server.CORSOrigins,
			onShutdown:     deps.OnShutdown,
			now:            time.Now,
		},
		chiMiddleware: NewChiMiddleware(ChiMiddlewareConfigFrom(deps.Server)),
		server:        deps.Server,
	}
}

// SetupChi returns the HTTP handler with every route.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", router.handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", router.handler.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.Get("/workers", router.handler.WorkerList)
		r.With(router.chiMiddleware.RateLimit("register")).Post("/workers", router.handler.WorkerRegister)

		r.Route("/workers/{name}", func(r chi.Router) {
			r.Get("/", router.handler.WorkerGet)
			r.Get("/state", router.handler.WorkerState)
			r.Get("/history", router.handler.WorkerHistory)
			r.Get("/health", router.handler.WorkerHealth)

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimit("control"))
				r.Post("/start", router.handler.WorkerStart)
				r.Post("/stop", router.handler.WorkerStop)
				r.Post("/restart", router.handler.WorkerRestart)
				r.Post("/reset", router.handler.WorkerReset)
			})
		})

		r.With(router.chiMiddleware.RateLimit("shutdown")).Post("/shutdown", router.handler.ShutdownAll)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed", nil)
	})
	return r
}

// NewServer returns an *http.Server for the control API.
func (router *Router) NewServer() *http.Server {
	timeout := router.server.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              net.JoinHostPort(router.server.Host, strconv.Itoa(router.server.Port)),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Stop and shutdown requests wait for workers to exit.
		WriteTimeout: 0,
		IdleTimeout:  2 * timeout,
	}
}
