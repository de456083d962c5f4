// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	ws "github.com/UVuruna/Robin-sub000/internal/websocket"
)

// registerTimeout bounds the hand-off of a new client to the hub loop.
const registerTimeout = 5 * time.Second

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts configured origins. Requests without an
// Origin header (non-browser clients) are accepted only when every origin
// is allowed.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket handles GET /ws. ?targets=a,b limits the stream to those
// targets; clients can change the selection later with a subscribe message.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "live updates unavailable", nil)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	client.SetTargets(parseCommaSeparated(r.URL.Query().Get("targets")))

	select {
	case h.hub.Register <- client:
		client.Start()
	case <-time.After(registerTimeout):
		logging.Warn().Msg("WebSocket hub not accepting clients")
		_ = conn.Close()
	}
}
