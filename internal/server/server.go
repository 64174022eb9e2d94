// Package server exposes the downstream WebSocket endpoint plus the
// operational health and metrics endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/solanastream/pumprelay/internal/hub"
	"github.com/solanastream/pumprelay/internal/upstream"
)

// StatusFunc reports the upstream connector's current state for /healthz.
type StatusFunc func() upstream.Status

// Server accepts downstream WebSocket connections and hands them to the
// distribution hub.
type Server struct {
	hub      *hub.Hub
	status   StatusFunc
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a server registering accepted connections with h.
func New(h *hub.Hub, status StatusFunc, logger *zerolog.Logger) *Server {
	return &Server{
		hub:    h,
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Consumers are anonymous; origin checks are not part of
			// this service's contract.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the HTTP handler for the relay's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleWebSocket upgrades the connection, registers it with the hub, and
// starts its pumps. The welcome frame is queued by the hub during
// registration, ahead of any broadcast.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := s.hub.Register(conn, r.RemoteAddr)
	if client == nil {
		// Hub is shutting down.
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// handleHealth reports connector state and client count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"upstream": s.status(),
		"clients":  s.hub.Len(),
	})
}
