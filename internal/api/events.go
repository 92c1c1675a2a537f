package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/exam-engine/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSessionEventsWS streams timer ticks and status transitions for one
// session over a websocket. The stream ends when the session is deleted or
// reaped, or when the client disconnects.
func (s *Server) handleSessionEventsWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	c, err := s.sessions.Get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("session events websocket connected", "session_id", id)

	events, cancel := c.Subscribe()
	defer cancel()

	// Send the current state immediately so the client doesn't wait a tick
	view := c.View()
	if err := conn.WriteJSON(models.SessionEvent{
		Type:             "status",
		Status:           view.Status,
		RemainingSeconds: view.RemainingSeconds,
	}); err != nil {
		return
	}

	// Drain client frames so pings/closes are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("session events websocket disconnected", "session_id", id)
			return
		case ev, ok := <-events:
			if !ok {
				// Session closed or reaped
				slog.Info("session events stream ended", "session_id", id)
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("failed to send session event", "error", err)
				return
			}
		}
	}
}
