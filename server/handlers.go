package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	startedAt time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers() *Handlers {
	return &Handlers{startedAt: time.Now()}
}

// HandleHealthz responds to liveness probe requests with a fixed OK.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus responds with a fixed running indicator plus process uptime.
// Deliberately exposes no per-user session state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "Bot is running",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
