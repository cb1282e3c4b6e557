package handler

import (
	"net/http"

	"github.com/wingertjp/polymarket/internal/domain"
)

// StatusSource reports the bot's current operational state.
type StatusSource interface {
	Status() domain.BotStatus
}

// StatusHandler serves the live bot status: mode, current window, bet phase
// and the latest signal snapshot.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler reading from source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the current BotStatus.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.source.Status())
}
