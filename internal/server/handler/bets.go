package handler

import (
	"log/slog"
	"net/http"

	"github.com/wingertjp/polymarket/internal/domain"
)

// BetHandler serves the persisted bet history.
type BetHandler struct {
	bets   domain.BetStore
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler. A nil store answers 503.
func NewBetHandler(bets domain.BetStore, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logHandler(logger, "bets")}
}

// ListBets returns recent bets, newest first.
// GET /api/bets?limit=&offset=&since=
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	if h.bets == nil {
		writeError(w, http.StatusServiceUnavailable, "bet store disabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bets, err := h.bets.ListBets(r.Context(), opts)
	if err != nil {
		h.logger.Error("list bets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.BetState{}
	}
	writeJSON(w, http.StatusOK, bets)
}
