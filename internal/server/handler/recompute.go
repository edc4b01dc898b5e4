package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/outcomefi/vaultsync/internal/domain"
	"github.com/outcomefi/vaultsync/internal/engine"
)

// RecomputeHandler triggers full-history replays.
type RecomputeHandler struct {
	replayer *engine.Replayer
	logger   *slog.Logger
}

// NewRecomputeHandler creates a RecomputeHandler.
func NewRecomputeHandler(replayer *engine.Replayer, logger *slog.Logger) *RecomputeHandler {
	return &RecomputeHandler{
		replayer: replayer,
		logger:   logger.With(slog.String("handler", "recompute")),
	}
}

// RecomputeAll replays every provisioned market.
// POST /api/recompute
func (h *RecomputeHandler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.replayer.RecomputeAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "recompute all failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"markets": results,
	})
}

// RecomputeMarket replays a single market by condition ID.
// POST /api/recompute/{conditionId}
func (h *RecomputeHandler) RecomputeMarket(w http.ResponseWriter, r *http.Request) {
	conditionID := r.PathValue("conditionId")
	if conditionID == "" {
		writeError(w, http.StatusBadRequest, "missing condition id")
		return
	}

	result, err := h.replayer.RecomputeMarket(r.Context(), conditionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "recompute already running for this market")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown market")
		default:
			h.logger.ErrorContext(r.Context(), "recompute failed",
				slog.String("market", conditionID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"market":  result,
	})
}
