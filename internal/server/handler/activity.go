package handler

import (
	"log/slog"
	"net/http"

	"github.com/carmarket/carmarket/internal/domain"
)

// ActivityHandler serves the persisted contract-event log.
type ActivityHandler struct {
	store  domain.ActivityStore
	logger *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(store domain.ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, logger: logger}
}

// ListRecent returns the newest activity entries.
// GET /api/activity?limit=...
func (h *ActivityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	acts, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		logHandler(h.logger, "activity").ErrorContext(r.Context(), "list failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "activity lookup failed")
		return
	}
	if acts == nil {
		acts = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": acts})
}
