package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/carmarket/carmarket/internal/domain"
	"github.com/carmarket/carmarket/internal/session"
)

// SessionManager is the session surface the handler drives.
type SessionManager interface {
	Connect(ctx context.Context, passphrase string) (session.Snapshot, error)
	SelectAccount(ctx context.Context, address, passphrase string) (session.Snapshot, error)
	Disconnect()
	Current() session.Snapshot
	Stats() (domain.AccountStats, error)
	RefreshStats(ctx context.Context) error
}

// SessionHandler serves the wallet session endpoints.
type SessionHandler struct {
	mgr    SessionManager
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(mgr SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{mgr: mgr, logger: logger}
}

type connectRequest struct {
	// Passphrase unlocks the account when the keystore holds exactly one;
	// with multiple accounts it is ignored and selection happens in a
	// second step.
	Passphrase string `json:"passphrase"`
}

type selectAccountRequest struct {
	Address    string `json:"address"`
	Passphrase string `json:"passphrase"`
}

// Connect begins a wallet session.
// POST /api/session
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	snap, err := h.mgr.Connect(r.Context(), req.Passphrase)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SelectAccount binds one of the offered accounts to the session.
// POST /api/session/account
func (h *SessionHandler) SelectAccount(w http.ResponseWriter, r *http.Request) {
	var req selectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	snap, err := h.mgr.SelectAccount(r.Context(), req.Address, req.Passphrase)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSession returns the current session snapshot.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Current())
}

// Disconnect ends the session.
// DELETE /api/session
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.mgr.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

// GetStats returns the connected account's balance and counts.
// GET /api/session/stats
func (h *SessionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.mgr.RefreshStats(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	stats, err := h.mgr.Stats()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
