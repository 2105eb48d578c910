package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carmarket/carmarket/internal/domain"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ValidationError{Field: "price", Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", &domain.ValidationError{Field: "year", Reason: "bad"}), http.StatusBadRequest},
		{domain.ErrInvalidID, http.StatusBadRequest},
		{domain.ErrSubmissionRejected, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadySold, http.StatusConflict},
		{domain.ErrNotConnected, http.StatusConflict},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{domain.ErrSignerBinding, http.StatusForbidden},
		{domain.ErrWalletUnavailable, http.StatusServiceUnavailable},
		{domain.ErrGas, http.StatusBadGateway},
		{domain.ErrUnknownSubmission, http.StatusBadGateway},
		{fmt.Errorf("chain: %w", domain.ErrGas), http.StatusBadGateway},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=0", 50},
		{"limit=-3", 50},
		{"limit=oops", 50},
		{"limit=9999", 500},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/activity?"+tt.query, nil)
		if got := parseLimit(r); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var gotID uint64
	var gotErr error
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotID, gotErr = pathID(r, "id")
	})

	for _, tt := range []struct {
		path  string
		id    uint64
		valid bool
	}{
		{"/items/7", 7, true},
		{"/items/0", 0, false},
		{"/items/abc", 0, false},
		{"/items/-1", 0, false},
	} {
		gotID, gotErr = 0, nil
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		if tt.valid {
			if gotErr != nil || gotID != tt.id {
				t.Errorf("pathID(%q) = (%d, %v), want (%d, nil)", tt.path, gotID, gotErr, tt.id)
			}
			continue
		}
		if gotErr == nil {
			t.Errorf("pathID(%q) = %d, want error", tt.path, gotID)
		}
	}
}
