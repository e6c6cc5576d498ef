package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
)

const probeTimeout = 2 * time.Second

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports ready once the store answers and at least one principal is known.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Reason: "store unreachable"})
			return
		}
		if d.Keyring.Count() == 0 {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Reason: "keyring empty"})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
