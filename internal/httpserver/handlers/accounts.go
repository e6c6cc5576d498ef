package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
)

type balanceResponse struct {
	Principal domain.Principal `json:"principal"`
	Balance   int64            `json:"balance"`
}

// Balance returns the caller's own balance. Other principals' balances are not exposed.
func Balance(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		target := domain.Principal(chi.URLParam(r, "principal"))
		if target != p {
			writeError(w, http.StatusForbidden, "unauthorized", "balance of another principal")
			return
		}
		balance, err := d.Registry.Balance(r.Context(), target)
		if err != nil {
			writeRegistryError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse{Principal: target, Balance: balance})
	}
}
