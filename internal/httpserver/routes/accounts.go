package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ans/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/ans/internal/httpserver/mw"
)

func init() { Register("accounts", registerAccounts) }

func registerAccounts(r chi.Router, d deps.Deps) {
	r.With(mw.Authenticate(d.Keyring, d.Logger)).Get("/accounts/{principal}/balance", handlers.Balance(d))
}
