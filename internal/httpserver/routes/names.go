package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ans/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ans/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/ans/internal/httpserver/mw"
)

func init() { Register("names", registerNames) }

func registerNames(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:          d.RateBurst,
		RefillPerMin:   d.RatePerMin,
		MaxEntries:     10_000,
		TrustProxy:     d.TrustProxy,
		KeyByPrincipal: true,
		Now:            d.TimeNow,
	})

	r.Route("/names", func(r chi.Router) {
		r.Get("/{name}", handlers.Resolve(d))

		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(d.Keyring, d.Logger), limit)

			r.Post("/", handlers.Register(d))
			r.Post("/{name}/transfer", handlers.Transfer(d))
			r.Put("/{name}/endpoint", handlers.UpdateEndpoint(d))
			r.Post("/{name}/listing", handlers.ListForSale(d))
			r.Delete("/{name}/listing", handlers.Unlist(d))
			r.Post("/{name}/buy", handlers.Buy(d))
			r.Post("/{name}/renew", handlers.Renew(d))
		})
	})
}
