package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/utils"
)

// TokenResolver maps a bearer token to a principal.
type TokenResolver interface {
	Lookup(token string) (domain.Principal, bool)
}

type principalKey struct{}

type slotKey struct{}

// principalSlot lets Authenticate report the caller back to Log, which runs
// further out in the chain and only sees its own request context.
type principalSlot struct{ principal string }

func withSlot(ctx context.Context, slot *principalSlot) context.Context {
	return context.WithValue(ctx, slotKey{}, slot)
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p.Valid()
}

// Authenticate rejects requests without a known "Authorization: Bearer <token>"
// and stores the resolved principal in the request context.
func Authenticate(tokens TokenResolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ans"`)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			p, ok := tokens.Lookup(token)
			if !ok {
				log.Debug("Authenticate: unknown token",
					logger.String("remote_ip", utils.ParseHostNoPort(r.RemoteAddr)))
				w.Header().Set("WWW-Authenticate", `Bearer realm="ans", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown bearer token")
				return
			}

			if slot, ok := r.Context().Value(slotKey{}).(*principalSlot); ok {
				slot.principal = string(p)
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
