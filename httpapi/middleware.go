package httpapi

import (
	"context"
	"net/http"

	"github.com/xraph/turnstile/id"
)

type contextKey string

const principalKey contextKey = "turnstile.principal"

// requireAuth authenticates the session cookie and stores the principal
// ID in the request context. Responses never distinguish a missing
// cookie from an invalid one.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		principalID, err := h.auth.Verify(cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFrom returns the authenticated principal ID. Only valid on
// routes behind requireAuth.
func principalFrom(ctx context.Context) id.PrincipalID {
	principalID, _ := ctx.Value(principalKey).(id.PrincipalID)
	return principalID
}
