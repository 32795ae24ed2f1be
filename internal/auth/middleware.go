package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// CookieName is the cookie holding the session token.
const CookieName = "token"

// Middleware extracts the session token from the cookie or the Authorization
// header. The raw token is always forwarded; claims are attached only when
// the issuer verifies the token. Anonymous requests pass through.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := requestToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithToken(r.Context(), token)
			if issuer != nil {
				claims, err := issuer.Verify(token)
				if err != nil {
					slog.DebugContext(ctx, "Session token rejected", "error", err)
				} else {
					ctx = WithClaims(ctx, claims)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
