// Package middleware holds the HTTP middleware shared by the API routes: access token
// authentication, client IP capture, and request logging with a trace span.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"identity-core/backend/internal/security"
)

const (
	bearerPrefix = "bearer "
	// AccessTokenCookie is the cookie holding the access token.
	AccessTokenCookie = "accessToken"
	// RefreshTokenCookie is the cookie holding the refresh token.
	RefreshTokenCookie = "refreshToken"
)

const unauthorizedMessage = "Unauthorized request"

// RequireAuth returns middleware that validates the access token from the accessToken cookie or
// the Authorization Bearer header and sets account_id, email, and role in the request context.
func RequireAuth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessToken(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}
			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			ctx := WithIdentity(r.Context(), claims.Subject, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken returns the access token from the cookie, falling back to the Bearer header.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return extractBearer(r.Header.Get("Authorization"))
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": http.StatusUnauthorized,
		"data":       nil,
		"message":    unauthorizedMessage,
	})
}
