// Package auth provides HTTP middleware guarding the MCP endpoint with a
// static bearer token.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware returns chi-compatible middleware that requires
//
//	Authorization: Bearer <token>
//
// on every request. An empty token disables the check. The prefix is
// case-sensitive and the comparison runs in constant time. Rejections are
// logged at Warn when logger is non-nil and answered with 401 and a
// WWW-Authenticate challenge.
func NewAuthMiddleware(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || provided == "" || subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
				if logger != nil {
					logger.Warn("mcp request rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "has_header", ok)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="gqlauth"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
