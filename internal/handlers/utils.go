package handlers

import (
	"net/http"
	"strings"

	"github.com/jason-s-yu/peerplay/internal/auth"
)

// AuthCookie carries the directory token for browser-style clients.
const AuthCookie = "auth_token"

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == cookieName {
			return value
		}
	}
	return ""
}

// requestToken prefers an "Authorization: Bearer" header over the auth cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return extractCookieToken(r.Header.Get("Cookie"), AuthCookie)
}

// authenticate writes 401 for a missing token and 403 for an invalid one.
func (s *APIServer) authenticate(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	token := requestToken(r)
	if token == "" {
		http.Error(w, "missing auth token", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	claims, err := s.signer.AuthenticateJWT(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return auth.Claims{}, false
	}
	return claims, true
}
