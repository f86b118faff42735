package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader carries the shared key for service-to-service calls.
const APIKeyHeader = "X-API-Key"

// ExtractBearerToken returns the token from an "Authorization: Bearer" header,
// or "" when absent. The scheme is matched case-insensitively.
func ExtractBearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// ExtractToken prefers the Authorization header and falls back to the query
// parameter, "token" by default. Browsers cannot set headers on a websocket
// handshake, so the query form is the common one there.
func ExtractToken(r *http.Request, queryParam string) string {
	if token := ExtractBearerToken(r); token != "" {
		return token
	}
	if r == nil || r.URL == nil {
		return ""
	}
	if queryParam == "" {
		queryParam = "token"
	}
	return strings.TrimSpace(r.URL.Query().Get(queryParam))
}

// ExtractAPIKey returns the X-API-Key header value.
func ExtractAPIKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

// EqualKeys compares two shared keys in constant time.
func EqualKeys(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
