// Package auth authenticates requests: it parses bearer tokens, hashes
// them, and resolves them to a tenant through the API-key database.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mlop-ai/ingest/apierr"
)

// Tokens with this prefix are stored verbatim; everything else is looked
// up by its SHA-256 hex digest.
const passthroughPrefix = "mlpi_"

// Resolver maps an API token to a tenant ID. The production implementation
// is *DB; tests substitute fakes.
type Resolver interface {
	TenantByAPIKey(ctx context.Context, token string) (string, error)
}

// HashAPIKey returns the database lookup key for a token: the token itself
// when it carries the passthrough prefix, otherwise the lower-case hex
// SHA-256 of the token.
func HashAPIKey(token string) string {
	if strings.HasPrefix(token, passthroughPrefix) {
		return token
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// validTokenChar permits ASCII alphanumerics plus '-', '_' and '.'.
func validTokenChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.':
		return true
	}
	return false
}

// Authorize extracts the bearer token from h, validates its shape, and
// resolves the tenant. The "Bearer " prefix match is exact and
// case-sensitive.
func Authorize(ctx context.Context, h http.Header, r Resolver) (string, error) {
	raw := h.Get("Authorization")
	if raw == "" {
		return "", apierr.New(apierr.MissingToken, "Missing Authorization header")
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return "", apierr.New(apierr.InvalidBearerFormat,
			"Authorization header must start with 'Bearer '")
	}
	token := strings.TrimSpace(raw[len("Bearer "):])
	if token == "" {
		return "", apierr.New(apierr.InvalidToken, "Bearer token cannot be empty")
	}
	for _, c := range token {
		if !validTokenChar(c) {
			return "", apierr.New(apierr.InvalidTokenFormat,
				"Bearer token contains invalid characters")
		}
	}
	return r.TenantByAPIKey(ctx, token)
}
