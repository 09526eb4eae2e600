// Package auth verifies the bearer tokens issued by the login application.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Identity is the authenticated principal bound to a connection or request
type Identity struct {
	UserID   string
	Username string
}

// TokenVerifier validates a credential and returns the identity it carries
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

var (
	ErrNoCredential    = errors.New("authorization header empty")
	ErrMalformedHeader = errors.New("invalid authorization header format")
)

// ParseBearerToken extracts the token from an Authorization header value
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMalformedHeader
	}
	return strings.TrimSpace(parts[1]), nil
}

// CredentialFromRequest reads the bearer header, falling back to the
// ?token= query parameter browsers use for websocket handshakes.
func CredentialFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		return ParseBearerToken(h)
	}
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t, nil
	}
	return "", ErrNoCredential
}

type identityKey struct{}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
