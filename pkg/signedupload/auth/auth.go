// Package auth verifies caller bearer tokens against the identity provider.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Identity is the verified caller. SubjectID scopes the caller's upload folder.
type Identity struct {
	SubjectID string
	Email     string
}

// Verifier validates a bearer token and returns the identity it proves.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a function to Verifier
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f VerifierFunc) VerifyToken(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// Verification errors
var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("auth: missing bearer token")

	// ErrInvalidToken is returned when the token cannot be verified
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrExpiredToken is returned when the token is past its expiry
	ErrExpiredToken = errors.New("auth: token expired")

	// ErrNoSubject is returned when a valid token has no subject
	ErrNoSubject = errors.New("auth: token has no subject")

	// ErrProviderUnavailable is returned when the identity provider cannot be reached
	ErrProviderUnavailable = errors.New("auth: identity provider unavailable")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	if strings.EqualFold(header, "bearer") {
		return "", ErrMissingToken
	}
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type contextKey string

const identityKey contextKey = "auth:identity"

// WithIdentity stores a verified identity in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by WithIdentity
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
