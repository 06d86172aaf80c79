package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth"
)

// JWTVerifier verifies HS256 tokens signed with the identity provider's shared secret.
type JWTVerifier struct {
	ja     *jwtauth.JWTAuth
	leeway time.Duration
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for HS256 tokens.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		ja:     jwtauth.New("HS256", secret, nil),
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// JWTAuth exposes the underlying jwtauth instance, e.g. to mint tokens in tests and tools.
func (v *JWTVerifier) JWTAuth() *jwtauth.JWTAuth {
	return v.ja
}

func (v *JWTVerifier) VerifyToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	tok, err := v.ja.Decode(token)
	if err != nil || tok == nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := v.now()
	if exp := tok.Expiration(); !exp.IsZero() && now.After(exp.Add(v.leeway)) {
		return Identity{}, ErrExpiredToken
	}
	if nbf := tok.NotBefore(); !nbf.IsZero() && now.Add(v.leeway).Before(nbf) {
		return Identity{}, ErrInvalidToken
	}

	sub := tok.Subject()
	if sub == "" {
		return Identity{}, ErrNoSubject
	}

	id := Identity{SubjectID: sub}
	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			id.Email = s
		}
	}
	return id, nil
}

// IssueToken mints a token for subject, valid for ttl. Used by development tooling.
func (v *JWTVerifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{"sub": subject}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)
	_, tokenString, err := v.ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return tokenString, nil
}
