package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates HMAC-SHA256 signed JWT tokens against a shared
// secret. It is the default Verifier implementation; deployments may swap in
// their own.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

type signatureClaims struct {
	Subject   string   `json:"sub"`
	Status    string   `json:"status,omitempty"`
	Verified  bool     `json:"verified,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	App       string   `json:"app,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and validates sig, mapping jwt failures onto the recognized
// error kinds. Errors outside that mapping are returned as-is and the caller
// must treat them as unrecognized.
func (v *JWTVerifier) Verify(ctx context.Context, sig string) (*Identity, error) {
	if sig == "" {
		return nil, ErrMissing
	}

	claims := &signatureClaims{}
	token, err := jwt.ParseWithClaims(sig, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenNotValidYet),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalid
		default:
			return nil, fmt.Errorf("verify signature: %w", err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalid
	}

	id := &Identity{
		Subject:   claims.Subject,
		Status:    claims.Status,
		Verified:  claims.Verified,
		Addresses: claims.Addresses,
		App:       claims.App,
	}
	if claims.IssuedAt != nil {
		id.Time = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ValidUntil = claims.ExpiresAt.Time
	} else {
		return nil, ErrInvalid
	}
	return id, nil
}
