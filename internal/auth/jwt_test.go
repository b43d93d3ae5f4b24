package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifierValid(t *testing.T) {
	v, err := NewJWTVerifier("secret")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	sig := signToken(t, "secret", jwt.MapClaims{
		"sub":      "user-1",
		"status":   "premium",
		"verified": true,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
	})

	id, err := v.Verify(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, "premium", id.Status)
	assert.True(t, id.Verified)
	assert.Equal(t, now, id.Time)
	assert.Equal(t, now.Add(time.Hour), id.ValidUntil)
}

func TestJWTVerifierErrorKinds(t *testing.T) {
	v, err := NewJWTVerifier("secret")
	require.NoError(t, err)

	now := time.Now().UTC()

	tests := []struct {
		name string
		sig  string
		want error
	}{
		{
			name: "empty signature",
			sig:  "",
			want: ErrMissing,
		},
		{
			name: "garbage token",
			sig:  "not-a-jwt",
			want: ErrInvalid,
		},
		{
			name: "wrong secret",
			sig: signToken(t, "other-secret", jwt.MapClaims{
				"sub": "user-1",
				"exp": now.Add(time.Hour).Unix(),
			}),
			want: ErrInvalid,
		},
		{
			name: "expired token",
			sig: signToken(t, "secret", jwt.MapClaims{
				"sub": "user-1",
				"exp": now.Add(-time.Hour).Unix(),
			}),
			want: ErrExpired,
		},
		{
			name: "missing expiry",
			sig: signToken(t, "secret", jwt.MapClaims{
				"sub": "user-1",
			}),
			want: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.sig)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, Recognized(err), "mapped errors must be recognized kinds")
		})
	}
}

func TestNewJWTVerifierEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.Error(t, err)
}

func TestRecognized(t *testing.T) {
	assert.True(t, Recognized(ErrMissing))
	assert.True(t, Recognized(ErrInvalid))
	assert.True(t, Recognized(ErrExpired))
	assert.False(t, Recognized(context.Canceled))
	assert.False(t, Recognized(nil))
}

func TestGuest(t *testing.T) {
	now := time.Now().UTC()
	g := Guest(now)
	assert.Equal(t, "guest", g.Subject)
	assert.Equal(t, "guest", g.Status)
	assert.False(t, g.Verified)
	assert.Equal(t, now, g.Time)
	assert.Equal(t, now.Add(GuestValidity), g.ValidUntil)
}
