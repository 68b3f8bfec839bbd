package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "5d0e6b4c-6a8f-4a55-9f4e-0d3f8a1c2b7e"

func newKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "cenackle-identity",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	}
}

func TestJWTResolver(t *testing.T) {
	key, pubPEM := newKeyPair(t)
	otherKey, _ := newKeyPair(t)

	r, err := NewJWTResolver(pubPEM, "cenackle-identity")
	require.NoError(t, err)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	badSubject := validClaims()
	badSubject.Subject = "admin"

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"valid token", sign(t, jwt.SigningMethodRS256, key, validClaims()), userID},
		{"empty token", "", ""},
		{"garbage", "not-a-jwt", ""},
		{"expired", sign(t, jwt.SigningMethodRS256, key, expired), ""},
		{"signed by another key", sign(t, jwt.SigningMethodRS256, otherKey, validClaims()), ""},
		{"hmac downgrade", sign(t, jwt.SigningMethodHS256, pubPEM, validClaims()), ""},
		{"wrong issuer", sign(t, jwt.SigningMethodRS256, key, wrongIssuer), ""},
		{"non uuid subject", sign(t, jwt.SigningMethodRS256, key, badSubject), ""},
		{"no expiry", sign(t, jwt.SigningMethodRS256, key, noExpiry), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.token)
			assert.NoError(t, err, "invalid tokens resolve to anonymous")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJWTResolverRejectsBadPEM(t *testing.T) {
	_, err := NewJWTResolver([]byte("nope"), "")
	assert.Error(t, err)
}
