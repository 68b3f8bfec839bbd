package identity

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

var _ ports.IdentityResolver = (*JWTResolver)(nil)

// JWTResolver vérifie les access tokens émis par identity-service (RS256, clé publique seule).
// Un token absent, expiré ou invalide donne un viewer anonyme, jamais une erreur.
type JWTResolver struct {
	publicKey *rsa.PublicKey
	issuer    string
}

func NewJWTResolver(publicKeyPEM []byte, issuer string) (*JWTResolver, error) {
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &JWTResolver{publicKey: pubKey, issuer: issuer}, nil
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired()}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Empêche les attaques où l'alg est forcé à "none" ou "HS256"
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.publicKey, nil
	}, opts...)
	if err != nil {
		slog.Debug("Rejected identity token", "error", err)
		return "", nil
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", nil
	}

	// Le subject sert d'id interne dans les requêtes SQL
	if _, err := uuid.Parse(claims.Subject); err != nil {
		slog.Debug("Identity token with non-uuid subject", "subject", claims.Subject)
		return "", nil
	}
	return claims.Subject, nil
}
