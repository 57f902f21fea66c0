package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/biogate/biogate/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService mints access tokens for issued sessions. It signs with an
// ephemeral Ed25519 key generated at startup: tokens do not outlive the
// process, which matches the in-memory session model.
type TokenService struct {
	issuer string
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// TokenClaims are the claims carried by an access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Role   string `json:"role,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// NewTokenService generates a fresh signing key and returns the service.
func NewTokenService(issuer string) (*TokenService, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &TokenService{issuer: issuer, priv: priv, pub: pub}, nil
}

// Mint creates the token pair for a successful verification: a signed access
// token and an opaque random refresh token.
func (s *TokenService) Mint(identity *model.Identity, origin string, issuedAt, expiresAt time.Time) (accessToken, refreshToken string, err error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:   string(identity.Role),
		Origin: origin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	accessToken, err = token.SignedString(s.priv)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refreshToken = hex.EncodeToString(raw)

	return accessToken, refreshToken, nil
}

// Validate parses and verifies an access token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
