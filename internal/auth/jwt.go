// Package auth mints and verifies the bearer tokens accepted by the API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/agency-crm/internal/config"
)

var (
	ErrMissingSecret = errors.New("auth: jwt secret is empty")
	ErrInvalidToken  = errors.New("auth: invalid or expired token")
)

type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed tokens against one shared secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	ttl    time.Duration
}

func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		ttl:    cfg.TokenTTL,
	}, nil
}

// Sign issues a token for subject. A non-positive ttl falls back to the
// configured token ttl.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = v.ttl
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify parses raw and returns its claims. Only HMAC algorithms are
// accepted; an expiry is mandatory.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
