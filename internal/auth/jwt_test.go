package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/agency-crm/internal/auth"
	"github.com/jmehdipour/agency-crm/internal/config"
)

func newVerifier(t *testing.T, issuer string) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    issuer,
		Leeway:    time.Second,
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestSignVerify_RoundTrip(t *testing.T) {
	v := newVerifier(t, "agency-crm")

	tok, err := v.Sign("ops", 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ops" || claims.Issuer != "agency-crm" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := newVerifier(t, "")

	// Sign never produces expired tokens, so build one by hand
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := newVerifier(t, "agency-crm")
	other := newVerifier(t, "someone-else")

	foreign, err := other.Sign("ops", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "agency-crm"}).
		SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "agency-crm",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := map[string]string{
		"garbage":      "not.a.token",
		"wrong issuer": foreign,
		"no expiry":    noExp,
		"alg none":     unsigned,
	}
	for name, tok := range cases {
		if _, err := v.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("%s: expected invalid token, got %v", name, err)
		}
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := auth.NewVerifier(config.AuthConfig{}); !errors.Is(err, auth.ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}
