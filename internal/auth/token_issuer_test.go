package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSigningSecret = "0123456789abcdef-session-secret"

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "vendor-sync-test",
		Audience:      "vendor-sync-test-api",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	tokenString, expiresIn, err := issuer.IssueSessionToken(context.Background(), "0190c6a4-user")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64(DefaultSessionTTL/time.Second) {
		t.Fatalf("expected default 30 day lifetime, got %d", expiresIn)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSigningSecret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "0190c6a4-user" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "vendor-sync-test" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "vendor-sync-test-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	tokenString, _, err := issuer.IssueSessionToken(context.Background(), "user-321")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	userID, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if userID != "user-321" {
		t.Fatalf("unexpected user id %s", userID)
	}
}

func TestTokenIssuerRejectsForeignAndStaleTokens(t *testing.T) {
	issuedAt := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return issuedAt })
	tokenString, _, err := issuer.IssueSessionToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	later := newTestIssuer(t, func() time.Time { return issuedAt.Add(DefaultSessionTTL + time.Minute) })
	if _, err := later.ValidateToken(tokenString); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	foreign, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("fedcba9876543210-other-secret"),
		Issuer:        "vendor-sync-test",
		Audience:      "vendor-sync-test-api",
		Clock:         func() time.Time { return issuedAt },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, err := foreign.ValidateToken(tokenString); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected token signed with another secret to be rejected, got %v", err)
	}

	otherAudience, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "vendor-sync-test",
		Audience:      "someone-else",
		Clock:         func() time.Time { return issuedAt },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, err := otherAudience.ValidateToken(tokenString); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected audience mismatch to be rejected, got %v", err)
	}

	for _, malformed := range []string{"", "invalid.token", "a.b.c"} {
		if _, err := issuer.ValidateToken(malformed); !errors.Is(err, ErrInvalidSessionToken) {
			t.Fatalf("expected %q to be rejected, got %v", malformed, err)
		}
	}
}

func TestTokenIssuerRejectsUnsignedAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	now := time.Now()
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "vendor-sync-test",
		Audience:  jwt.ClaimStrings{"vendor-sync-test-api"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}
	if _, err := issuer.ValidateToken(tokenString); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected alg=none token to be rejected, got %v", err)
	}
}

func TestIssueSessionTokenRequiresUserID(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, _, err := issuer.IssueSessionToken(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestNewTokenIssuerValidatesSecret(t *testing.T) {
	testCases := []struct {
		name   string
		secret []byte
	}{
		{name: "missing", secret: nil},
		{name: "short", secret: []byte("tiny")},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: testCase.secret})
			if !errors.Is(err, ErrInvalidIssuerConfig) {
				t.Fatalf("expected invalid issuer config, got %v", err)
			}
		})
	}
}

func TestNewTokenIssuerAppliesDefaults(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if issuer.issuer != DefaultTokenIssuer || issuer.audience != DefaultTokenAudience || issuer.ttl != DefaultSessionTTL {
		t.Fatalf("unexpected defaults: %s %s %s", issuer.issuer, issuer.audience, issuer.ttl)
	}
}
