package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwksFixture struct {
	privateKey *rsa.PrivateKey
	server     *httptest.Server
	fetches    atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	fixture := &jwksFixture{privateKey: privateKey}
	document := map[string]any{
		"keys": []any{
			map[string]string{
				"kty": "RSA",
				"alg": "RS256",
				"kid": "test-key",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
			},
		},
	}
	fixture.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/v3/certs" {
			http.NotFound(w, r)
			return
		}
		fixture.fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(document)
	}))
	t.Cleanup(fixture.server.Close)
	return fixture
}

func (f *jwksFixture) verifier(t *testing.T) *GoogleVerifier {
	t.Helper()
	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{
		ClientID:   "test-client",
		JWKSURL:    f.server.URL + "/oauth2/v3/certs",
		HTTPClient: f.server.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return verifier
}

func (f *jwksFixture) sign(t *testing.T, keyID string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(f.privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validGoogleClaims() jwt.MapClaims {
	now := time.Now().UTC()
	return jwt.MapClaims{
		"aud":     "test-client",
		"iss":     "https://accounts.google.com",
		"sub":     "google-sub-123",
		"email":   "vendor@example.com",
		"name":    "Market Vendor",
		"picture": "https://example.com/avatar.png",
		"exp":     now.Add(5 * time.Minute).Unix(),
		"iat":     now.Unix(),
	}
}

func TestGoogleVerifierReturnsProfileClaims(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t)

	verified, err := verifier.Verify(context.Background(), fixture.sign(t, "test-key", validGoogleClaims()))
	if err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
	if verified.Subject != "google-sub-123" {
		t.Fatalf("unexpected subject %s", verified.Subject)
	}
	if verified.Email != "vendor@example.com" || verified.Name != "Market Vendor" || verified.Picture != "https://example.com/avatar.png" {
		t.Fatalf("unexpected profile claims %#v", verified)
	}
	if verified.Audience != "test-client" {
		t.Fatalf("unexpected audience %s", verified.Audience)
	}
}

func TestGoogleVerifierCachesKeys(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t)
	token := fixture.sign(t, "test-key", validGoogleClaims())

	for attempt := 0; attempt < 3; attempt++ {
		if _, err := verifier.Verify(context.Background(), token); err != nil {
			t.Fatalf("unexpected verification error: %v", err)
		}
	}
	if fetches := fixture.fetches.Load(); fetches != 1 {
		t.Fatalf("expected a single jwks fetch, got %d", fetches)
	}
}

func TestGoogleVerifierRejectsInvalidTokens(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t)

	testCases := []struct {
		name   string
		keyID  string
		mutate func(jwt.MapClaims)
	}{
		{name: "foreign audience", keyID: "test-key", mutate: func(claims jwt.MapClaims) { claims["aud"] = "other-client" }},
		{name: "untrusted issuer", keyID: "test-key", mutate: func(claims jwt.MapClaims) { claims["iss"] = "https://evil.example.com" }},
		{name: "expired", keyID: "test-key", mutate: func(claims jwt.MapClaims) { claims["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "missing expiry", keyID: "test-key", mutate: func(claims jwt.MapClaims) { delete(claims, "exp") }},
		{name: "missing subject", keyID: "test-key", mutate: func(claims jwt.MapClaims) { delete(claims, "sub") }},
		{name: "unknown key", keyID: "rotated-key", mutate: func(jwt.MapClaims) {}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			claims := validGoogleClaims()
			testCase.mutate(claims)
			_, err := verifier.Verify(context.Background(), fixture.sign(t, testCase.keyID, claims))
			if !errors.Is(err, ErrInvalidGoogleToken) {
				t.Fatalf("expected invalid token error, got %v", err)
			}
		})
	}

	if _, err := verifier.Verify(context.Background(), "  "); !errors.Is(err, ErrInvalidGoogleToken) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
}

func TestGoogleVerifierAcceptsBareIssuer(t *testing.T) {
	fixture := newJWKSFixture(t)
	claims := validGoogleClaims()
	claims["iss"] = "accounts.google.com"

	if _, err := fixture.verifier(t).Verify(context.Background(), fixture.sign(t, "test-key", claims)); err != nil {
		t.Fatalf("expected bare issuer to be accepted: %v", err)
	}
}

func TestNewGoogleVerifierValidatesConfig(t *testing.T) {
	_, err := NewGoogleVerifier(GoogleVerifierConfig{ClientID: " "})
	if !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected invalid verifier config error, got %v", err)
	}
	if !strings.Contains(err.Error(), errMissingAudienceConfig.Error()) {
		t.Fatalf("expected audience validation error to be reported, got %v", err)
	}

	_, err = NewGoogleVerifier(GoogleVerifierConfig{ClientID: "test-client", JWKSURL: "ftp://example.com/keys"})
	if !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected invalid verifier config error, got %v", err)
	}

	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{ClientID: "test-client"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verifier.jwksURL != DefaultGoogleJWKSURL {
		t.Fatalf("expected default jwks url, got %s", verifier.jwksURL)
	}
}

func TestMaxAge(t *testing.T) {
	testCases := map[string]time.Duration{
		"":                             0,
		"no-cache":                     0,
		"public, max-age=19845":        19845 * time.Second,
		"max-age=abc":                  0,
		"must-revalidate, MAX-AGE=60 ": 60 * time.Second,
	}
	for header, expected := range testCases {
		if actual := maxAge(header); actual != expected {
			t.Fatalf("maxAge(%q) = %s, want %s", header, actual, expected)
		}
	}
}
