package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTTL matches the lifetime of a device login.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// DefaultTokenIssuer is the iss claim of session tokens.
	DefaultTokenIssuer = "vendor-sync"
	// DefaultTokenAudience is the aud claim of session tokens.
	DefaultTokenAudience = "vendor-sync-api"

	minSigningSecretLength = 16
)

var (
	// ErrInvalidIssuerConfig wraps configuration failures of NewTokenIssuer.
	ErrInvalidIssuerConfig = errors.New("auth: invalid token issuer config")
	// ErrInvalidSessionToken wraps every rejection of a presented session token.
	ErrInvalidSessionToken = errors.New("auth: invalid session token")

	errMissingSigningSecret = errors.New("signing secret must be provided")
	errWeakSigningSecret    = fmt.Errorf("signing secret must be at least %d bytes", minSigningSecretLength)
	errMissingUserID        = errors.New("user identifier must be provided")
)

// TokenIssuerConfig configures the session token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs and validates HS256 session tokens whose subject is the internal user id.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

// NewTokenIssuer validates configuration and applies defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errMissingSigningSecret)
	}
	if len(cfg.SigningSecret) < minSigningSecretLength {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errWeakSigningSecret)
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = DefaultTokenAudience
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	secret := make([]byte, len(cfg.SigningSecret))
	copy(secret, cfg.SigningSecret)

	return &TokenIssuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		clock:    clock,
	}, nil
}

// IssueSessionToken produces a signed token and its lifetime in seconds.
func (i *TokenIssuer) IssueSessionToken(_ context.Context, userID string) (string, int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", 0, errMissingUserID
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign session token: %w", err)
	}
	return signed, int64(i.ttl / time.Second), nil
}

// ValidateToken checks signature, issuer, audience and expiry and returns the user id.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidSessionToken)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionToken, errMissingUserID)
	}
	return claims.Subject, nil
}
