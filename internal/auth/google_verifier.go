package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// DefaultGoogleJWKSURL publishes the keys that sign Google ID tokens.
	DefaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultJWKSCacheTTL = 10 * time.Minute
	issuerGoogleHTTPS   = "https://accounts.google.com"
	issuerGoogleBare    = "accounts.google.com"
	headerKeyID         = "kid"
)

var (
	// ErrInvalidVerifierConfig wraps configuration failures of NewGoogleVerifier.
	ErrInvalidVerifierConfig = errors.New("auth: invalid google verifier config")
	// ErrInvalidGoogleToken wraps every rejection of a presented ID token.
	ErrInvalidGoogleToken = errors.New("auth: invalid google id token")

	errMissingIDToken        = errors.New("id token must not be empty")
	errMissingKeyIdentifier  = errors.New("token missing key identifier")
	errKeyNotFound           = errors.New("signing key not found in JWKS")
	errUntrustedIssuer       = errors.New("token issuer not allowed")
	errMissingSubject        = errors.New("token missing subject claim")
	errMissingAudienceConfig = errors.New("audience configuration required")
	errMissingJWKSURL        = errors.New("jwks url configuration required")
	errNoUsableKeys          = errors.New("jwks document contained no usable keys")
)

// GoogleVerifierConfig bundles configuration required to instantiate a GoogleVerifier.
type GoogleVerifierConfig struct {
	ClientID   string
	JWKSURL    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
}

// GoogleClaims is the verified identity carried by a Google ID token.
type GoogleClaims struct {
	Subject  string
	Email    string
	Name     string
	Picture  string
	Audience string
	Issuer   string
	Expiry   time.Time
}

type googleIDTokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier verifies Google ID tokens offline using cached JWKS.
type GoogleVerifier struct {
	clientID   string
	jwksURL    string
	logger     *zap.Logger
	httpClient *http.Client
	clock      func() time.Time
	keys       *signingKeyCache
}

// NewGoogleVerifier constructs a verifier with validated configuration.
func NewGoogleVerifier(cfg GoogleVerifierConfig) (*GoogleVerifier, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingAudienceConfig)
	}

	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		jwksURL = DefaultGoogleJWKSURL
	}
	if !strings.HasPrefix(jwksURL, "http://") && !strings.HasPrefix(jwksURL, "https://") {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingJWKSURL)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &GoogleVerifier{
		clientID:   clientID,
		jwksURL:    jwksURL,
		logger:     logger,
		httpClient: httpClient,
		clock:      clock,
		keys:       &signingKeyCache{defaultTTL: cacheTTL},
	}, nil
}

// Verify validates the ID token signature, audience, issuer and expiry.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (GoogleClaims, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return GoogleClaims{}, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, errMissingIDToken)
	}

	claims := &googleIDTokenClaims{}
	_, err := jwt.ParseWithClaims(
		idToken,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			keyID, _ := token.Header[headerKeyID].(string)
			if keyID == "" {
				return nil, errMissingKeyIdentifier
			}
			return v.signingKey(ctx, keyID)
		},
		jwt.WithAudience(v.clientID),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
	}

	if claims.Issuer != issuerGoogleHTTPS && claims.Issuer != issuerGoogleBare {
		return GoogleClaims{}, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, errUntrustedIssuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return GoogleClaims{}, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, errMissingSubject)
	}

	return GoogleClaims{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
		Audience: v.clientID,
		Issuer:   claims.Issuer,
		Expiry:   claims.ExpiresAt.Time,
	}, nil
}

func (v *GoogleVerifier) signingKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	now := v.clock()
	if key := v.keys.lookup(keyID, now); key != nil {
		return key, nil
	}

	if err := v.fetchKeys(ctx, now); err != nil {
		v.logger.Warn("jwks refresh failed", zap.String("jwks_url", v.jwksURL), zap.Error(err))
		return nil, err
	}

	if key := v.keys.lookup(keyID, now); key != nil {
		return key, nil
	}
	return nil, errKeyNotFound
}

func (v *GoogleVerifier) fetchKeys(ctx context.Context, fetchedAt time.Time) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	response, err := v.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks request returned status %d", response.StatusCode)
	}

	var document jwksDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, entry := range document.Keys {
		if entry.KeyType != "RSA" || (entry.Use != "" && entry.Use != "sig") {
			continue
		}
		publicKey, err := entry.publicKey()
		if err != nil {
			v.logger.Debug("skipping jwk", zap.String("kid", entry.KeyID), zap.Error(err))
			continue
		}
		keys[entry.KeyID] = publicKey
	}
	if len(keys) == 0 {
		return errNoUsableKeys
	}

	v.keys.replace(keys, fetchedAt, maxAge(response.Header.Get("Cache-Control")))
	return nil
}

// maxAge extracts the max-age directive of a Cache-Control header, or zero.
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

type signingKeyCache struct {
	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	expiresAt  time.Time
	defaultTTL time.Duration
}

// lookup returns nil when the key is unknown or the cache has expired.
func (c *signingKeyCache) lookup(keyID string, now time.Time) *rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || now.After(c.expiresAt) {
		return nil
	}
	return c.keys[keyID]
}

func (c *signingKeyCache) replace(keys map[string]*rsa.PublicKey, now time.Time, ttl time.Duration) {
	if ttl <= 0 || ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.expiresAt = now.Add(ttl)
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	KeyType  string `json:"kty"`
	KeyID    string `json:"kid"`
	Use      string `json:"use"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	modulus, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	exponent, err := base64.RawURLEncoding.DecodeString(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}
	e := new(big.Int).SetBytes(exponent)
	if len(modulus) == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("invalid rsa key parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil
}
