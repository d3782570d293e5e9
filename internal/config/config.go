package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "VENDOR_SYNC"

	defaultHTTPAddress      = "0.0.0.0:3006"
	defaultBodyLimitBytes   = 12 << 20
	defaultDatabaseDriver   = "sqlite"
	defaultDatabasePath     = "vendor-sync.db"
	defaultMaxOpenConns     = 10
	defaultGoogleJWKSURL    = "https://www.googleapis.com/oauth2/v3/certs"
	defaultTokenIssuer      = "vendor-sync"
	defaultTokenAudience    = "vendor-sync-api"
	defaultTokenTTLMinutes  = 43200
	defaultHeartbeatSeconds = 25
	defaultLogLevel         = "info"
	defaultPostgresPort     = "5432"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	keyDatabaseDSN       = "database.dsn"
	keyGoogleClientID    = "google.client_id"
	keyAuthSigningSecret = "auth.signing_secret"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	BodyLimitBytes    int64
	DatabaseDriver    string
	DatabasePath      string
	DatabaseDSN       string
	MaxOpenConns      int
	GoogleClientID    string
	GoogleJWKSURL     string
	SigningSecret     string
	TokenIssuer       string
	TokenAudience     string
	TokenTTL          time.Duration
	HeartbeatInterval time.Duration
	LogLevel          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
// Besides VENDOR_SYNC_* variables, the deployment names DATABASE_URL, GOOGLE_CLIENT_ID and
// JWT_SECRET are honored.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	_ = configViper.BindEnv(keyDatabaseDSN, envPrefix+"_DATABASE_DSN", "DATABASE_URL")
	_ = configViper.BindEnv(keyGoogleClientID, envPrefix+"_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	_ = configViper.BindEnv(keyAuthSigningSecret, envPrefix+"_AUTH_SIGNING_SECRET", "JWT_SECRET")
	for _, name := range []string{"host", "port", "user", "password", "database"} {
		_ = configViper.BindEnv("postgres."+name, envPrefix+"_POSTGRES_"+strings.ToUpper(name), "PG"+strings.ToUpper(name))
	}

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.body_limit_bytes", defaultBodyLimitBytes)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatSeconds)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		BodyLimitBytes:    configViper.GetInt64("http.body_limit_bytes"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:      strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:       strings.TrimSpace(configViper.GetString(keyDatabaseDSN)),
		MaxOpenConns:      configViper.GetInt("database.max_open_conns"),
		GoogleClientID:    strings.TrimSpace(configViper.GetString(keyGoogleClientID)),
		GoogleJWKSURL:     strings.TrimSpace(configViper.GetString("google.jwks_url")),
		SigningSecret:     configViper.GetString(keyAuthSigningSecret),
		TokenIssuer:       strings.TrimSpace(configViper.GetString("token.issuer")),
		TokenAudience:     strings.TrimSpace(configViper.GetString("token.audience")),
		TokenTTL:          time.Duration(configViper.GetInt64("token.ttl_minutes")) * time.Minute,
		HeartbeatInterval: time.Duration(configViper.GetInt64("realtime.heartbeat_seconds")) * time.Second,
		LogLevel:          configViper.GetString("log.level"),
	}

	if cfg.DatabaseDriver == driverPostgres && cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = postgresDSNFromParts(configViper)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses configuration for commands that only touch the database, such as migrate.
// Auth settings are read but not required.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString(keyDatabaseDSN)),
		MaxOpenConns:   configViper.GetInt("database.max_open_conns"),
		LogLevel:       configViper.GetString("log.level"),
	}
	if cfg.DatabaseDriver == driverPostgres && cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = postgresDSNFromParts(configViper)
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// postgresDSNFromParts assembles a connection URL from discrete PG* settings, or returns "".
func postgresDSNFromParts(configViper *viper.Viper) string {
	host := strings.TrimSpace(configViper.GetString("postgres.host"))
	if host == "" {
		return ""
	}
	port := strings.TrimSpace(configViper.GetString("postgres.port"))
	if port == "" {
		port = defaultPostgresPort
	}
	dsn := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + strings.TrimSpace(configViper.GetString("postgres.database")),
		RawQuery: "sslmode=disable",
	}
	if user := strings.TrimSpace(configViper.GetString("postgres.user")); user != "" {
		dsn.User = url.UserPassword(user, configViper.GetString("postgres.password"))
	}
	return dsn.String()
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.BodyLimitBytes <= 0 {
		return fmt.Errorf("http.body_limit_bytes must be positive")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case driverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required")
		}
	case driverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn (or DATABASE_URL / PGHOST) is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", driverSQLite, driverPostgres, c.DatabaseDriver)
	}
	return nil
}
