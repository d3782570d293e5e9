package database

import (
	"errors"
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DriverSQLite selects the embedded pure Go SQLite engine.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL through pgx.
	DriverPostgres = "postgres"

	defaultMaxOpenConns = 10
)

var (
	// ErrUnsupportedDriver indicates an unknown database.driver value.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	errMissingPath = errors.New("database: sqlite path is required")
	errMissingDSN  = errors.New("database: postgres dsn is required")
)

// Config selects and sizes the storage backend.
type Config struct {
	Driver       string
	Path         string
	DSN          string
	MaxOpenConns int
}

// Open connects to the configured backend and sizes its pool. It does not migrate.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var (
		db           *gorm.DB
		err          error
		maxOpenConns = cfg.MaxOpenConns
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "":
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, errMissingPath
		}
		db, err = gorm.Open(sqlite.Open(path), gormConfig)
		// SQLite serializes writers; a single connection keeps transactions from contending.
		maxOpenConns = 1
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, errMissingDSN
		}
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if maxOpenConns <= 0 {
			maxOpenConns = defaultMaxOpenConns
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	logger.Info("database opened",
		zap.String("driver", db.Dialector.Name()),
		zap.Int("max_open_conns", maxOpenConns))
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
