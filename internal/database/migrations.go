package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/marketvendor/vendor-sync/internal/records"
	"github.com/marketvendor/vendor-sync/internal/replication"
	"github.com/marketvendor/vendor-sync/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSyncEventsUserUUIDUnique = "2024-06-01_sync_events_user_uuid_unique"
	migrationBackfillTombstoneClock   = "2024-06-02_backfill_tombstone_updated_at"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationSyncEventsUserUUIDUnique, apply: createSyncEventsUserUUIDIndex},
	{name: migrationBackfillTombstoneClock, apply: backfillTombstoneClock},
}

// Models lists every table owned by the service.
func Models() []any {
	models := records.Models()
	return append(models, &replication.Event{}, &users.Identity{}, &migrationRecord{})
}

// Migrate creates or extends the schema and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if db == nil {
		return errors.New("database: connection required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	logger.Info("database schema ready", zap.String("driver", db.Dialector.Name()))
	return nil
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// createSyncEventsUserUUIDIndex backs the idempotency check with a constraint; events without a
// client identifier stay unconstrained.
func createSyncEventsUserUUIDIndex(db *gorm.DB) error {
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_events_user_uuid ON sync_events (user_id, event_uuid) WHERE event_uuid IS NOT NULL",
	).Error
}

// backfillTombstoneClock raises updated_at to deleted_at on tombstones written before deletes advanced
// the record clock, so older upserts can no longer resurrect them.
func backfillTombstoneClock(db *gorm.DB) error {
	for _, descriptor := range records.Descriptors() {
		err := db.Table(descriptor.Table).
			Where("deleted_at IS NOT NULL AND (updated_at IS NULL OR updated_at < deleted_at)").
			Update("updated_at", gorm.Expr("deleted_at")).
			Error
		if err != nil {
			return fmt.Errorf("backfill %s: %w", descriptor.Table, err)
		}
	}
	return nil
}
