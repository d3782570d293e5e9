package records

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "records.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func mustDescriptor(t *testing.T, entity EntityType) Descriptor {
	t.Helper()
	descriptor, ok := Lookup(string(entity))
	if !ok {
		t.Fatalf("expected descriptor for %s", entity)
	}
	return descriptor
}

func mustMaterialize(t *testing.T, descriptor Descriptor, payload map[string]any, updatedAt time.Time) map[string]any {
	t.Helper()
	columns, err := descriptor.Materialize(payload, updatedAt)
	if err != nil {
		t.Fatalf("unexpected materialize error: %v", err)
	}
	return columns
}

func instant(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("invalid test timestamp %q: %v", value, err)
	}
	return parsed.UTC()
}
