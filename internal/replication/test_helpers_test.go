package replication

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/marketvendor/vendor-sync/internal/records"
	"gorm.io/gorm"
)

var fixedReceivedAt = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "replication.db")), &gorm.Config{})
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
	models := append(records.Models(), &Event{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return fixedReceivedAt
		},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func productUpsert(id, updatedAt, payload, eventUUID string) EventInput {
	return EventInput{
		Entity:          string(records.EntityProducts),
		EntityID:        id,
		Op:              string(OperationTypeUpsert),
		Payload:         json.RawMessage(payload),
		ClientUpdatedAt: updatedAt,
		EventUUID:       eventUUID,
	}
}

func mustPush(t *testing.T, service *Service, deviceID string, events ...EventInput) PushResult {
	t.Helper()
	result, err := service.Push(context.Background(), PushRequest{UserID: "user-1", DeviceID: deviceID, Events: events})
	if err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	return result
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func loadProduct(t *testing.T, db *gorm.DB, id string) records.Product {
	t.Helper()
	var product records.Product
	if err := db.Where("user_id = ? AND id = ?", "user-1", id).Take(&product).Error; err != nil {
		t.Fatalf("failed to load product %s: %v", id, err)
	}
	return product
}
