package users

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/marketvendor/vendor-sync/internal/auth"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, newID func() (string, error)) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
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
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
		NewID: newID,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func loadIdentity(t *testing.T, db *gorm.DB, subject string) Identity {
	t.Helper()
	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", ProviderGoogle, subject).Take(&identity).Error; err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	return identity
}

func TestResolveUserIDCreatesStableUUIDv7(t *testing.T) {
	service, db := newTestService(t, nil)
	claims := auth.GoogleClaims{
		Subject: "google-sub-1",
		Email:   "vendor@example.com",
		Name:    "Market Vendor",
		Picture: "https://example.com/avatar.png",
	}

	userID, err := service.ResolveUserID(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		t.Fatalf("expected uuid user id, got %q: %v", userID, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected uuid v7, got version %d", parsed.Version())
	}

	again, err := service.ResolveUserID(context.Background(), claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again != userID {
		t.Fatalf("expected user id to remain stable, got %q then %q", userID, again)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single identity, got %d", count)
	}
	stored := loadIdentity(t, db, "google-sub-1")
	if stored.Email != "vendor@example.com" || stored.DisplayName != "Market Vendor" {
		t.Fatalf("unexpected stored profile %#v", stored)
	}
}

func TestResolveUserIDRefreshesProfile(t *testing.T) {
	service, db := newTestService(t, nil)
	first, err := service.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "sub", Email: "old@example.com", Name: "Old"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	second, err := service.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "sub", Email: "new@example.com", Name: "New", Picture: "https://example.com/new.png"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected profile refresh to keep user id")
	}

	stored := loadIdentity(t, db, "sub")
	if stored.Email != "new@example.com" || stored.DisplayName != "New" || stored.AvatarURL != "https://example.com/new.png" {
		t.Fatalf("expected refreshed profile, got %#v", stored)
	}
}

func TestResolveUserIDSurvivesFreshService(t *testing.T) {
	service, db := newTestService(t, nil)
	userID, err := service.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "persisted"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	restarted, err := NewService(ServiceConfig{
		Database: db,
		NewID: func() (string, error) {
			return "", fmt.Errorf("existing identities must not allocate ids")
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	again, err := restarted.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "persisted"})
	if err != nil {
		t.Fatalf("resolve after restart failed: %v", err)
	}
	if again != userID {
		t.Fatalf("expected %q after restart, got %q", userID, again)
	}
}

func TestResolveUserIDRejectsEmptySubject(t *testing.T) {
	service, _ := newTestService(t, nil)
	if _, err := service.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "  ", Email: "x@example.com"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestResolveUserIDPropagatesIDFailure(t *testing.T) {
	service, _ := newTestService(t, func() (string, error) {
		return "", errors.New("entropy exhausted")
	})
	if _, err := service.ResolveUserID(context.Background(), auth.GoogleClaims{Subject: "sub"}); err == nil {
		t.Fatalf("expected id generation failure to surface")
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); !errors.Is(err, errMissingDatabase) {
		t.Fatalf("expected missing database error, got %v", err)
	}
}
