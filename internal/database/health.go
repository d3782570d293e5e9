package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// HealthChecker probes the storage backend with a trivial query.
type HealthChecker struct {
	db *gorm.DB
}

// NewHealthChecker binds a checker to the connection pool.
func NewHealthChecker(db *gorm.DB) *HealthChecker {
	return &HealthChecker{db: db}
}

// Check runs SELECT 1 under the caller's context.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h == nil || h.db == nil {
		return errors.New("database: connection required")
	}
	var one int
	return h.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}
