package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketvendor/vendor-sync/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable subject.
	ErrInvalidIdentity = errors.New("users: invalid identity")

	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	NewID    func() (string, error)
}

// Service resolves Google logins to internal user ids.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	newID  func() (string, error)
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newUserID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		newID:  newID,
		logger: logger,
	}, nil
}

// ResolveUserID returns the user id for the Google subject, creating it on first login.
// The stored profile follows the latest token.
func (s *Service) ResolveUserID(ctx context.Context, claims auth.GoogleClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}
	incoming := profile{
		email:       normalize(claims.Email),
		displayName: normalize(claims.Name),
		avatarURL:   normalize(claims.Picture),
	}

	cacheKey := ProviderGoogle + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if identity, ok := cached.(Identity); ok && incoming.matches(identity) {
			return identity.UserID, nil
		}
	}

	now := s.now().UTC()
	var identity Identity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookupErr := tx.
			Where("provider = ? AND subject = ?", ProviderGoogle, subject).
			Take(&identity).
			Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			userID, idErr := s.newID()
			if idErr != nil {
				return fmt.Errorf("generate user id: %w", idErr)
			}
			identity = Identity{
				Provider:    ProviderGoogle,
				Subject:     subject,
				UserID:      userID,
				Email:       incoming.email,
				DisplayName: incoming.displayName,
				AvatarURL:   incoming.avatarURL,
				LastSeenAt:  now,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			// A concurrent first login for the same subject keeps the row that won.
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&identity)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return tx.Where("provider = ? AND subject = ?", ProviderGoogle, subject).Take(&identity).Error
			}
			s.logger.Info("user identity created", zap.String("user_id", identity.UserID))
			return nil
		}
		if lookupErr != nil {
			return lookupErr
		}

		identity.Email = incoming.email
		identity.DisplayName = incoming.displayName
		identity.AvatarURL = incoming.avatarURL
		identity.LastSeenAt = now
		identity.UpdatedAt = now
		return tx.Model(&Identity{}).
			Where("provider = ? AND subject = ?", ProviderGoogle, subject).
			Updates(map[string]any{
				"email":        identity.Email,
				"display_name": identity.DisplayName,
				"avatar_url":   identity.AvatarURL,
				"last_seen_at": now,
				"updated_at":   now,
			}).
			Error
	})
	if err != nil {
		s.logger.Error("user identity resolution failed", zap.Error(err))
		return "", fmt.Errorf("resolve user identity: %w", err)
	}

	s.cache.Store(cacheKey, identity)
	return identity.UserID, nil
}

func newUserID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
