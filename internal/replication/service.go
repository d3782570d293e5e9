package replication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marketvendor/vendor-sync/internal/records"
	"github.com/marketvendor/vendor-sync/internal/timestamps"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrMissingUserID indicates the request was not scoped to a user.
	ErrMissingUserID = errors.New("replication: user identifier is required")
	// ErrMissingDeviceID indicates a push batch without a device identifier.
	ErrMissingDeviceID = errors.New("replication: device identifier is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable code of the form <operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "replication.service.new"
	opPush       = "replication.push"
	opPull       = "replication.pull"

	reasonMissingDatabase   = "missing_database"
	reasonMissingUserID     = "missing_user_id"
	reasonMissingDeviceID   = "missing_device_id"
	reasonDuplicateLookup   = "duplicate_lookup_failed"
	reasonPayloadInvalid    = "payload_invalid"
	reasonApplyFailed       = "apply_failed"
	reasonEventAppendFailed = "event_append_failed"
	reasonQueryFailed       = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the sync engine.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service applies push batches and serves the pull feed.
type Service struct {
	db         *gorm.DB
	timestamps timestamps.Authority
	logger     *zap.Logger
}

// NewService constructs the sync engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		timestamps: timestamps.NewAuthority(cfg.Clock),
		logger:     logger,
	}, nil
}

// Push applies a batch as a single transaction. Incomplete and duplicate events are skipped;
// any apply or storage failure rolls back the whole batch.
func (s *Service) Push(ctx context.Context, request PushRequest) (PushResult, error) {
	if s.db == nil {
		s.logError(opPush, reasonMissingDatabase, errMissingDatabase)
		return PushResult{}, newServiceError(opPush, reasonMissingDatabase, errMissingDatabase)
	}
	userID := strings.TrimSpace(request.UserID)
	if userID == "" {
		return PushResult{}, newServiceError(opPush, reasonMissingUserID, ErrMissingUserID)
	}
	deviceID := strings.TrimSpace(request.DeviceID)
	if deviceID == "" {
		return PushResult{}, newServiceError(opPush, reasonMissingDeviceID, ErrMissingDeviceID)
	}

	s.loggerOrDefault().Debug("push received",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Int("event_count", len(request.Events)))

	receivedAt := s.timestamps.Now()
	result := PushResult{Accepted: make([]AcceptedEvent, 0, len(request.Events))}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range request.Events {
			if !input.complete() {
				s.loggerOrDefault().Debug("skipping incomplete event",
					zap.String("entity", input.Entity),
					zap.String("entity_id", input.EntityID),
					zap.String("op", input.Op))
				continue
			}

			eventUUID := input.eventUUID()
			duplicate, err := isDuplicate(tx, userID, eventUUID)
			if err != nil {
				s.logError(opPush, reasonDuplicateLookup, err, zap.String("user_id", userID))
				return newServiceError(opPush, reasonDuplicateLookup, err)
			}
			if duplicate {
				s.loggerOrDefault().Debug("skipping duplicate event", zap.String("event_uuid", *eventUUID))
				continue
			}

			updatedAt := s.timestamps.Resolve(input.ClientUpdatedAt)
			if err := applyEvent(tx, userID, input, updatedAt); err != nil {
				reason := reasonApplyFailed
				if errors.Is(err, records.ErrInvalidColumnValue) {
					reason = reasonPayloadInvalid
				}
				s.logError(opPush, reason, err,
					zap.String("user_id", userID),
					zap.String("entity", input.Entity),
					zap.String("entity_id", input.EntityID))
				return newServiceError(opPush, reason, err)
			}

			event := Event{
				UserID:           userID,
				DeviceID:         deviceID,
				Entity:           input.Entity,
				EntityID:         input.EntityID,
				Op:               input.Op,
				Payload:          input.payloadSnapshot(),
				ClientUpdatedAt:  updatedAt,
				ServerReceivedAt: receivedAt,
				EventUUID:        eventUUID,
			}
			if err := tx.Create(&event).Error; err != nil {
				s.logError(opPush, reasonEventAppendFailed, err,
					zap.String("user_id", userID),
					zap.String("entity", input.Entity),
					zap.String("entity_id", input.EntityID))
				return newServiceError(opPush, reasonEventAppendFailed, err)
			}
			result.Accepted = append(result.Accepted, AcceptedEvent{
				EventID:  event.EventID,
				Entity:   event.Entity,
				EntityID: event.EntityID,
			})
		}
		return nil
	})
	if txErr != nil {
		return PushResult{}, txErr
	}

	s.loggerOrDefault().Debug("push committed",
		zap.String("user_id", userID),
		zap.Int("accepted_count", len(result.Accepted)))
	return result, nil
}

// applyEvent dispatches on (entity, op). Unknown entities and operations change nothing.
func applyEvent(tx *gorm.DB, userID string, input EventInput, updatedAt time.Time) error {
	descriptor, ok := records.Lookup(input.Entity)
	if !ok {
		return nil
	}

	switch OperationType(input.Op) {
	case OperationTypeDelete:
		_, err := records.ApplyDelete(tx, descriptor, userID, input.EntityID, updatedAt)
		return err
	case OperationTypeUpsert:
		payload, err := records.DecodePayload(input.Payload)
		if err != nil {
			return err
		}
		columns, err := descriptor.Materialize(payload, updatedAt)
		if err != nil {
			return err
		}
		_, err = records.ApplyUpsert(tx, descriptor, userID, input.EntityID, columns, updatedAt)
		return err
	default:
		return nil
	}
}

// Pull returns events after cursor in ascending order. The returned cursor is the last event id,
// or the input cursor when nothing new exists.
func (s *Service) Pull(ctx context.Context, userID string, cursor int64, limit int) (PullResult, error) {
	if s.db == nil {
		s.logError(opPull, reasonMissingDatabase, errMissingDatabase)
		return PullResult{}, newServiceError(opPull, reasonMissingDatabase, errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" {
		return PullResult{}, newServiceError(opPull, reasonMissingUserID, ErrMissingUserID)
	}

	var events []Event
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND event_id > ?", userID, cursor).
		Order("event_id ASC").
		Limit(NormalizeLimit(limit)).
		Find(&events).Error; err != nil {
		s.logError(opPull, reasonQueryFailed, err, zap.String("user_id", userID))
		return PullResult{}, newServiceError(opPull, reasonQueryFailed, err)
	}

	nextCursor := cursor
	if len(events) > 0 {
		nextCursor = events[len(events)-1].EventID
	}
	return PullResult{Cursor: nextCursor, Events: events}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("replication service error", attrs...)
}
