package replication

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// OperationType enumerates supported client operations.
type OperationType string

const (
	// OperationTypeUpsert represents an insert or update payload.
	OperationTypeUpsert OperationType = "upsert"
	// OperationTypeDelete tombstones a record.
	OperationTypeDelete OperationType = "delete"
)

const jsonNull = "null"

const (
	// DefaultPullLimit is used when a client does not request a page size.
	DefaultPullLimit = 500
	// MaxPullLimit caps a single pull page.
	MaxPullLimit = 2000
)

// Event is an immutable replication log entry. EventID is the pull cursor.
type Event struct {
	EventID          int64          `gorm:"column:event_id;primaryKey;autoIncrement"`
	UserID           string         `gorm:"column:user_id;size:190;not null;index:idx_sync_events_user_cursor,priority:1"`
	DeviceID         string         `gorm:"column:device_id;size:190;not null"`
	Entity           string         `gorm:"column:entity;size:64;not null"`
	EntityID         string         `gorm:"column:entity_id;size:190;not null"`
	Op               string         `gorm:"column:op;size:32;not null"`
	Payload          datatypes.JSON `gorm:"column:payload;not null"`
	ClientUpdatedAt  time.Time      `gorm:"column:client_updated_at;not null"`
	ServerReceivedAt time.Time      `gorm:"column:server_received_at;not null"`
	EventUUID        *string        `gorm:"column:event_uuid;size:190"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "sync_events"
}

// EventInput is one client event as received in a push batch.
type EventInput struct {
	Entity          string
	EntityID        string
	Op              string
	Payload         json.RawMessage
	ClientUpdatedAt string
	EventUUID       string
}

func (input EventInput) complete() bool {
	return strings.TrimSpace(input.Entity) != "" &&
		strings.TrimSpace(input.EntityID) != "" &&
		strings.TrimSpace(input.Op) != "" &&
		strings.TrimSpace(input.ClientUpdatedAt) != ""
}

// payloadSnapshot stores absent payloads as a JSON null literal so the column never holds SQL NULL.
func (input EventInput) payloadSnapshot() datatypes.JSON {
	trimmed := strings.TrimSpace(string(input.Payload))
	if trimmed == "" {
		return datatypes.JSON(jsonNull)
	}
	return datatypes.JSON(trimmed)
}

func (input EventInput) eventUUID() *string {
	trimmed := strings.TrimSpace(input.EventUUID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// PushRequest is a device batch scoped to one user.
type PushRequest struct {
	UserID   string
	DeviceID string
	Events   []EventInput
}

// AcceptedEvent identifies an event appended to the log during a push.
type AcceptedEvent struct {
	EventID  int64
	Entity   string
	EntityID string
}

// PushResult lists accepted events in input order.
type PushResult struct {
	Accepted []AcceptedEvent
}

// AcceptedEventIDs returns the sequence numbers of accepted events.
func (result PushResult) AcceptedEventIDs() []int64 {
	ids := make([]int64, 0, len(result.Accepted))
	for _, accepted := range result.Accepted {
		ids = append(ids, accepted.EventID)
	}
	return ids
}

// LastEventID returns the greatest accepted sequence number, or zero.
func (result PushResult) LastEventID() int64 {
	if len(result.Accepted) == 0 {
		return 0
	}
	return result.Accepted[len(result.Accepted)-1].EventID
}

// PullResult is one page of the replication feed.
type PullResult struct {
	Cursor int64
	Events []Event
}

// NormalizeLimit applies the default page size to unset values and clamps to [1, MaxPullLimit].
func NormalizeLimit(requested int) int {
	switch {
	case requested == 0:
		return DefaultPullLimit
	case requested < 1:
		return 1
	case requested > MaxPullLimit:
		return MaxPullLimit
	default:
		return requested
	}
}
