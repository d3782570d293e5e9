package replication

import (
	"fmt"

	"gorm.io/gorm"
)

// isDuplicate reports whether the user's log already holds an event with this client identifier.
// Events without an identifier are never duplicates.
func isDuplicate(tx *gorm.DB, userID string, eventUUID *string) (bool, error) {
	if eventUUID == nil {
		return false, nil
	}

	var existing []int64
	if err := tx.Model(&Event{}).
		Where("user_id = ? AND event_uuid = ?", userID, *eventUUID).
		Limit(1).
		Pluck("event_id", &existing).Error; err != nil {
		return false, fmt.Errorf("lookup event %s: %w", *eventUUID, err)
	}
	return len(existing) > 0, nil
}
