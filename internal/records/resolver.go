package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	columnUserID    = "user_id"
	columnUpdatedAt = "updated_at"
	columnDeletedAt = "deleted_at"
	excludedTable   = "excluded"
)

var (
	errMissingTransaction = errors.New("records: transaction handle is required")
	errMissingKey         = errors.New("records: record key is required")
)

// ApplyUpsert inserts the record or overwrites it when the stored updated_at is unset or strictly older.
// It reports whether a row was written; a rejected write is not an error.
func ApplyUpsert(tx *gorm.DB, descriptor Descriptor, userID, key string, columns map[string]any, updatedAt time.Time) (bool, error) {
	if tx == nil {
		return false, errMissingTransaction
	}
	if key == "" {
		return false, errMissingKey
	}

	row := make(map[string]any, len(columns)+3)
	for name, value := range columns {
		row[name] = value
	}
	row[columnUserID] = userID
	row[descriptor.KeyColumn] = key
	row[columnUpdatedAt] = updatedAt
	row[columnDeletedAt] = nil

	result := tx.Table(descriptor.Table).Clauses(lwwUpsertClause(descriptor)).Create(row)
	if result.Error != nil {
		return false, fmt.Errorf("upsert %s: %w", descriptor.Table, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ApplyDelete tombstones the record under the same guard as ApplyUpsert. The tombstone time also
// becomes the record's updated_at so that older upserts cannot resurrect it.
func ApplyDelete(tx *gorm.DB, descriptor Descriptor, userID, key string, deletedAt time.Time) (bool, error) {
	if tx == nil {
		return false, errMissingTransaction
	}
	if key == "" {
		return false, errMissingKey
	}

	stored := clause.Column{Table: descriptor.Table, Name: columnUpdatedAt}
	result := tx.Table(descriptor.Table).
		Where(clause.Eq{Column: clause.Column{Name: columnUserID}, Value: userID}).
		Where(clause.Eq{Column: clause.Column{Name: descriptor.KeyColumn}, Value: key}).
		Where(clause.Expr{SQL: "(? IS NULL OR ? > ?)", Vars: []any{stored, deletedAt, stored}}).
		Updates(map[string]any{
			columnDeletedAt: deletedAt,
			columnUpdatedAt: deletedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("delete %s: %w", descriptor.Table, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// lwwUpsertClause renders:
//
//	ON CONFLICT (user_id, <key>) DO UPDATE SET <columns> = excluded.<columns>, updated_at = excluded.updated_at, deleted_at = NULL
//	WHERE <table>.updated_at IS NULL OR excluded.updated_at > <table>.updated_at
func lwwUpsertClause(descriptor Descriptor) clause.OnConflict {
	assignments := clause.AssignmentColumns(append(descriptor.columnNames(), columnUpdatedAt))
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: columnDeletedAt},
		Value:  clause.Expr{SQL: "NULL"},
	})

	return clause.OnConflict{
		Columns:   []clause.Column{{Name: columnUserID}, {Name: descriptor.KeyColumn}},
		DoUpdates: assignments,
		Where:     clause.Where{Exprs: []clause.Expression{newerOrUnsetPredicate(descriptor.Table)}},
	}
}

func newerOrUnsetPredicate(table string) clause.Expression {
	stored := clause.Column{Table: table, Name: columnUpdatedAt}
	incoming := clause.Column{Table: excludedTable, Name: columnUpdatedAt}
	return clause.Expr{SQL: "? IS NULL OR ? > ?", Vars: []any{stored, incoming, stored}}
}

// DecodePayload reads a client payload object. Absent, null or non-object payloads yield an empty
// map so that every column falls back to its default.
func DecodePayload(raw json.RawMessage) (map[string]any, error) {
	payload := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return payload, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidColumnValue, err)
	}
	return payload, nil
}
