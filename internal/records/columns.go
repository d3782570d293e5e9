package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/marketvendor/vendor-sync/internal/timestamps"
	"github.com/shopspring/decimal"
)

// ErrInvalidColumnValue indicates a payload value could not be cast to its column kind.
var ErrInvalidColumnValue = errors.New("records: invalid column value")

// ColumnKind is the cast annotation applied to a payload value before it is written.
type ColumnKind int

const (
	// KindText is a non-null text column.
	KindText ColumnKind = iota
	// KindOptionalText is a nullable text column.
	KindOptionalText
	// KindMoney is an exact decimal amount.
	KindMoney
	// KindNumber is a floating point quantity.
	KindNumber
	// KindInteger is a non-null integer.
	KindInteger
	// KindOptionalInteger is a nullable integer.
	KindOptionalInteger
	// KindFlag is a boolean-like integer stored as 0 or 1.
	KindFlag
	// KindOptionalFlag is a nullable boolean-like integer.
	KindOptionalFlag
	// KindTimestamp is a nullable instant; unparseable input becomes NULL.
	KindTimestamp
	// KindTimestampOrUpdated is an instant that falls back to the mutation time.
	KindTimestampOrUpdated
)

// Column declares how one business column is read from a client payload.
type Column struct {
	Name    string
	Fields  []string
	Kind    ColumnKind
	Default any
}

func text(name, field string, fallback string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindText, Default: fallback}
}

func optionalText(name string, fields ...string) Column {
	return Column{Name: name, Fields: fields, Kind: KindOptionalText}
}

func money(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindMoney, Default: decimal.Zero}
}

func number(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindNumber, Default: float64(0)}
}

func integer(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindInteger, Default: int64(0)}
}

func optionalInteger(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindOptionalInteger}
}

func flag(name, field string, fallback int) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindFlag, Default: fallback}
}

func optionalFlag(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindOptionalFlag}
}

func timestamp(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindTimestamp}
}

func timestampOrUpdated(name, field string) Column {
	return Column{Name: name, Fields: []string{field}, Kind: KindTimestampOrUpdated}
}

// lookup returns the first non-null payload value among the column's field names.
func (c Column) lookup(payload map[string]any) (any, bool) {
	for _, field := range c.Fields {
		value, ok := payload[field]
		if ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func (c Column) cast(payload map[string]any, updatedAt time.Time) (any, error) {
	value, present := c.lookup(payload)

	switch c.Kind {
	case KindText:
		if !present {
			return c.Default, nil
		}
		return castText(value)
	case KindOptionalText:
		if !present {
			return nil, nil
		}
		return castText(value)
	case KindMoney:
		if !present {
			return c.Default, nil
		}
		return castMoney(value)
	case KindNumber:
		if !present {
			return c.Default, nil
		}
		return castNumber(value)
	case KindInteger:
		if !present {
			return c.Default, nil
		}
		return castInteger(value)
	case KindOptionalInteger:
		if !present {
			return nil, nil
		}
		return castInteger(value)
	case KindFlag:
		if !present {
			return c.Default, nil
		}
		return castFlag(value), nil
	case KindOptionalFlag:
		if !present {
			return nil, nil
		}
		return castFlag(value), nil
	case KindTimestamp:
		if instant, ok := castTimestamp(value); ok {
			return instant, nil
		}
		return nil, nil
	case KindTimestampOrUpdated:
		if instant, ok := castTimestamp(value); ok {
			return instant, nil
		}
		return updatedAt, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidColumnValue, c.Kind)
	}
}

func castText(value any) (any, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return nil, fmt.Errorf("%w: expected text, got %T", ErrInvalidColumnValue, value)
	}
}

func castMoney(value any) (any, error) {
	switch typed := value.(type) {
	case json.Number:
		amount, err := decimal.NewFromString(typed.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidColumnValue, err)
		}
		return amount, nil
	case float64:
		return decimal.NewFromFloat(typed), nil
	case string:
		amount, err := decimal.NewFromString(strings.TrimSpace(typed))
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrInvalidColumnValue, typed)
		}
		return amount, nil
	default:
		return nil, fmt.Errorf("%w: expected amount, got %T", ErrInvalidColumnValue, value)
	}
}

func castNumber(value any) (any, error) {
	var raw string
	switch typed := value.(type) {
	case json.Number:
		raw = typed.String()
	case float64:
		return typed, nil
	case string:
		raw = strings.TrimSpace(typed)
	default:
		return nil, fmt.Errorf("%w: expected number, got %T", ErrInvalidColumnValue, value)
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil, fmt.Errorf("%w: number %q", ErrInvalidColumnValue, raw)
	}
	return parsed, nil
}

func castInteger(value any) (any, error) {
	var raw string
	switch typed := value.(type) {
	case json.Number:
		raw = typed.String()
	case float64:
		raw = strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		raw = strings.TrimSpace(typed)
	default:
		return nil, fmt.Errorf("%w: expected integer, got %T", ErrInvalidColumnValue, value)
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: integer %q", ErrInvalidColumnValue, raw)
	}
	return parsed, nil
}

// castFlag mirrors loose equality with 1: numeric one, the string "1" and true map to 1.
func castFlag(value any) int {
	switch typed := value.(type) {
	case bool:
		if typed {
			return 1
		}
	case json.Number:
		if parsed, err := typed.Float64(); err == nil && parsed == 1 {
			return 1
		}
	case float64:
		if typed == 1 {
			return 1
		}
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil && parsed == 1 {
			return 1
		}
	}
	return 0
}

func castTimestamp(value any) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	return timestamps.Parse(raw)
}
