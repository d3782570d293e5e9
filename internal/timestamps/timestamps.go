package timestamps

import (
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse interprets a client supplied timestamp. Values without a zone are read as UTC.
func Parse(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return Canonical(parsed), true
		}
	}
	return time.Time{}, false
}

// Canonical normalizes an instant to UTC with millisecond precision.
func Canonical(value time.Time) time.Time {
	return value.UTC().Truncate(time.Millisecond)
}

// Authority resolves client timestamps, falling back to the server clock.
type Authority struct {
	clock func() time.Time
}

// NewAuthority constructs an Authority; a nil clock defaults to time.Now.
func NewAuthority(clock func() time.Time) Authority {
	if clock == nil {
		clock = time.Now
	}
	return Authority{clock: clock}
}

// Now returns the canonical server time.
func (a Authority) Now() time.Time {
	clock := a.clock
	if clock == nil {
		clock = time.Now
	}
	return Canonical(clock())
}

// Resolve returns the parsed client instant or the current server time when raw is absent or unparseable.
func (a Authority) Resolve(raw string) time.Time {
	if parsed, ok := Parse(raw); ok {
		return parsed
	}
	return a.Now()
}

const wireLayout = "2006-01-02T15:04:05.000Z07:00"

// Format renders an instant as UTC ISO-8601 with millisecond precision, e.g. 2024-01-02T03:04:05.000Z.
func Format(value time.Time) string {
	return Canonical(value).Format(wireLayout)
}
