package event

import (
	"encoding/json"
	"math"
	"time"
)

// Type is the lifecycle action an event records.
type Type string

const (
	TypeBooked    Type = "BOOKED"
	TypeAmended   Type = "AMENDED"
	TypeCancelled Type = "CANCELLED"
	TypeVerified  Type = "VERIFIED"
)

// Valid reports whether t is one of the known lifecycle types.
func (t Type) Valid() bool {
	switch t {
	case TypeBooked, TypeAmended, TypeCancelled, TypeVerified:
		return true
	}
	return false
}

// Event is one immutable entry in the trade ledger.
// Events are appended once and never updated or deleted.
type Event struct {
	ID          string          `json:"event_id"`
	Type        Type            `json:"event_type"`
	Subject     string          `json:"subject"`
	Source      string          `json:"source_system"`
	TradingDate time.Time       `json:"trading_date"`
	EventTime   time.Time       `json:"event_time"` // sole ordering key
	Payload     json.RawMessage `json:"payload"`
}

var (
	minEventTime = time.Unix(0, math.MinInt64).UTC()
	maxEventTime = time.Unix(0, math.MaxInt64).UTC()
)

// TimeInRange reports whether t fits in int64 unix nanoseconds, the widest
// range every store can persist.
func TimeInRange(t time.Time) bool {
	return !t.Before(minEventTime) && !t.After(maxEventTime)
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
