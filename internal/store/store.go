// Package store defines the append-only event store the ledger is built on,
// with in-memory, SQLite, PostgreSQL and Redis implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

var (
	// ErrNotFound indicates no event exists under the requested identifier.
	ErrNotFound = errors.New("event not found")
	// ErrAlreadyExists indicates an event identifier is already taken.
	ErrAlreadyExists = errors.New("event already exists")
)

// EventStore is a durable append-only log keyed by event identifier.
// Implementations are safe for concurrent use. Put is atomic: the event is
// either fully stored or not at all.
type EventStore interface {
	Put(ctx context.Context, e event.Event) error
	Get(ctx context.Context, id string) (event.Event, error)
	// ListByTimeDesc returns every event, newest EventTime first. Events with
	// equal times are returned most recently stored first.
	ListByTimeDesc(ctx context.Context) ([]event.Event, error)
	Close() error
}

func validate(e event.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if e.EventTime.IsZero() {
		return fmt.Errorf("event %s: event time is required", e.ID)
	}
	if !event.TimeInRange(e.EventTime) {
		return fmt.Errorf("event %s: event time %s out of range", e.ID, e.EventTime.Format(time.RFC3339))
	}
	return nil
}
