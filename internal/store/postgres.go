package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

const pqUniqueViolation = "23505"

// Postgres persists events in PostgreSQL with the payload in a JSONB column.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects using dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgres(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing handle. The caller runs Migrate if needed.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the events table when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS trading_pipeline_tracker (
		seq           BIGSERIAL,
		event_id      TEXT PRIMARY KEY,
		event_type    TEXT NOT NULL,
		subject       TEXT NOT NULL DEFAULT '',
		source_system TEXT NOT NULL DEFAULT '',
		trading_date  DATE NOT NULL,
		event_time    TIMESTAMPTZ NOT NULL,
		data          JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_tracker_event_time ON trading_pipeline_tracker (event_time DESC, seq DESC);`)
	if err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Postgres) Put(ctx context.Context, e event.Event) error {
	if err := validate(e); err != nil {
		return err
	}
	// JSONB must be sent as text; lib/pq encodes []byte as bytea.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trading_pipeline_tracker (event_id, event_type, subject, source_system, trading_date, event_time, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		e.ID, string(e.Type), e.Subject, e.Source, event.DateOf(e.TradingDate), e.EventTime.UTC(), jsonbArg(e.Payload),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("put %s: %w", e.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_id, event_type, subject, source_system, trading_date, event_time, data FROM trading_pipeline_tracker WHERE event_id = $1`,
		id)
	e, err := scanPostgresEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *Postgres) ListByTimeDesc(ctx context.Context) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, subject, source_system, trading_date, event_time, data FROM trading_pipeline_tracker ORDER BY event_time DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []event.Event
	for rows.Next() {
		e, err := scanPostgresEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func jsonbArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanPostgresEvent(r rowScanner) (event.Event, error) {
	var (
		e   event.Event
		typ string
		raw []byte
	)
	if err := r.Scan(&e.ID, &typ, &e.Subject, &e.Source, &e.TradingDate, &e.EventTime, &raw); err != nil {
		return event.Event{}, err
	}
	e.Type = event.Type(typ)
	e.TradingDate = e.TradingDate.UTC()
	e.EventTime = e.EventTime.UTC()
	e.Payload = raw
	return e, nil
}

var _ EventStore = (*Postgres)(nil)
