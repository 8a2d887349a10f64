package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

const dateLayout = "2006-01-02"

// SQLite persists events in a single SQLite table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS trade_events (
		event_id      TEXT PRIMARY KEY,
		event_type    TEXT NOT NULL,
		subject       TEXT NOT NULL DEFAULT '',
		source_system TEXT NOT NULL DEFAULT '',
		trading_date  TEXT NOT NULL,
		event_time    INTEGER NOT NULL,
		data          TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_trade_events_time ON trade_events (event_time DESC);`)
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Put(ctx context.Context, e event.Event) error {
	if err := validate(e); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_events (event_id, event_type, subject, source_system, trading_date, event_time, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.Type),
		e.Subject,
		e.Source,
		e.TradingDate.UTC().Format(dateLayout),
		e.EventTime.UTC().UnixNano(),
		string(e.Payload),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("put %s: %w", e.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_id, event_type, subject, source_system, trading_date, event_time, data
		   FROM trade_events
		  WHERE event_id = ?`, id)
	e, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLite) ListByTimeDesc(ctx context.Context) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, subject, source_system, trading_date, event_time, data
		   FROM trade_events
		  ORDER BY event_time DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []event.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(r rowScanner) (event.Event, error) {
	var (
		e           event.Event
		typ         string
		tradingDate string
		eventTime   int64
		data        string
	)
	if err := r.Scan(&e.ID, &typ, &e.Subject, &e.Source, &tradingDate, &eventTime, &data); err != nil {
		return event.Event{}, err
	}
	e.Type = event.Type(typ)
	e.EventTime = time.Unix(0, eventTime).UTC()
	if d, err := time.Parse(dateLayout, tradingDate); err == nil {
		e.TradingDate = d
	} else {
		e.TradingDate = event.DateOf(e.EventTime)
	}
	e.Payload = []byte(data)
	return e, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ EventStore = (*SQLite)(nil)
