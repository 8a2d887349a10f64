package store_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

const (
	pgInsert = `INSERT INTO trading_pipeline_tracker (event_id, event_type, subject, source_system, trading_date, event_time, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`
	pgSelectOne = `SELECT event_id, event_type, subject, source_system, trading_date, event_time, data FROM trading_pipeline_tracker WHERE event_id = $1`
	pgSelectAll = `SELECT event_id, event_type, subject, source_system, trading_date, event_time, data FROM trading_pipeline_tracker ORDER BY event_time DESC, seq DESC`
)

var pgColumns = []string{"event_id", "event_type", "subject", "source_system", "trading_date", "event_time", "data"}

func newMockPostgres(t *testing.T) (*store.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewPostgres(db), mock
}

func TestPostgresPut(t *testing.T) {
	s, mock := newMockPostgres(t)
	e := mkEvent("SWAPTION:UI:aaaa1111:BOOK", event.TypeBooked, base)

	mock.ExpectExec(regexp.QuoteMeta(pgInsert)).
		WithArgs(e.ID, "BOOKED", "SWAPTION", "UI", event.DateOf(base), base, string(e.Payload)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, s.Put(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutEmptyPayloadIsNull(t *testing.T) {
	s, mock := newMockPostgres(t)
	e := mkEvent("legacy-1", event.TypeBooked, base)
	e.Payload = nil

	mock.ExpectExec(regexp.QuoteMeta(pgInsert)).
		WithArgs(e.ID, "BOOKED", "SWAPTION", "UI", event.DateOf(base), base, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, s.Put(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutDuplicate(t *testing.T) {
	s, mock := newMockPostgres(t)
	e := mkEvent("SWAPTION:UI:aaaa1111:BOOK", event.TypeBooked, base)

	mock.ExpectExec(regexp.QuoteMeta(pgInsert)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.Put(context.Background(), e)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockPostgres(t)

	rows := sqlmock.NewRows(pgColumns).
		AddRow("A:B:C:BOOK", "BOOKED", "A", "B", event.DateOf(base), base, []byte(`{"trade_ref":"A:B:C"}`))
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectOne)).WithArgs("A:B:C:BOOK").WillReturnRows(rows)

	got, err := s.Get(context.Background(), "A:B:C:BOOK")
	require.NoError(t, err)
	assert.Equal(t, "A:B:C:BOOK", got.ID)
	assert.Equal(t, event.TypeBooked, got.Type)
	assert.True(t, got.EventTime.Equal(base))
	assert.JSONEq(t, `{"trade_ref":"A:B:C"}`, string(got.Payload))
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelectOne)).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresListByTimeDesc(t *testing.T) {
	s, mock := newMockPostgres(t)

	later := base.Add(time.Minute)
	rows := sqlmock.NewRows(pgColumns).
		AddRow("A:B:C:AMEND:0001", "AMENDED", "A", "B", event.DateOf(later), later, []byte(`{}`)).
		AddRow("A:B:C:BOOK", "BOOKED", "A", "B", event.DateOf(base), base, nil)
	mock.ExpectQuery(regexp.QuoteMeta(pgSelectAll)).WillReturnRows(rows)

	got, err := s.ListByTimeDesc(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A:B:C:AMEND:0001", got[0].ID)
	assert.Equal(t, event.TypeAmended, got[0].Type)
	assert.Equal(t, "A:B:C:BOOK", got[1].ID)
	assert.Empty(t, got[1].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trading_pipeline_tracker").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
