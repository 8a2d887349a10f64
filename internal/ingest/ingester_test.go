package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/ingest"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

func newIngester(t *testing.T, s store.EventStore, workers, depth int) *ingest.Ingester {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	in := ingest.New(ctx, s, ingest.Config{Workers: workers, QueueDepth: depth})
	t.Cleanup(func() {
		in.Shutdown()
		cancel()
	})
	return in
}

func TestNormalizeDefaults(t *testing.T) {
	in := newIngester(t, store.NewMemory(), 1, 1)
	before := time.Now().UTC()
	e, err := in.Normalize(ingest.Request{ID: "BOND:FEED:abcd1234:BOOK", Type: event.TypeBooked})
	require.NoError(t, err)

	assert.False(t, e.EventTime.Before(before))
	assert.False(t, e.EventTime.After(time.Now().UTC()))
	assert.True(t, e.TradingDate.Equal(event.DateOf(e.EventTime)))
	assert.JSONEq(t, `{}`, string(e.Payload))
}

func TestNormalizeKeepsSuppliedTimes(t *testing.T) {
	in := newIngester(t, store.NewMemory(), 1, 1)
	at := time.Date(2026, time.January, 5, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	e, err := in.Normalize(ingest.Request{
		ID: "x", Type: event.TypeAmended, EventTime: &at, TradingDate: "2026-01-05",
		Payload: json.RawMessage(`{"counterparty":"JPM"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, e.EventTime.Location())
	assert.True(t, e.EventTime.Equal(at))
	assert.Equal(t, "2026-01-05", e.TradingDate.Format(time.DateOnly))
}

func TestNormalizeRejects(t *testing.T) {
	in := newIngester(t, store.NewMemory(), 1, 1)
	farFuture := time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)
	farPast := time.Date(1500, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		req  ingest.Request
	}{
		{"missing id", ingest.Request{Type: event.TypeBooked}},
		{"blank id", ingest.Request{ID: "  ", Type: event.TypeBooked}},
		{"unknown type", ingest.Request{ID: "x", Type: "SETTLED"}},
		{"array payload", ingest.Request{ID: "x", Type: event.TypeBooked, Payload: json.RawMessage(`[1,2]`)}},
		{"bad trading date", ingest.Request{ID: "x", Type: event.TypeBooked, TradingDate: "05/01/2026"}},
		{"event time past 2262", ingest.Request{ID: "x", Type: event.TypeBooked, EventTime: &farFuture}},
		{"event time before 1677", ingest.Request{ID: "x", Type: event.TypeBooked, EventTime: &farPast}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := in.Normalize(tc.req)
			assert.ErrorIs(t, err, ingest.ErrInvalidEvent)
		})
	}
}

func TestAppendGroupsByStructuralRef(t *testing.T) {
	s := store.NewMemory()
	in := newIngester(t, s, 1, 1)
	ctx := context.Background()
	t0 := time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	_, err := in.Append(ctx, ingest.Request{ID: "BOND:FEED:abcd1234:BOOK", Type: event.TypeBooked, Subject: "BOND", Source: "FEED",
		EventTime: &t0, Payload: json.RawMessage(`{"counterparty":"MS","notional_amount":10}`)})
	require.NoError(t, err)
	_, err = in.Append(ctx, ingest.Request{ID: "BOND:FEED:abcd1234:VERIFY:q1w2", Type: event.TypeVerified, Subject: "BOND", Source: "FEED",
		EventTime: &t1, Payload: json.RawMessage(`{"counterparty":"MS","notional_amount":10}`)})
	require.NoError(t, err)

	agg, err := aggregate.New(s).Trade(ctx, "BOND:FEED:abcd1234")
	require.NoError(t, err)
	assert.Len(t, agg.History, 2)
	assert.Equal(t, aggregate.StatusVerified, agg.Status)
	assert.Equal(t, "MS", agg.Counterparty)
}

func TestAppendDuplicate(t *testing.T) {
	in := newIngester(t, store.NewMemory(), 1, 1)
	req := ingest.Request{ID: "dup", Type: event.TypeBooked}
	_, err := in.Append(context.Background(), req)
	require.NoError(t, err)
	_, err = in.Append(context.Background(), req)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEnqueueStoresInBackground(t *testing.T) {
	s := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := ingest.New(ctx, s, ingest.Config{Workers: 4, QueueDepth: 50})

	var reqs []ingest.Request
	for i := 0; i < 20; i++ {
		reqs = append(reqs, ingest.Request{ID: fmt.Sprintf("CDS:FEED:%08d:BOOK", i), Type: event.TypeBooked})
	}
	reqs = append(reqs, ingest.Request{ID: "bad", Type: "NOPE"})

	res, err := in.Enqueue(reqs)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Queued)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, 20, res.Rejections[0].Index)

	in.Shutdown()
	events, err := s.ListByTimeDesc(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 20)

	_, err = in.Enqueue(reqs[:1])
	assert.ErrorIs(t, err, ingest.ErrClosed)
}

func TestEnqueueBatchLimit(t *testing.T) {
	in := newIngester(t, store.NewMemory(), 1, 1)
	_, err := in.Enqueue(make([]ingest.Request, ingest.MaxBatch+1))
	assert.ErrorIs(t, err, ingest.ErrBatchTooLarge)
}

// blockingStore holds every Put until release is closed.
type blockingStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Put(ctx context.Context, e event.Event) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Memory.Put(ctx, e)
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	bs := &blockingStore{Memory: store.NewMemory(), entered: make(chan struct{}, 10), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := ingest.New(ctx, bs, ingest.Config{Workers: 1, QueueDepth: 1})

	res, err := in.Enqueue([]ingest.Request{{ID: "a", Type: event.TypeBooked}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Queued)
	<-bs.entered // worker is now busy with "a"

	res, err = in.Enqueue([]ingest.Request{{ID: "b", Type: event.TypeBooked}, {ID: "c", Type: event.TypeBooked}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, "c", res.Rejections[0].EventID)
	assert.Equal(t, 1.0, in.QueueUtilization())

	close(bs.release)
	in.Shutdown()
	_, err = bs.Get(context.Background(), "b")
	assert.NoError(t, err)
	_, err = bs.Get(context.Background(), "c")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
