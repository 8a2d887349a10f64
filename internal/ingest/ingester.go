// Package ingest accepts events produced outside the ledger, such as booking
// feeds from upstream systems, and appends them to the store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/metrics"
	"github.com/gyaneshwarpardhi/tradeledger/internal/payload"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

// MaxBatch is the largest batch Enqueue accepts.
const MaxBatch = 100

var (
	// ErrInvalidEvent reports an external event that cannot be stored.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrBatchTooLarge is returned by Enqueue for more than MaxBatch events.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrClosed is returned once Shutdown has been called.
	ErrClosed = errors.New("ingester closed")
)

// Request is an externally produced event. Payloads need not carry a
// trade_ref; such events are grouped by their identifier instead.
type Request struct {
	ID          string          `json:"event_id"`
	Type        event.Type      `json:"event_type"`
	Subject     string          `json:"subject"`
	Source      string          `json:"source_system"`
	TradingDate string          `json:"trading_date,omitempty"` // YYYY-MM-DD
	EventTime   *time.Time      `json:"event_time,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Rejection explains why one batch item was not queued.
type Rejection struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
}

// BatchResult summarizes an Enqueue call.
type BatchResult struct {
	Queued     int         `json:"queued"`
	Rejected   int         `json:"rejected"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Config sizes the worker pool.
type Config struct {
	Workers    int
	QueueDepth int
}

// Ingester validates external events and appends them, synchronously via
// Append or in the background via Enqueue.
type Ingester struct {
	store store.EventStore
	pool  *workerPool[event.Event]
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
}

// New starts an Ingester whose workers stop when ctx is cancelled.
func New(ctx context.Context, s store.EventStore, conf Config) *Ingester {
	in := &Ingester{store: s, now: time.Now}
	in.pool = newWorkerPool(ctx, max(conf.Workers, 1), max(conf.QueueDepth, 1), in.put, in.finished)
	return in
}

// Normalize validates r and fills its defaults: event time is the receive
// time and trading date the event time's date.
func (in *Ingester) Normalize(r Request) (event.Event, error) {
	if strings.TrimSpace(r.ID) == "" {
		return event.Event{}, fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if !r.Type.Valid() {
		return event.Event{}, fmt.Errorf("%w: %s: unknown event_type %q", ErrInvalidEvent, r.ID, r.Type)
	}
	raw := []byte(r.Payload)
	if len(raw) == 0 {
		raw = []byte("{}")
	} else if !payload.Valid(raw) {
		return event.Event{}, fmt.Errorf("%w: %s: payload must be a JSON object", ErrInvalidEvent, r.ID)
	}
	e := event.Event{
		ID:      r.ID,
		Type:    r.Type,
		Subject: r.Subject,
		Source:  r.Source,
		Payload: raw,
	}
	if r.EventTime != nil && !r.EventTime.IsZero() {
		if !event.TimeInRange(*r.EventTime) {
			return event.Event{}, fmt.Errorf("%w: %s: event_time %s out of range", ErrInvalidEvent, r.ID, r.EventTime.Format(time.RFC3339))
		}
		e.EventTime = r.EventTime.UTC()
	} else {
		e.EventTime = in.now().UTC()
	}
	if r.TradingDate != "" {
		d, err := time.Parse(time.DateOnly, r.TradingDate)
		if err != nil {
			return event.Event{}, fmt.Errorf("%w: %s: trading_date: %v", ErrInvalidEvent, r.ID, err)
		}
		e.TradingDate = d
	} else {
		e.TradingDate = event.DateOf(e.EventTime)
	}
	return e, nil
}

// Append stores one event before returning.
func (in *Ingester) Append(ctx context.Context, r Request) (event.Event, error) {
	e, err := in.Normalize(r)
	if err != nil {
		return event.Event{}, err
	}
	err = in.put(ctx, e)
	in.finished(e, err)
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

// Enqueue validates every request and queues the valid ones without
// blocking. Items that are invalid or do not fit in the queue are rejected;
// the rest are appended in the background.
func (in *Ingester) Enqueue(reqs []Request) (BatchResult, error) {
	if len(reqs) > MaxBatch {
		return BatchResult{}, fmt.Errorf("%w: %d events, limit %d", ErrBatchTooLarge, len(reqs), MaxBatch)
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return BatchResult{}, ErrClosed
	}

	var res BatchResult
	for i, r := range reqs {
		e, err := in.Normalize(r)
		if err != nil {
			res.reject(i, r.ID, err.Error())
			continue
		}
		if !in.pool.Submit(e) {
			metrics.IngestDropped.Inc()
			res.reject(i, r.ID, "ingest queue full")
			continue
		}
		metrics.IngestEnqueued.Inc()
		res.Queued++
	}
	metrics.IngestQueueUtilization.Set(in.QueueUtilization())
	return res, nil
}

func (r *BatchResult) reject(i int, id, reason string) {
	r.Rejected++
	r.Rejections = append(r.Rejections, Rejection{Index: i, EventID: id, Reason: reason})
}

// QueueUtilization returns queue used / capacity (0–1).
func (in *Ingester) QueueUtilization() float64 {
	if in.pool.QueueCap() == 0 {
		return 0
	}
	return float64(in.pool.QueueLen()) / float64(in.pool.QueueCap())
}

// Shutdown stops accepting batches and waits for queued events to be stored.
func (in *Ingester) Shutdown() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()
	in.pool.Drain()
}

func (in *Ingester) put(ctx context.Context, e event.Event) error {
	return in.store.Put(ctx, e)
}

func (in *Ingester) finished(e event.Event, err error) {
	if err != nil {
		metrics.AppendFailures.Inc()
		slog.Warn("ingest append failed", "event_id", e.ID, "err", err)
		return
	}
	metrics.EventsAppended.WithLabelValues(string(e.Type)).Inc()
	slog.Debug("event ingested", "event_id", e.ID, "event_type", e.Type)
}
