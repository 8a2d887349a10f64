// Package lifecycle appends booking, amendment, cancellation and verification
// events to the ledger.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/identity"
	"github.com/gyaneshwarpardhi/tradeledger/internal/metrics"
	"github.com/gyaneshwarpardhi/tradeledger/internal/payload"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

var (
	// ErrInvalidField reports a request field the ledger cannot store safely.
	ErrInvalidField = errors.New("invalid field")
	// ErrTradeTerminal is returned when the trade is cancelled and the policy
	// forbids further events.
	ErrTradeTerminal = errors.New("trade is cancelled")
	// ErrConflict is returned when RequireLatest is set and the targeted event
	// is no longer the trade's latest.
	ErrConflict = errors.New("trade changed since read")
)

const (
	refNonceLen   = 8
	eventNonceLen = 4
	maxAttempts   = 3
)

// Reader is the read side the writer consults for lookups and policy checks.
type Reader interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
	Trade(ctx context.Context, ref string) (aggregate.TradeAggregate, error)
}

// BookRequest carries the user-supplied fields of a booking or amendment.
type BookRequest struct {
	Subject      string  `json:"subject"`
	Source       string  `json:"source"`
	Counterparty string  `json:"counterparty"`
	Notional     float64 `json:"notional"`
}

// Writer produces lifecycle events. Every command is a single atomic append.
type Writer struct {
	store  store.EventStore
	reader Reader
	policy atomic.Pointer[Policy]
	clock  *monotonicClock
	nonce  func(n int) string
}

// Option customizes a Writer.
type Option func(*Writer)

// WithPolicy sets the initial policy (default DefaultPolicy).
func WithPolicy(p Policy) Option {
	return func(w *Writer) { w.SetPolicy(p) }
}

// WithClock replaces time.Now as the event time source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.clock.now = now }
}

// WithNonce replaces the random nonce generator.
func WithNonce(fn func(n int) string) Option {
	return func(w *Writer) { w.nonce = fn }
}

// New creates a Writer appending to s and reading through r.
func New(s store.EventStore, r Reader, opts ...Option) *Writer {
	w := &Writer{
		store:  s,
		reader: r,
		clock:  &monotonicClock{now: time.Now},
		nonce:  randomNonce,
	}
	w.SetPolicy(DefaultPolicy())
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetPolicy atomically replaces the active policy.
func (w *Writer) SetPolicy(p Policy) {
	if p.Currency == "" {
		p.Currency = DefaultPolicy().Currency
	}
	w.policy.Store(&p)
}

// Policy returns the active policy.
func (w *Writer) Policy() Policy {
	return *w.policy.Load()
}

// Book opens a new trade and returns its booking event id.
func (w *Writer) Book(ctx context.Context, req BookRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	p := w.Policy()
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ref := event.Ref{Subject: req.Subject, Source: req.Source, Nonce: w.nonce(refNonceLen)}
		id := event.ID{Ref: ref, Action: event.ActionBook}.String()
		var raw []byte
		raw, err = payload.Encode(payload.Fields{
			TradeRef:     ref.String(),
			Counterparty: req.Counterparty,
			Notional:     req.Notional,
			Currency:     p.Currency,
			Status:       string(aggregate.StatusLive),
		})
		if err != nil {
			return "", err
		}
		err = w.append(ctx, id, event.TypeBooked, req.Subject, req.Source, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return "", err
		}
	}
	return "", err
}

// Amend records new business terms for the trade that originalID belongs to.
// The trade reference is recovered structurally from originalID and the
// payload is written fresh rather than merged.
func (w *Writer) Amend(ctx context.Context, originalID string, req BookRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	ref := identity.RefFromEventID(originalID)
	if err := w.checkPolicy(ctx, ref, originalID); err != nil {
		return "", err
	}
	raw, err := payload.Encode(payload.Fields{
		TradeRef:     ref,
		Counterparty: req.Counterparty,
		Notional:     req.Notional,
		Currency:     w.Policy().Currency,
		Status:       string(aggregate.StatusLive),
	})
	if err != nil {
		return "", err
	}
	return w.appendWithNonce(ctx, ref, event.ActionAmend, event.TypeAmended, req.Subject, req.Source, raw)
}

// Cancel marks the trade containing tradeID as cancelled.
func (w *Writer) Cancel(ctx context.Context, tradeID string) (string, error) {
	return w.transition(ctx, tradeID, event.TypeCancelled, aggregate.StatusCancelled)
}

// Verify marks the trade containing tradeID as verified.
func (w *Writer) Verify(ctx context.Context, tradeID string) (string, error) {
	return w.transition(ctx, tradeID, event.TypeVerified, aggregate.StatusVerified)
}

// transition copies the target event's payload with a new status.
func (w *Writer) transition(ctx context.Context, tradeID string, typ event.Type, status aggregate.Status) (string, error) {
	target, err := w.reader.GetByID(ctx, tradeID)
	if err != nil {
		return "", err
	}
	ref := identity.ResolveTradeRef(target)
	if err := w.checkPolicy(ctx, ref, tradeID); err != nil {
		return "", err
	}
	raw, err := payload.WithStatus(target.Payload, string(status), ref)
	if err != nil {
		return "", err
	}
	return w.appendWithNonce(ctx, ref, event.ActionFor(typ), typ, target.Subject, target.Source, raw)
}

func (w *Writer) checkPolicy(ctx context.Context, ref, targetID string) error {
	p := w.Policy()
	if !p.needsTradeLookup() {
		return nil
	}
	agg, err := w.reader.Trade(ctx, ref)
	if err != nil {
		return err
	}
	if !p.AllowEventsAfterCancellation && agg.Status == aggregate.StatusCancelled {
		metrics.LifecycleRejected.WithLabelValues("terminal").Inc()
		return fmt.Errorf("trade %s: %w", ref, ErrTradeTerminal)
	}
	if p.RequireLatest && agg.LatestEvent.ID != targetID {
		metrics.LifecycleRejected.WithLabelValues("conflict").Inc()
		return fmt.Errorf("trade %s: latest event is %s, not %s: %w", ref, agg.LatestEvent.ID, targetID, ErrConflict)
	}
	return nil
}

// appendWithNonce appends under {ref}:{action}:{nonce}, drawing a new nonce if
// the id is already taken.
func (w *Writer) appendWithNonce(ctx context.Context, ref string, action event.Action, typ event.Type, subject, source string, raw []byte) (string, error) {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := event.JoinID(ref, action, w.nonce(eventNonceLen))
		err = w.append(ctx, id, typ, subject, source, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return "", err
		}
	}
	return "", err
}

func (w *Writer) append(ctx context.Context, id string, typ event.Type, subject, source string, raw []byte) error {
	now := w.clock.Now()
	e := event.Event{
		ID:          id,
		Type:        typ,
		Subject:     subject,
		Source:      source,
		TradingDate: event.DateOf(now),
		EventTime:   now,
		Payload:     raw,
	}
	if err := w.store.Put(ctx, e); err != nil {
		metrics.AppendFailures.Inc()
		return err
	}
	metrics.EventsAppended.WithLabelValues(string(typ)).Inc()
	slog.Info("event appended", "event_id", id, "event_type", typ)
	return nil
}
