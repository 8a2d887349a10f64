package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/identity"
	"github.com/gyaneshwarpardhi/tradeledger/internal/metrics"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

// ErrInvalidPagination is returned for a negative page or a page size below one.
// Out-of-range values are rejected, never clamped.
var ErrInvalidPagination = errors.New("invalid pagination")

// Engine derives trade aggregates from the full event log. It holds no state
// of its own: every call re-reads the store.
type Engine struct {
	store store.EventStore
}

// New creates an Engine reading from s.
func New(s store.EventStore) *Engine {
	return &Engine{store: s}
}

// ListTrades returns one page of trades, newest activity first, optionally
// filtered by a case-insensitive substring match on trade ref, counterparty,
// subject or status.
func (e *Engine) ListTrades(ctx context.Context, query string, page, pageSize int) (PagedResult, error) {
	if pageSize < 1 {
		return PagedResult{}, fmt.Errorf("%w: page size %d must be at least 1", ErrInvalidPagination, pageSize)
	}
	if page < 0 {
		return PagedResult{}, fmt.Errorf("%w: page %d must not be negative", ErrInvalidPagination, page)
	}
	all, err := e.All(ctx, query)
	if err != nil {
		return PagedResult{}, err
	}
	return paginate(all, page, pageSize), nil
}

// All returns every matching trade without pagination.
func (e *Engine) All(ctx context.Context, query string) ([]TradeAggregate, error) {
	start := time.Now()
	defer func() {
		metrics.ListingDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	events, err := e.store.ListByTimeDesc(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	aggs := aggregateAll(events)
	metrics.TradesListed.Set(float64(len(aggs)))
	return filter(aggs, query), nil
}

// Trade returns the aggregate for a single trade reference.
func (e *Engine) Trade(ctx context.Context, ref string) (TradeAggregate, error) {
	events, err := e.store.ListByTimeDesc(ctx)
	if err != nil {
		return TradeAggregate{}, fmt.Errorf("list events: %w", err)
	}
	var history []event.Event
	for _, ev := range events {
		if identity.ResolveTradeRef(ev) == ref {
			history = append(history, ev)
		}
	}
	if len(history) == 0 {
		return TradeAggregate{}, fmt.Errorf("trade %s: %w", ref, store.ErrNotFound)
	}
	agg, malformed := build(ref, history)
	if malformed {
		metrics.PayloadDecodeFailures.Inc()
	}
	return agg, nil
}

// GetByID returns the raw event stored under id.
func (e *Engine) GetByID(ctx context.Context, id string) (event.Event, error) {
	return e.store.Get(ctx, id)
}

// aggregateAll groups newest-first events by trade ref. Grouping keeps the
// source order, so each group's first element is its latest event.
func aggregateAll(events []event.Event) []TradeAggregate {
	index := make(map[string]int)
	var refs []string
	var groups [][]event.Event
	for _, ev := range events {
		ref := identity.ResolveTradeRef(ev)
		i, ok := index[ref]
		if !ok {
			i = len(groups)
			index[ref] = i
			refs = append(refs, ref)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ev)
	}

	aggs := make([]TradeAggregate, 0, len(groups))
	for i, history := range groups {
		agg, malformed := build(refs[i], history)
		if malformed {
			metrics.PayloadDecodeFailures.Inc()
			slog.Debug("latest payload malformed, using defaults", "trade_ref", refs[i], "event_id", agg.LatestEvent.ID)
		}
		aggs = append(aggs, agg)
	}
	sort.SliceStable(aggs, func(i, j int) bool {
		return aggs[i].LatestEvent.EventTime.After(aggs[j].LatestEvent.EventTime)
	})
	return aggs
}

func filter(aggs []TradeAggregate, query string) []TradeAggregate {
	if strings.TrimSpace(query) == "" {
		return aggs
	}
	q := strings.ToLower(query)
	out := aggs[:0:0]
	for _, a := range aggs {
		if matches(a, q) {
			out = append(out, a)
		}
	}
	return out
}

func matches(a TradeAggregate, q string) bool {
	return strings.Contains(strings.ToLower(a.TradeRef), q) ||
		strings.Contains(strings.ToLower(a.Counterparty), q) ||
		strings.Contains(strings.ToLower(a.LatestEvent.Subject), q) ||
		strings.Contains(strings.ToLower(string(a.Status)), q)
}

func paginate(items []TradeAggregate, page, pageSize int) PagedResult {
	total := len(items)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	start := total
	if page < totalPages {
		start = page * pageSize
	}
	end := start + min(pageSize, total-start)
	data := items[start:end]
	if data == nil {
		data = []TradeAggregate{}
	}
	return PagedResult{
		Data:        data,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
	}
}
