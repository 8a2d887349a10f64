package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

// Memory is an in-process EventStore. Nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	events []memoryEntry
	byID   map[string]int
}

type memoryEntry struct {
	seq int
	ev  event.Event
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) Put(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[e.ID]; exists {
		return fmt.Errorf("put %s: %w", e.ID, ErrAlreadyExists)
	}
	e = cloneEvent(e)
	m.byID[e.ID] = len(m.events)
	m.events = append(m.events, memoryEntry{seq: len(m.events), ev: e})
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return event.Event{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return cloneEvent(m.events[i].ev), nil
}

func (m *Memory) ListByTimeDesc(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := make([]memoryEntry, len(m.events))
	copy(entries, m.events)
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].ev.EventTime, entries[j].ev.EventTime
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]event.Event, len(entries))
	for i, en := range entries {
		out[i] = cloneEvent(en.ev)
	}
	return out, nil
}

func cloneEvent(e event.Event) event.Event {
	e.Payload = append([]byte(nil), e.Payload...)
	return e
}

func (m *Memory) Close() error { return nil }

var _ EventStore = (*Memory)(nil)
