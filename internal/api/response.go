package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/ingest"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type commandResponse struct {
	EventID  string `json:"event_id"`
	TradeRef string `json:"trade_ref"`
}

type batchResponse struct {
	Total int `json:"total"`
	ingest.BatchResult
}

// eventView is the wire form of an event. A payload that is not valid JSON
// is returned as a string under raw_payload instead of payload.
type eventView struct {
	ID          string          `json:"event_id"`
	Type        event.Type      `json:"event_type"`
	Subject     string          `json:"subject"`
	Source      string          `json:"source_system"`
	TradingDate string          `json:"trading_date"`
	EventTime   time.Time       `json:"event_time"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RawPayload  string          `json:"raw_payload,omitempty"`
}

func newEventView(e event.Event) eventView {
	v := eventView{
		ID:          e.ID,
		Type:        e.Type,
		Subject:     e.Subject,
		Source:      e.Source,
		TradingDate: e.TradingDate.Format(time.DateOnly),
		EventTime:   e.EventTime.UTC(),
	}
	if json.Valid(e.Payload) {
		v.Payload = json.RawMessage(e.Payload)
	} else {
		v.RawPayload = string(e.Payload)
	}
	return v
}

type fieldsView struct {
	Counterparty string  `json:"counterparty"`
	Notional     float64 `json:"notional"`
	Currency     string  `json:"currency,omitempty"`
	Status       string  `json:"status,omitempty"`
}

type eventDetail struct {
	Event    eventView  `json:"event"`
	TradeRef string     `json:"trade_ref"`
	Fields   fieldsView `json:"fields"`
}

type tradeView struct {
	TradeRef     string           `json:"trade_ref"`
	Status       aggregate.Status `json:"status"`
	Counterparty string           `json:"counterparty"`
	Notional     float64          `json:"notional"`
	Modifiable   bool             `json:"is_modifiable"`
	LatestEvent  eventView        `json:"latest_event"`
	History      []eventView      `json:"history"`
}

func newTradeView(a aggregate.TradeAggregate) tradeView {
	history := make([]eventView, len(a.History))
	for i, e := range a.History {
		history[i] = newEventView(e)
	}
	return tradeView{
		TradeRef:     a.TradeRef,
		Status:       a.Status,
		Counterparty: a.Counterparty,
		Notional:     a.Notional,
		Modifiable:   a.Modifiable,
		LatestEvent:  newEventView(a.LatestEvent),
		History:      history,
	}
}

type pageView struct {
	Data        []tradeView `json:"data"`
	CurrentPage int         `json:"current_page"`
	TotalPages  int         `json:"total_pages"`
	TotalItems  int         `json:"total_items"`
}

func newPageView(p aggregate.PagedResult) pageView {
	data := make([]tradeView, len(p.Data))
	for i, a := range p.Data {
		data[i] = newTradeView(a)
	}
	return pageView{Data: data, CurrentPage: p.CurrentPage, TotalPages: p.TotalPages, TotalItems: p.TotalItems}
}
