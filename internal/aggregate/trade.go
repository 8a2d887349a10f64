package aggregate

import (
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/payload"
)

// Status is the derived display state of a trade.
type Status string

const (
	StatusLive      Status = "LIVE"
	StatusVerified  Status = "VERIFIED"
	StatusCancelled Status = "CANCELLED"
)

// TradeAggregate is the current-state view of one trade, derived from its
// events on every read and never stored.
type TradeAggregate struct {
	TradeRef     string        `json:"trade_ref"`
	LatestEvent  event.Event   `json:"latest_event"`
	History      []event.Event `json:"history"` // newest first
	Status       Status        `json:"status"`
	Counterparty string        `json:"counterparty"`
	Notional     float64       `json:"notional"`
	Modifiable   bool          `json:"is_modifiable"`
}

// PagedResult is one page of a filtered listing.
type PagedResult struct {
	Data        []TradeAggregate `json:"data"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	TotalItems  int              `json:"total_items"`
}

// DeriveStatus maps the latest event type to status and modifiability.
func DeriveStatus(t event.Type) (Status, bool) {
	switch t {
	case event.TypeCancelled:
		return StatusCancelled, false
	case event.TypeVerified:
		return StatusVerified, true
	default:
		return StatusLive, true
	}
}

// build derives an aggregate from a newest-first history. malformed reports
// whether the latest payload could not be parsed (defaults were used).
func build(ref string, history []event.Event) (agg TradeAggregate, malformed bool) {
	latest := history[0]
	status, modifiable := DeriveStatus(latest.Type)
	fields, err := payload.DecodeStrict(latest.Payload)
	return TradeAggregate{
		TradeRef:     ref,
		LatestEvent:  latest,
		History:      history,
		Status:       status,
		Counterparty: fields.Counterparty,
		Notional:     fields.Notional,
		Modifiable:   modifiable,
	}, err != nil
}
