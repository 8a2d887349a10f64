package identity

import (
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/payload"
)

// ResolveTradeRef returns the trade reference an event belongs to.
// The payload's trade_ref wins when present and non-empty; otherwise the
// reference is recovered from the event identifier. The result depends only on
// the event, so two events are in the same trade iff they resolve equal.
func ResolveTradeRef(e event.Event) string {
	if ref := payload.TradeRef(e.Payload); ref != "" {
		return ref
	}
	return RefFromEventID(e.ID)
}

// RefFromEventID applies the structural rule: the first three segments of id,
// or id itself when it has fewer than three.
func RefFromEventID(id string) string {
	parsed, ok := event.ParseID(id)
	if !ok {
		return id
	}
	return parsed.Ref.String()
}
