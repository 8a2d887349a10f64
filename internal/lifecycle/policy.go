package lifecycle

// Policy controls which lifecycle commands the writer accepts. It can be
// swapped at runtime with Writer.SetPolicy.
type Policy struct {
	// AllowEventsAfterCancellation keeps a cancelled trade open to further
	// amend/cancel/verify events. When false those commands fail with
	// ErrTradeTerminal once the trade's latest event is a cancellation.
	AllowEventsAfterCancellation bool
	// RequireLatest makes amend/cancel/verify fail with ErrConflict unless
	// they target the trade's current latest event.
	RequireLatest bool
	// Currency is written into every freshly created payload.
	Currency string
}

// DefaultPolicy accepts any event at any time, the ledger's historical behavior.
func DefaultPolicy() Policy {
	return Policy{
		AllowEventsAfterCancellation: true,
		RequireLatest:                false,
		Currency:                     "USD",
	}
}

func (p Policy) needsTradeLookup() bool {
	return !p.AllowEventsAfterCancellation || p.RequireLatest
}
