// Package payload reads and writes the semi-structured business data carried
// by each ledger event.
//
// Decoding is best-effort: a payload that is missing fields or is not valid
// JSON at all decodes to default values instead of failing, so one corrupt
// event never breaks the view of every other trade.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSON keys of the persisted payload.
const (
	KeyTradeRef     = "trade_ref"
	KeyCounterparty = "counterparty"
	KeyNotional     = "notional_amount"
	KeyCurrency     = "currency"
	KeyStatus       = "status"
)

// Defaults applied when a field is absent or the payload is malformed.
const (
	DefaultCounterparty = "UNKNOWN"
	DefaultNotional     = 0.0
)

// ErrMalformed is reported by DecodeStrict when the payload is not a JSON object.
var ErrMalformed = errors.New("malformed payload")

// Fields is the decoded business view of a payload.
type Fields struct {
	TradeRef     string
	Counterparty string
	Notional     float64
	Currency     string
	Status       string
}

// Decode never fails; see DecodeStrict for the malformed signal.
func Decode(raw []byte) Fields {
	f, _ := DecodeStrict(raw)
	return f
}

// DecodeStrict decodes like Decode but also reports ErrMalformed. The returned
// Fields are default-filled either way.
func DecodeStrict(raw []byte) (Fields, error) {
	f := Fields{Counterparty: DefaultCounterparty, Notional: DefaultNotional}
	if !gjson.ValidBytes(raw) {
		return f, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return f, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	if v := doc.Get(KeyTradeRef); v.Exists() {
		f.TradeRef = v.String()
	}
	if v := doc.Get(KeyCounterparty); v.Exists() {
		f.Counterparty = v.String()
	}
	if v := doc.Get(KeyNotional); v.Exists() {
		f.Notional = v.Float()
	}
	if v := doc.Get(KeyCurrency); v.Exists() {
		f.Currency = v.String()
	}
	if v := doc.Get(KeyStatus); v.Exists() {
		f.Status = v.String()
	}
	return f, nil
}

// TradeRef returns the trade_ref field, or "" when absent or unreadable.
func TradeRef(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	return gjson.GetBytes(raw, KeyTradeRef).String()
}

type wire struct {
	TradeRef     string      `json:"trade_ref"`
	Counterparty string      `json:"counterparty"`
	Notional     json.Number `json:"notional_amount"`
	Currency     string      `json:"currency"`
	Status       string      `json:"status"`
}

// Encode produces a fresh payload from f.
func Encode(f Fields) ([]byte, error) {
	b, err := json.Marshal(wire{
		TradeRef:     f.TradeRef,
		Counterparty: f.Counterparty,
		Notional:     json.Number(strconv.FormatFloat(f.Notional, 'f', -1, 64)),
		Currency:     f.Currency,
		Status:       f.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// WithStatus copies raw, overwriting only its status and trade_ref keys.
// Any other keys, including ones this package does not know, are preserved.
// A payload that is not a JSON object is replaced by one holding just the two keys.
func WithStatus(raw []byte, status, tradeRef string) ([]byte, error) {
	var out []byte
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		out = []byte("{}")
	} else {
		out = append([]byte(nil), raw...)
	}
	out, err := sjson.SetBytes(out, KeyStatus, status)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", KeyStatus, err)
	}
	out, err = sjson.SetBytes(out, KeyTradeRef, tradeRef)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", KeyTradeRef, err)
	}
	return out, nil
}

// Valid reports whether raw is a JSON object, the only payload shape the
// ledger accepts from external producers.
func Valid(raw []byte) bool {
	return gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject()
}
