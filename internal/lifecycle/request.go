package lifecycle

import (
	"fmt"
	"math"
	"strings"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

func (r BookRequest) validate() error {
	for _, f := range []struct{ name, value string }{
		{"subject", r.Subject},
		{"source", r.Source},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidField, f.name)
		}
		// The value becomes an identifier segment.
		if strings.Contains(f.value, event.Delimiter) {
			return fmt.Errorf("%w: %s must not contain %q", ErrInvalidField, f.name, event.Delimiter)
		}
	}
	if math.IsNaN(r.Notional) || math.IsInf(r.Notional, 0) {
		return fmt.Errorf("%w: notional must be a finite number", ErrInvalidField)
	}
	return nil
}
