package event_test

import (
	"math"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

func TestTimeInRange(t *testing.T) {
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC), true},
		{time.Unix(0, math.MaxInt64), true},
		{time.Unix(0, math.MinInt64), true},
		{time.Date(2263, time.January, 1, 0, 0, 0, 0, time.UTC), false},
		{time.Date(1600, time.January, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range tests {
		if got := event.TimeInRange(tc.at); got != tc.want {
			t.Errorf("TimeInRange(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}
