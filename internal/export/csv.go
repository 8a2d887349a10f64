// Package export renders trade aggregates as a flat comma-separated blotter.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
)

// Header is the first line of every export.
const Header = "TradeRef,CurrentStatus,Subject,Source,Counterparty,Notional,LastUpdate"

// ContentType and Filename describe the export as a download.
const (
	ContentType = "text/plain; charset=utf-8"
	Filename    = "trade_blotter.csv"
)

var sanitizer = strings.NewReplacer(",", " ", "\r", " ", "\n", " ")

// Render writes the header followed by one row per aggregate. Commas and line
// breaks inside values become spaces; nothing is quoted.
func Render(w io.Writer, aggs []aggregate.TradeAggregate) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(Header)
	bw.WriteByte('\n')
	for _, a := range aggs {
		bw.WriteString(Row(a))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Row formats a single aggregate without the trailing newline.
func Row(a aggregate.TradeAggregate) string {
	cols := []string{
		clean(a.TradeRef),
		clean(string(a.Status)),
		clean(a.LatestEvent.Subject),
		clean(a.LatestEvent.Source),
		clean(a.Counterparty),
		strconv.FormatFloat(a.Notional, 'f', -1, 64),
		a.LatestEvent.EventTime.UTC().Format(time.RFC3339Nano),
	}
	return strings.Join(cols, ",")
}

func clean(s string) string {
	return sanitizer.Replace(s)
}
