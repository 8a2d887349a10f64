package aggregate_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

var t0 = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func ev(id string, typ event.Type, offset time.Duration, body string) event.Event {
	parsed, _ := event.ParseID(id)
	at := t0.Add(offset)
	return event.Event{
		ID:          id,
		Type:        typ,
		Subject:     parsed.Ref.Subject,
		Source:      parsed.Ref.Source,
		TradingDate: event.DateOf(at),
		EventTime:   at,
		Payload:     []byte(body),
	}
}

func seed(t *testing.T, events ...event.Event) *aggregate.Engine {
	t.Helper()
	s := store.NewMemory()
	for _, e := range events {
		if err := s.Put(context.Background(), e); err != nil {
			t.Fatalf("seed %s: %v", e.ID, err)
		}
	}
	return aggregate.New(s)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		typ        event.Type
		status     aggregate.Status
		modifiable bool
	}{
		{event.TypeBooked, aggregate.StatusLive, true},
		{event.TypeAmended, aggregate.StatusLive, true},
		{event.TypeVerified, aggregate.StatusVerified, true},
		{event.TypeCancelled, aggregate.StatusCancelled, false},
		{event.Type("SETTLED"), aggregate.StatusLive, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			status, mod := aggregate.DeriveStatus(tc.typ)
			if status != tc.status || mod != tc.modifiable {
				t.Errorf("DeriveStatus(%s) = (%s, %v), want (%s, %v)", tc.typ, status, mod, tc.status, tc.modifiable)
			}
		})
	}
}

func TestListTradesGroupsAndOrders(t *testing.T) {
	eng := seed(t,
		ev("IRS:UI:aaaa0001:BOOK", event.TypeBooked, 0, `{"trade_ref":"IRS:UI:aaaa0001","counterparty":"GOLDMAN_SACHS","notional_amount":100}`),
		ev("FX:UI:bbbb0002:BOOK", event.TypeBooked, time.Minute, `{"trade_ref":"FX:UI:bbbb0002","counterparty":"JPM","notional_amount":50}`),
		ev("IRS:UI:aaaa0001:VERIFY:0001", event.TypeVerified, 2*time.Minute, `{"trade_ref":"IRS:UI:aaaa0001","counterparty":"GOLDMAN_SACHS","notional_amount":100,"status":"VERIFIED"}`),
	)

	res, err := eng.ListTrades(context.Background(), "", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalItems != 2 || res.TotalPages != 1 || len(res.Data) != 2 {
		t.Fatalf("got items=%d pages=%d len=%d", res.TotalItems, res.TotalPages, len(res.Data))
	}
	first := res.Data[0]
	if first.TradeRef != "IRS:UI:aaaa0001" || first.Status != aggregate.StatusVerified {
		t.Errorf("first = %s/%s, want IRS verified", first.TradeRef, first.Status)
	}
	if len(first.History) != 2 || first.History[0].ID != first.LatestEvent.ID {
		t.Errorf("history not newest first: %+v", first.History)
	}
	for _, h := range first.History {
		if h.EventTime.After(first.LatestEvent.EventTime) {
			t.Errorf("latest %s is older than %s", first.LatestEvent.ID, h.ID)
		}
	}
	if res.Data[1].TradeRef != "FX:UI:bbbb0002" || res.Data[1].Counterparty != "JPM" {
		t.Errorf("second = %+v", res.Data[1])
	}
}

func TestRefFallsBackToEventID(t *testing.T) {
	eng := seed(t,
		ev("BOND:FEED:cccc0003:BOOK", event.TypeBooked, 0, `{"counterparty":"MS"}`),
		ev("BOND:FEED:cccc0003:CANCEL:9f9f", event.TypeCancelled, time.Second, `{"counterparty":"MS"}`),
	)
	agg, err := eng.Trade(context.Background(), "BOND:FEED:cccc0003")
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.History) != 2 || agg.Status != aggregate.StatusCancelled || agg.Modifiable {
		t.Errorf("agg = %+v", agg)
	}
}

func TestSearch(t *testing.T) {
	eng := seed(t,
		ev("IRS:UI:aaaa0001:BOOK", event.TypeBooked, 0, `{"trade_ref":"IRS:UI:aaaa0001","counterparty":"GOLDMAN_SACHS"}`),
		ev("FX:DESK:bbbb0002:BOOK", event.TypeBooked, time.Minute, `{"trade_ref":"FX:DESK:bbbb0002","counterparty":"JPM"}`),
		ev("FX:DESK:bbbb0002:CANCEL:0001", event.TypeCancelled, 2*time.Minute, `{"trade_ref":"FX:DESK:bbbb0002","counterparty":"JPM"}`),
	)
	tests := []struct {
		query string
		want  []string
	}{
		{"goldman", []string{"IRS:UI:aaaa0001"}},
		{"GOLDMAN", []string{"IRS:UI:aaaa0001"}},
		{"cancel", []string{"FX:DESK:bbbb0002"}},
		{"fx", []string{"FX:DESK:bbbb0002"}},
		{"live", []string{"IRS:UI:aaaa0001"}},
		{"ui:", []string{"IRS:UI:aaaa0001"}},
		{"  ", []string{"FX:DESK:bbbb0002", "IRS:UI:aaaa0001"}},
		{"nomatch", nil},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			res, err := eng.ListTrades(context.Background(), tc.query, 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Data) != len(tc.want) || res.TotalItems != len(tc.want) {
				t.Fatalf("got %d trades, want %d", len(res.Data), len(tc.want))
			}
			for i, ref := range tc.want {
				if res.Data[i].TradeRef != ref {
					t.Errorf("[%d] = %s, want %s", i, res.Data[i].TradeRef, ref)
				}
			}
		})
	}
}

func TestPagination(t *testing.T) {
	var events []event.Event
	for i := 0; i < 7; i++ {
		ref := fmt.Sprintf("CDS:UI:%08d", i)
		events = append(events, ev(ref+":BOOK", event.TypeBooked, time.Duration(i)*time.Second,
			fmt.Sprintf(`{"trade_ref":%q}`, ref)))
	}
	eng := seed(t, events...)

	tests := []struct {
		page, size   int
		wantLen      int
		wantPages    int
		wantFirstRef string
	}{
		{0, 3, 3, 3, "CDS:UI:00000006"},
		{1, 3, 3, 3, "CDS:UI:00000003"},
		{2, 3, 1, 3, "CDS:UI:00000000"},
		{3, 3, 0, 3, ""},
		{99, 3, 0, 3, ""},
		{0, 100, 7, 1, "CDS:UI:00000006"},
		{0, math.MaxInt, 7, 1, "CDS:UI:00000006"},
		{1, math.MaxInt, 0, 1, ""},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("page%d_size%d", tc.page, tc.size), func(t *testing.T) {
			res, err := eng.ListTrades(context.Background(), "", tc.page, tc.size)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Data) != tc.wantLen || res.TotalPages != tc.wantPages || res.TotalItems != 7 || res.CurrentPage != tc.page {
				t.Fatalf("got len=%d pages=%d items=%d page=%d", len(res.Data), res.TotalPages, res.TotalItems, res.CurrentPage)
			}
			if res.Data == nil {
				t.Error("data should be empty, not nil")
			}
			if tc.wantLen > 0 && res.Data[0].TradeRef != tc.wantFirstRef {
				t.Errorf("first = %s, want %s", res.Data[0].TradeRef, tc.wantFirstRef)
			}
		})
	}
}

func TestInvalidPagination(t *testing.T) {
	eng := seed(t)
	for _, tc := range []struct{ page, size int }{{-1, 10}, {0, 0}, {0, -5}} {
		if _, err := eng.ListTrades(context.Background(), "", tc.page, tc.size); !errors.Is(err, aggregate.ErrInvalidPagination) {
			t.Errorf("ListTrades(%d, %d) err = %v, want ErrInvalidPagination", tc.page, tc.size, err)
		}
	}
}

func TestEmptyStore(t *testing.T) {
	res, err := seed(t).ListTrades(context.Background(), "", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalItems != 0 || res.TotalPages != 0 || len(res.Data) != 0 || res.Data == nil {
		t.Errorf("res = %+v", res)
	}
}

func TestMalformedPayloadIsolated(t *testing.T) {
	eng := seed(t,
		ev("IRS:UI:aaaa0001:BOOK", event.TypeBooked, 0, `{not json`),
		ev("FX:UI:bbbb0002:BOOK", event.TypeBooked, time.Minute, `{"trade_ref":"FX:UI:bbbb0002","counterparty":"JPM","notional_amount":75.5}`),
	)
	res, err := eng.ListTrades(context.Background(), "", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data) != 2 {
		t.Fatalf("len = %d, want 2", len(res.Data))
	}
	bad := res.Data[1]
	if bad.TradeRef != "IRS:UI:aaaa0001" || bad.Counterparty != "UNKNOWN" || bad.Notional != 0 {
		t.Errorf("malformed trade = %+v", bad)
	}
	if good := res.Data[0]; good.Counterparty != "JPM" || good.Notional != 75.5 {
		t.Errorf("healthy trade = %+v", good)
	}
}

func TestTradeNotFound(t *testing.T) {
	if _, err := seed(t).Trade(context.Background(), "X:Y:Z"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetByID(t *testing.T) {
	e := ev("IRS:UI:aaaa0001:BOOK", event.TypeBooked, 0, `{}`)
	eng := seed(t, e)
	got, err := eng.GetByID(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || !got.EventTime.Equal(e.EventTime) {
		t.Errorf("got %+v", got)
	}
	if _, err := eng.GetByID(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
