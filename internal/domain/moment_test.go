package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseMomentShapes(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	ts := time.Date(2024, 5, 10, 17, 45, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		kind     MomentKind
		expected string
	}{
		{name: "timestamp", value: ts, kind: MomentTimestamp, expected: "10/05/2024 14:45"},
		{name: "datetime with comma", value: "03/02/2024, 09:15:30", kind: MomentDateTime, expected: "03/02/2024 09:15"},
		{name: "datetime without comma", value: "03/02/2024 09:15", kind: MomentDateTime, expected: "03/02/2024 09:15"},
		{name: "date only", value: "25/12/2023", kind: MomentDate, expected: "25/12/2023 00:00"},
		{name: "datetime with prefix", value: "Pedido 12/03/2024, 10:30", kind: MomentDateTime, expected: "12/03/2024 10:30"},
		{name: "date with suffix", value: "12/03/2024 (retirada)", kind: MomentDate, expected: "12/03/2024 00:00"},
		{name: "iso fallback", value: "2024-01-31T08:00:00-03:00", kind: MomentGeneric, expected: "31/01/2024 08:00"},
		{name: "garbage", value: "ontem à tarde", kind: MomentInvalid, expected: InvalidMomentText},
		{name: "nil", value: nil, kind: MomentInvalid, expected: InvalidMomentText},
		{name: "empty", value: "  ", kind: MomentInvalid, expected: InvalidMomentText},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := ParseMomentIn(tc.value, loc)
			if m.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, m.Kind)
			}
			if got := m.Format(loc); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestParseMomentDayFirstIsNotLocaleParsed(t *testing.T) {
	m := ParseMomentIn("04/05/2024, 10:00", time.UTC)
	if m.Time.Month() != time.May || m.Time.Day() != 4 {
		t.Fatalf("expected 4 May, got %v", m.Time)
	}
}

func TestMomentValueRoundTrip(t *testing.T) {
	raw := "01/02/2024, 10:11:12"
	if got := ParseMoment(raw).Value(); got != raw {
		t.Fatalf("expected raw string preserved, got %#v", got)
	}
	ts := time.Date(2024, 2, 1, 10, 11, 12, 0, time.UTC)
	if got, ok := TimestampMoment(ts).Value().(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("expected timestamp preserved, got %#v", got)
	}
}

func TestOrderDateNowMatchesDateTimeShape(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 5, 0, time.UTC)
	m := OrderDateNow(now, time.UTC)
	if m.Kind != MomentDateTime {
		t.Fatalf("expected datetime kind, got %s", m.Kind)
	}
	if m.Raw != "01/07/2024, 12:00" {
		t.Fatalf("unexpected display date %q", m.Raw)
	}
}

func TestOrderShortID(t *testing.T) {
	if got := (Order{ID: "AbCdEfGhIj"}).ShortID(); got != "AbCdEf" {
		t.Fatalf("unexpected short id %q", got)
	}
	if got := (Order{ID: "abc"}).ShortID(); got != "abc" {
		t.Fatalf("unexpected short id %q", got)
	}
}

func TestStatusEntryActorLocalPart(t *testing.T) {
	if got := (StatusEntry{ChangedBy: "ana@shop.com"}).ActorLocalPart(); got != "ana" {
		t.Fatalf("unexpected local part %q", got)
	}
	if got := (StatusEntry{}).ActorLocalPart(); got != "" {
		t.Fatalf("expected empty local part, got %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	if d, ok := ParseAmount("20,5"); !ok || !d.Equal(decimal.RequireFromString("20.5")) {
		t.Fatalf("expected 20.5, got %v %v", d, ok)
	}
	if _, ok := ParseAmount(math.NaN()); ok {
		t.Fatalf("expected NaN to be rejected")
	}
	if !math.IsNaN(FloatPrice("abc")) {
		t.Fatalf("expected NaN for unparseable price")
	}
	if got := FormatMoney(decimal.NewFromFloat(37.5)); got != "37.50" {
		t.Fatalf("expected 37.50, got %s", got)
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"Entregue", "delivered", " ENTREGUE "} {
		status, ok := ParseOrderStatus(raw)
		if !ok || status != OrderStatusDelivered {
			t.Fatalf("expected delivered for %q, got %q", raw, status)
		}
	}
	if _, ok := ParseOrderStatus("cancelado"); ok {
		t.Fatalf("expected unknown status to be rejected")
	}
}
