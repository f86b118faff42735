package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEventDecodeSalesDataChanged(t *testing.T) {
	evt := Event{
		Type:    EventTypeSalesDataChanged,
		Payload: json.RawMessage(`{"storeId":7,"year":2024,"month":5,"data":{"netSales":1200},"actorId":"u-1"}`),
	}
	decoded, err := evt.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sales, ok := decoded.(*SalesDataChanged)
	if !ok {
		t.Fatalf("unexpected type %T", decoded)
	}
	if sales.StoreID != 7 || sales.Period() != "2024-05" {
		t.Fatalf("unexpected decode: %#v period=%s", sales, sales.Period())
	}
}

func TestEventDecodeRejectsUnknownType(t *testing.T) {
	_, err := Event{Type: "inventory.changed", Payload: json.RawMessage(`{}`)}.Decode()
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent got %v", err)
	}
}

func TestEventDecodeValidates(t *testing.T) {
	cases := map[string]Event{
		"empty payload":      {Type: EventTypeStoreStatusChanged},
		"bad json":           {Type: EventTypeStoreStatusChanged, Payload: json.RawMessage(`{`)},
		"missing store":      {Type: EventTypeStoreStatusChanged, Payload: json.RawMessage(`{"status":"closed"}`)},
		"bad month":          {Type: EventTypeSalesDataChanged, Payload: json.RawMessage(`{"storeId":1,"year":2024,"month":13}`)},
		"empty batch":        {Type: EventTypeBatchSalesUpdated, Payload: json.RawMessage(`{"results":[]}`)},
		"export without url": {Type: EventTypeExportCompleted, Payload: json.RawMessage(`{"userId":"u"}`)},
		"inverted window":    {Type: EventTypeMaintenanceScheduled, Payload: json.RawMessage(`{"startsAt":"2024-05-02T00:00:00Z","endsAt":"2024-05-01T00:00:00Z"}`)},
	}
	for name, evt := range cases {
		if _, err := evt.Decode(); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent got %v", name, err)
		}
	}
}

func TestSalesDataChangedPeriodPrefersDate(t *testing.T) {
	evt := SalesDataChanged{StoreID: 1, Year: 2024, Month: 5, Date: "2024-05-17"}
	if evt.Period() != "2024-05-17" {
		t.Fatalf("unexpected period %s", evt.Period())
	}
}

func TestEnvelopeStampedUsesUTC(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, loc)
	msg := NewDataMessage(EventWelcome, map[string]string{"k": "v"}).Stamped(at)
	if msg.Timestamp.Location() != time.UTC || !msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected timestamp %v", msg.Timestamp)
	}
	if msg.Type != MessageData || msg.Event != EventWelcome {
		t.Fatalf("unexpected envelope %#v", msg)
	}
}
