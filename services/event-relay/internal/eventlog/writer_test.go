package eventlog

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"orderstream/libs/event"
	"orderstream/services/event-relay/internal/fanout"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func orderDelivery(t *testing.T, eventType string) fanout.Delivery {
	t.Helper()
	env, err := event.Wrap(eventType, event.OrderEvent{
		Email:        "a@b.com",
		OrderID:      "o-1",
		RequestID:    "req-1",
		ProductCodes: []string{"P1", "P2"},
	})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	return fanout.Delivery{Envelope: env, EventID: "evt-1"}
}

func TestDeliver_RecordShape(t *testing.T) {
	mem := NewMemory()
	at := time.UnixMilli(1700000000123)
	w := NewWriter(mem, discardLogger(), 0).WithClock(func() time.Time { return at })

	if err := w.Deliver(context.Background(), orderDelivery(t, event.TypeOrderCreated)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	recs := mem.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.PK != "#order_o-1" {
		t.Fatalf("wrong pk %q", rec.PK)
	}
	if rec.SK != "ORDER_CREATED#1700000000123" {
		t.Fatalf("wrong sk %q", rec.SK)
	}
	if !rec.ExpiresAt.Equal(at.Add(5 * time.Minute)) {
		t.Fatalf("expected default 300s retention, got expiry %v for write %v", rec.ExpiresAt, at)
	}
	if rec.CreatedAt != 1700000000123 {
		t.Fatalf("createdAt must be write time, got %d", rec.CreatedAt)
	}
	if rec.Email != "a@b.com" || rec.RequestID != "req-1" || rec.DeliveryID != "evt-1" {
		t.Fatalf("attributes wrong: %+v", rec)
	}
	if len(rec.ProductCodes) != 2 {
		t.Fatalf("product codes wrong: %v", rec.ProductCodes)
	}
}

// Keys derive from the consumer's write clock, so redelivering the same
// envelope normally produces an extra row, while two deliveries inside the
// same millisecond collide on the sort key and collapse into one. This test
// documents both outcomes rather than "fixing" either.
func TestDeliver_RedeliveryKeyBehavior(t *testing.T) {
	mem := NewMemory()
	at := time.UnixMilli(1700000000123)
	clock := func() time.Time { return at }
	w := NewWriter(mem, discardLogger(), 0).WithClock(clock)
	d := orderDelivery(t, event.TypeOrderCreated)

	// Same millisecond: sort keys collide, second write replaces the first.
	if err := w.Deliver(context.Background(), d); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := w.Deliver(context.Background(), d); err != nil {
		t.Fatalf("same-millisecond redelivery: %v", err)
	}
	if got := len(mem.ByPartition("#order_o-1")); got != 1 {
		t.Fatalf("same-millisecond deliveries must collide into 1 row, got %d", got)
	}

	// Later millisecond: the duplicate lands as an additional row.
	at = at.Add(2 * time.Millisecond)
	if err := w.Deliver(context.Background(), d); err != nil {
		t.Fatalf("later redelivery: %v", err)
	}
	recs := mem.ByPartition("#order_o-1")
	if len(recs) != 2 {
		t.Fatalf("redelivery in a later millisecond must add a row, got %d rows", len(recs))
	}
	if recs[0].SK == recs[1].SK {
		t.Fatalf("expected distinct sort keys, both are %q", recs[0].SK)
	}
	for _, rec := range recs {
		if rec.DeliveryID != "evt-1" {
			t.Fatalf("duplicate rows should share the stable delivery id, got %q", rec.DeliveryID)
		}
	}
}

func TestDeliver_ConfigurableRetention(t *testing.T) {
	mem := NewMemory()
	at := time.UnixMilli(1700000000000)
	w := NewWriter(mem, discardLogger(), time.Hour).WithClock(func() time.Time { return at })

	if err := w.Deliver(context.Background(), orderDelivery(t, event.TypeOrderDeleted)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	rec := mem.Records()[0]
	if !strings.HasPrefix(rec.SK, "ORDER_DELETED#") {
		t.Fatalf("wrong sk prefix %q", rec.SK)
	}
	if !rec.ExpiresAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("retention not applied: %v", rec.ExpiresAt)
	}
}

func TestDeliver_MalformedPayloadDropped(t *testing.T) {
	mem := NewMemory()
	w := NewWriter(mem, discardLogger(), 0)

	d := fanout.Delivery{
		Envelope: event.Envelope{EventType: event.TypeOrderCreated, Data: "{broken"},
		EventID:  "evt-bad",
	}
	// Malformed envelopes are dropped, not retried: the writer must not
	// return an error that would trigger redelivery.
	if err := w.Deliver(context.Background(), d); err != nil {
		t.Fatalf("malformed payload must be dropped without error, got %v", err)
	}
	if len(mem.Records()) != 0 {
		t.Fatal("malformed payload must not produce a record")
	}
}
