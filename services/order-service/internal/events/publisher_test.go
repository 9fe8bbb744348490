package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"

	"orderstream/libs/event"
	"orderstream/services/order-service/internal/outbox"
	"orderstream/services/order-service/internal/storage"
)

type captureInserter struct {
	events []outbox.Event
}

func (c *captureInserter) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	c.events = append(c.events, evt)
	return nil
}

func testOrder() storage.Order {
	return storage.Order{
		Email:   "a@b.com",
		OrderID: "o-1",
		Products: []storage.OrderProduct{
			{Code: "P1", Price: 10},
			{Code: "P2", Price: 20.5},
		},
		Payment:         "CASH",
		TotalPrice:      30.5,
		ShippingType:    "ECONOMIC",
		ShippingCarrier: "FEDEX",
	}
}

func TestPublish_ExactlyOneEnvelope(t *testing.T) {
	sink := &captureInserter{}
	p := NewPublisher(sink)

	if err := p.Publish(context.Background(), nil, event.TypeOrderCreated, testOrder(), "req-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one pending event, got %d", len(sink.events))
	}

	evt := sink.events[0]
	if evt.AggregateID != "o-1" || evt.EventType != event.TypeOrderCreated {
		t.Fatalf("unexpected outbox event: %+v", evt)
	}

	var env event.Envelope
	if err := json.Unmarshal(evt.Payload, &env); err != nil {
		t.Fatalf("payload is not an envelope: %v", err)
	}
	if env.EventType != event.TypeOrderCreated {
		t.Fatalf("unexpected envelope type %q", env.EventType)
	}

	var oe event.OrderEvent
	if err := event.Unwrap(env, &oe); err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	if oe.OrderID != "o-1" || oe.Email != "a@b.com" || oe.RequestID != "req-1" {
		t.Fatalf("order event fields wrong: %+v", oe)
	}
	if len(oe.ProductCodes) != 2 || oe.ProductCodes[0] != "P1" || oe.ProductCodes[1] != "P2" {
		t.Fatalf("product codes wrong: %v", oe.ProductCodes)
	}
	if oe.Billing.TotalPrice != 30.5 || oe.Billing.Payment != "CASH" {
		t.Fatalf("billing wrong: %+v", oe.Billing)
	}
	if oe.Shipping.Type != "ECONOMIC" || oe.Shipping.Carrier != "FEDEX" {
		t.Fatalf("shipping wrong: %+v", oe.Shipping)
	}
}

func TestPublish_DeleteEvent(t *testing.T) {
	sink := &captureInserter{}
	p := NewPublisher(sink)

	if err := p.Publish(context.Background(), nil, event.TypeOrderDeleted, testOrder(), "req-2"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var env event.Envelope
	if err := json.Unmarshal(sink.events[0].Payload, &env); err != nil {
		t.Fatalf("payload is not an envelope: %v", err)
	}
	if env.EventType != event.TypeOrderDeleted {
		t.Fatalf("expected ORDER_DELETED, got %q", env.EventType)
	}
}
