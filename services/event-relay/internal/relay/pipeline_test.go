package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"orderstream/libs/event"
	"orderstream/services/event-relay/internal/billing"
	"orderstream/services/event-relay/internal/eventlog"
	"orderstream/services/event-relay/internal/fanout"
	"orderstream/services/event-relay/internal/notifyq"
)

type chargeRecorder struct {
	charges []billing.Charge
}

func (c *chargeRecorder) RecordCharge(_ context.Context, charge billing.Charge) error {
	c.charges = append(c.charges, charge)
	return nil
}

type queueCapture struct {
	payloads [][]byte
}

func (q *queueCapture) Enqueue(_ context.Context, _, _ string, payload []byte) error {
	q.payloads = append(q.payloads, payload)
	return nil
}

type pipeline struct {
	router  *fanout.Router
	log     *eventlog.Memory
	charges *chargeRecorder
	queue   *queueCapture
	writeAt time.Time
}

// newPipeline wires the three production sinks behind the router exactly as
// the relay main does, with in-memory stores.
func newPipeline() *pipeline {
	logger := slog.New(slog.DiscardHandler)
	p := &pipeline{
		log:     eventlog.NewMemory(),
		charges: &chargeRecorder{},
		queue:   &queueCapture{},
		writeAt: time.UnixMilli(1700000000123),
	}

	writer := eventlog.NewWriter(p.log, logger, 0).WithClock(func() time.Time { return p.writeAt })

	p.router = fanout.NewRouter(logger, 0)
	p.router.Subscribe(fanout.Subscription{Name: "eventlog", Sink: writer})
	p.router.Subscribe(fanout.Subscription{
		Name:   "billing",
		Filter: fanout.TypeFilter(event.TypeOrderCreated),
		Sink:   billing.NewTrigger(p.charges, billing.NoopCharger{}, logger),
	})
	p.router.Subscribe(fanout.Subscription{
		Name:   "notify",
		Filter: fanout.TypeFilter(event.TypeOrderCreated),
		Sink:   notifyq.NewEnqueuer(p.queue),
	})
	return p
}

func orderEnvelope(t *testing.T, eventType string) event.Envelope {
	t.Helper()
	env, err := event.Wrap(eventType, event.OrderEvent{
		Email:        "a@b.com",
		OrderID:      "o-1",
		RequestID:    "req-1",
		ProductCodes: []string{"P1", "P2"},
		Billing:      event.OrderBilling{Payment: "CASH", TotalPrice: 30.5},
		Shipping:     event.OrderShipping{Type: "ECONOMIC", Carrier: "FEDEX"},
	})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	return env
}

func TestPipeline_OrderCreated(t *testing.T) {
	p := newPipeline()

	err := p.router.Dispatch(context.Background(), fanout.Delivery{
		Envelope: orderEnvelope(t, event.TypeOrderCreated),
		EventID:  "evt-1",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	recs := p.log.ByPartition("#order_o-1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.SK != "ORDER_CREATED#1700000000123" {
		t.Fatalf("wrong sk %q", rec.SK)
	}
	if !rec.ExpiresAt.Equal(p.writeAt.Add(5 * time.Minute)) {
		t.Fatalf("wrong expiry %v", rec.ExpiresAt)
	}

	if len(p.charges.charges) != 1 {
		t.Fatalf("billing must be invoked once, got %d", len(p.charges.charges))
	}
	if p.charges.charges[0].Amount != 30.5 || p.charges.charges[0].OrderID != "o-1" {
		t.Fatalf("wrong charge %+v", p.charges.charges[0])
	}

	if len(p.queue.payloads) != 1 {
		t.Fatalf("notifier must enqueue exactly one message, got %d", len(p.queue.payloads))
	}
	var env event.Envelope
	if err := json.Unmarshal(p.queue.payloads[0], &env); err != nil {
		t.Fatalf("queued payload is not an envelope: %v", err)
	}
	if env.EventType != event.TypeOrderCreated {
		t.Fatalf("queued envelope has type %q", env.EventType)
	}
}

func TestPipeline_OrderDeleted(t *testing.T) {
	p := newPipeline()

	err := p.router.Dispatch(context.Background(), fanout.Delivery{
		Envelope: orderEnvelope(t, event.TypeOrderDeleted),
		EventID:  "evt-2",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	recs := p.log.ByPartition("#order_o-1")
	if len(recs) != 1 || !strings.HasPrefix(recs[0].SK, "ORDER_DELETED#") {
		t.Fatalf("log writer must record the delete, got %+v", recs)
	}
	if len(p.charges.charges) != 0 {
		t.Fatal("billing must not be invoked for ORDER_DELETED")
	}
	if len(p.queue.payloads) != 0 {
		t.Fatal("notifier must not be invoked for ORDER_DELETED")
	}
}
