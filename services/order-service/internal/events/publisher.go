package events

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"orderstream/libs/event"
	"orderstream/services/order-service/internal/outbox"
	"orderstream/services/order-service/internal/storage"
)

type outboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Publisher turns a completed order mutation into exactly one Envelope on
// the order-event topic. The pending row is inserted inside the mutation's
// own transaction; emission itself happens asynchronously in the outbox
// dispatcher, so a publish failure never has to be rolled back against the
// mutation.
type Publisher struct {
	outbox outboxInserter
}

func NewPublisher(outboxRepo outboxInserter) *Publisher {
	return &Publisher{outbox: outboxRepo}
}

func (p *Publisher) Publish(ctx context.Context, tx pgx.Tx, eventType string, o storage.Order, requestID string) error {
	env, err := event.Wrap(eventType, event.OrderEvent{
		Email:        o.Email,
		OrderID:      o.OrderID,
		RequestID:    requestID,
		ProductCodes: o.ProductCodes(),
		Billing: event.OrderBilling{
			Payment:    o.Payment,
			TotalPrice: o.TotalPrice,
		},
		Shipping: event.OrderShipping{
			Type:    o.ShippingType,
			Carrier: o.ShippingCarrier,
		},
	})
	if err != nil {
		return err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "order",
		AggregateID:   o.OrderID,
		EventType:     eventType,
		Payload:       payload,
	})
}
