package billing

import (
	"context"
	"log/slog"
	"math"

	"orderstream/libs/event"
	"orderstream/services/event-relay/internal/fanout"
)

// Charge is the billing side effect of one ORDER_CREATED event.
type Charge struct {
	OrderID    string
	Email      string
	Amount     float64
	Provider   string
	ProviderID string
}

type Recorder interface {
	RecordCharge(ctx context.Context, c Charge) error
}

// Charger collects payment with an external provider and returns the
// provider's reference id.
type Charger interface {
	Provider() string
	Charge(ctx context.Context, orderID, email string, amountCents int64) (string, error)
}

// Trigger is the filtered billing subscriber. The router only routes
// ORDER_CREATED here; the trigger itself performs no type checks beyond
// payload decoding.
type Trigger struct {
	charges Recorder
	charger Charger
	logger  *slog.Logger
}

func NewTrigger(charges Recorder, charger Charger, logger *slog.Logger) *Trigger {
	return &Trigger{charges: charges, charger: charger, logger: logger}
}

func (t *Trigger) Deliver(ctx context.Context, d fanout.Delivery) error {
	var oe event.OrderEvent
	if err := event.Unwrap(d.Envelope, &oe); err != nil {
		t.logger.Error("dropping malformed billing event", "err", err, "event_id", d.EventID)
		return nil
	}

	cents := int64(math.Round(oe.Billing.TotalPrice * 100))
	providerID, err := t.charger.Charge(ctx, oe.OrderID, oe.Email, cents)
	if err != nil {
		return err
	}

	return t.charges.RecordCharge(ctx, Charge{
		OrderID:    oe.OrderID,
		Email:      oe.Email,
		Amount:     oe.Billing.TotalPrice,
		Provider:   t.charger.Provider(),
		ProviderID: providerID,
	})
}
