package eventlog

import (
	"context"
	"log/slog"
	"time"

	"orderstream/libs/event"
	"orderstream/services/event-relay/internal/fanout"
)

// Appender persists log records. Appending an existing (PK, SK) pair
// replaces the row, mirroring a keyed put.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Writer is the unconditional subscriber: every published order event
// becomes one log record, keyed by write time. It performs no internal
// retry; a failed append surfaces to the router so the transport redelivers.
type Writer struct {
	log       Appender
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// DefaultRetention keeps the log short-lived and operational. Deployments
// that serve customer-facing history raise it via EVENT_LOG_TTL.
const DefaultRetention = 5 * time.Minute

func NewWriter(log Appender, logger *slog.Logger, retention time.Duration) *Writer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Writer{
		log:       log,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// WithClock fixes the writer's clock. Tests use it to force same-millisecond
// deliveries.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

func (w *Writer) Deliver(ctx context.Context, d fanout.Delivery) error {
	var oe event.OrderEvent
	if err := event.Unwrap(d.Envelope, &oe); err != nil {
		// Malformed payload cannot succeed on retry; drop it.
		w.logger.Error("dropping malformed order event", "err", err, "event_id", d.EventID)
		return nil
	}

	ts := w.now()
	millis := ts.UnixMilli()
	return w.log.Append(ctx, Record{
		PK:           PartitionKey(oe.OrderID),
		SK:           SortKey(d.Envelope.EventType, millis),
		ExpiresAt:    ts.Add(w.retention),
		Email:        oe.Email,
		CreatedAt:    millis,
		RequestID:    oe.RequestID,
		EventType:    d.Envelope.EventType,
		OrderID:      oe.OrderID,
		ProductCodes: oe.ProductCodes,
		DeliveryID:   d.EventID,
	})
}
