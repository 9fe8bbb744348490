package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderstream/libs/event"
)

// Delivery is one arrival of a published envelope. EventID is the stable id
// assigned at publish time; it does not change when the transport redelivers.
type Delivery struct {
	Envelope event.Envelope
	EventID  string
}

// Sink consumes deliveries. Returning an error tells the router the sink
// wants the transport to redeliver; sinks therefore see at-least-once and
// must tolerate duplicates.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Subscription pairs a sink with an optional event-type filter. A nil Filter
// receives every event.
type Subscription struct {
	Name   string
	Filter func(eventType string) bool
	Sink   Sink
}

// TypeFilter builds an allow-list filter.
func TypeFilter(types ...string) func(string) bool {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(eventType string) bool {
		_, ok := allowed[eventType]
		return ok
	}
}

// Router broadcasts each delivery to every subscription whose filter accepts
// the envelope's event type. Sinks are invoked independently: one sink
// failing or timing out never stops delivery to its siblings, and no
// ordering across sinks is guaranteed.
type Router struct {
	subs        []Subscription
	logger      *slog.Logger
	sinkTimeout time.Duration
}

func NewRouter(logger *slog.Logger, sinkTimeout time.Duration) *Router {
	if sinkTimeout <= 0 {
		sinkTimeout = 5 * time.Second
	}
	return &Router{logger: logger, sinkTimeout: sinkTimeout}
}

func (r *Router) Subscribe(s Subscription) {
	r.subs = append(r.subs, s)
}

// Dispatch delivers d to all matching sinks. The returned error aggregates
// per-sink failures; a non-nil result means at least one sink wants the
// whole delivery retried, and sinks that already succeeded will see the
// duplicate.
func (r *Router) Dispatch(ctx context.Context, d Delivery) error {
	var failures []error
	for _, sub := range r.subs {
		if sub.Filter != nil && !sub.Filter(d.Envelope.EventType) {
			continue
		}

		sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
		err := sub.Sink.Deliver(sinkCtx, d)
		cancel()
		if err != nil {
			r.logger.Error("sink delivery failed",
				"sink", sub.Name,
				"event_id", d.EventID,
				"event_type", d.Envelope.EventType,
				"err", err,
			)
			failures = append(failures, fmt.Errorf("%s: %w", sub.Name, err))
		}
	}
	return errors.Join(failures...)
}
