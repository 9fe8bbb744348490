package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderstream/libs/event"
	"orderstream/libs/kafkax"
	"orderstream/services/event-relay/internal/fanout"
)

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Consumer reads the order-event topic and feeds each envelope through the
// fan-out router. An envelope never commits, and the loop never fetches
// past it, until dispatch reports success: a failing sink blocks its
// partition and the dispatch retries in place, so every sink sees the
// envelope at least once even across restarts.
type Consumer struct {
	reader *kafka.Reader
	router *fanout.Router
	logger *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, router *fanout.Router, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:     reader,
		router:     router,
		logger:     logger,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("relay").Start(ctxMsg, "fanout.dispatch",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractDelivery(msg)

		var env event.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// A structurally invalid envelope cannot succeed on retry:
			// log, commit, move on.
			c.logger.Error("dropping malformed envelope", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			span.End()
			c.commit(ctx, msg)
			continue
		}

		err = c.dispatchWithRetry(ctxSpan, fanout.Delivery{Envelope: env, EventID: meta.EventID})
		if err != nil {
			// Only a canceled context gets here; the offset stays
			// uncommitted and the group redelivers after restart.
			span.RecordError(err)
			span.End()
			return
		}
		span.End()
		c.commit(ctx, msg)
	}
}

// dispatchWithRetry retries the same delivery until it succeeds or ctx is
// canceled. The reader's session cursor advances on fetch regardless of
// commits, so skipping a failed message would seal its offset as soon as a
// later one commits; retrying in place is the only path that keeps the
// failed envelope deliverable.
func (c *Consumer) dispatchWithRetry(ctx context.Context, d fanout.Delivery) error {
	backoff := c.minBackoff
	for {
		err := c.router.Dispatch(ctx, d)
		if err == nil {
			return nil
		}
		c.logger.Error("dispatch failed, retrying in place",
			"err", err, "event_id", d.EventID, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("offset commit failed", "err", err)
	}
}
