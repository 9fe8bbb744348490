package correlator

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
)

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Consumer reads the audit bus topic and feeds each event through the
// correlator. An event never commits, and the loop never fetches past it,
// until Handle succeeds: a failed archive or route blocks the partition and
// the handle retries in place, each attempt under its own deadline.
type Consumer struct {
	reader     *kafka.Reader
	correlator *Correlator
	logger     *slog.Logger
	timeout    time.Duration

	minBackoff time.Duration
	maxBackoff time.Duration
}

type Config struct {
	Brokers       string
	GroupID       string
	Topic         string
	HandleTimeout time.Duration
}

func NewConsumer(logger *slog.Logger, c *Correlator, cfg Config) *Consumer {
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 5 * time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:     reader,
		correlator: c,
		logger:     logger,
		timeout:    cfg.HandleTimeout,
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
		ctxSpan, span := otel.Tracer("correlator").Start(ctxMsg, "audit.correlate",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		var ev event.AuditEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Error("dropping malformed audit event", "err", err)
			span.RecordError(err)
			span.End()
			c.commit(ctx, msg)
			continue
		}

		if err := c.handleWithRetry(ctxSpan, ev); err != nil {
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

// handleWithRetry retries the same event until the correlator accepts it or
// ctx is canceled. The reader's session cursor advances on fetch regardless
// of commits, so skipping a failed event would seal its offset as soon as a
// later one commits; retrying in place keeps it deliverable.
func (c *Consumer) handleWithRetry(ctx context.Context, ev event.AuditEvent) error {
	backoff := c.minBackoff
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.correlator.Handle(attemptCtx, ev)
		cancel()
		if err == nil {
			return nil
		}
		c.logger.Error("correlate failed, retrying in place",
			"err", err, "source", ev.Source, "detail_type", ev.DetailType, "backoff", backoff)

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
