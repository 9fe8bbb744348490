package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"orderstream/libs/event"
	"orderstream/libs/kafkax"
)

// Emitter publishes error-classified events on the audit bus. The bus is a
// separate topic from the order pipeline; a lost audit event never affects
// the mutation response, so emission is best effort with a short deadline.
type Emitter struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewEmitter(brokers string, topic string, logger *slog.Logger) *Emitter {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return &Emitter{logger: logger}
	}
	return &Emitter{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  list,
			Topic:    topic,
			Balancer: &kafka.Hash{},
		}),
		logger: logger,
	}
}

func (e *Emitter) Close() {
	if e.writer != nil {
		_ = e.writer.Close()
	}
}

func (e *Emitter) Emit(ctx context.Context, evt event.AuditEvent) {
	if e.writer == nil {
		return
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error("audit event marshal failed", "err", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.Source),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(evt.Source)},
			{Key: "detail_type", Value: []byte(evt.DetailType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(writeCtx, msg.Headers)
	if err := e.writer.WriteMessages(writeCtx, msg); err != nil {
		e.logger.Error("audit event publish failed", "err", err, "source", evt.Source)
	}
}
