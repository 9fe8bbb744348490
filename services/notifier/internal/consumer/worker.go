package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"orderstream/services/notifier/internal/queue"
)

// ErrDrop tells the worker the message can never succeed (malformed
// payload). It is acked and logged instead of retried.
var ErrDrop = errors.New("drop message")

type Handler func(ctx context.Context, msg queue.Message) error

// Worker drains the notification queue in bounded batches: an invocation
// fires as soon as a full batch is available or when the batching window
// elapses, whichever comes first. Messages in one batch are processed in
// receipt order; separate invocations may run concurrently against the
// shared queue.
type Worker struct {
	queue      queue.Queue
	handle     Handler
	logger     *slog.Logger
	batchSize  int
	window     time.Duration
	poll       time.Duration
	msgTimeout time.Duration
}

type Config struct {
	BatchSize      int
	Window         time.Duration
	Poll           time.Duration
	MessageTimeout time.Duration
}

func NewWorker(q queue.Queue, handle Handler, logger *slog.Logger, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 5 * time.Second
	}
	return &Worker{
		queue:      q,
		handle:     handle,
		logger:     logger,
		batchSize:  cfg.BatchSize,
		window:     cfg.Window,
		poll:       cfg.Poll,
		msgTimeout: cfg.MessageTimeout,
	}
}

func (w *Worker) Run(ctx context.Context) {
	pollTicker := time.NewTicker(w.poll)
	defer pollTicker.Stop()
	windowTimer := time.NewTimer(w.window)
	defer windowTimer.Stop()

	for {
		fire := false
		select {
		case <-ctx.Done():
			return
		case <-windowTimer.C:
			fire = true
		case <-pollTicker.C:
			n, err := w.queue.Pending(ctx)
			if err != nil {
				w.logger.Error("queue depth check failed", "err", err)
				continue
			}
			fire = n >= w.batchSize
		}
		if !fire {
			continue
		}

		for {
			n, err := w.DrainOnce(ctx)
			if err != nil {
				w.logger.Error("batch drain failed", "err", err)
				break
			}
			// Keep draining while full batches are waiting.
			if n < w.batchSize {
				break
			}
		}
		windowTimer.Reset(w.window)
	}
}

// DrainOnce is a single consumer invocation: it receives up to one batch and
// processes it in receipt order. A per-message deadline counts as a failure
// and feeds the same redelivery path as a handler error.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	msgs, err := w.queue.Receive(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	for _, msg := range msgs {
		msgCtx, cancel := context.WithTimeout(ctx, w.msgTimeout)
		err := w.handle(msgCtx, msg)
		cancel()

		switch {
		case err == nil:
			if err := w.queue.Ack(ctx, msg.ID); err != nil {
				w.logger.Error("ack failed", "err", err, "event_id", msg.EventID)
			}
		case errors.Is(err, ErrDrop):
			w.logger.Error("dropping unprocessable message", "event_id", msg.EventID, "receives", msg.ReceiveCount)
			if err := w.queue.Ack(ctx, msg.ID); err != nil {
				w.logger.Error("ack failed", "err", err, "event_id", msg.EventID)
			}
		default:
			w.logger.Error("message processing failed",
				"err", err,
				"event_id", msg.EventID,
				"receives", msg.ReceiveCount,
			)
			if err := w.queue.Nack(ctx, msg, err.Error()); err != nil {
				w.logger.Error("nack failed", "err", err, "event_id", msg.EventID)
			}
		}
	}
	return len(msgs), nil
}
