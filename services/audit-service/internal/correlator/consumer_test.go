package correlator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orderstream/libs/event"
	"orderstream/services/audit-service/internal/archive"
	"orderstream/services/audit-service/internal/rules"
)

type flakyArchiver struct {
	mu       sync.Mutex
	failures int
	attempts int
	mem      *archive.Memory
}

func (a *flakyArchiver) Archive(ctx context.Context, e archive.Entry) error {
	a.mu.Lock()
	a.attempts++
	n := a.attempts
	a.mu.Unlock()
	if n <= a.failures {
		return errors.New("transient archive failure")
	}
	return a.mem.Archive(ctx, e)
}

func (a *flakyArchiver) attemptCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func newRetryConsumer(corr *Correlator) *Consumer {
	return &Consumer{
		correlator: corr,
		logger:     slog.New(slog.DiscardHandler),
		timeout:    time.Second,
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}
}

func TestHandleWithRetry_TransientFailureRetriesSameEvent(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	arch := &flakyArchiver{failures: 2, mem: archive.NewMemory()}
	rem := &remediatorCapture{}
	fup := &followupCapture{}
	c := newRetryConsumer(New(logger, rules.Default(), arch, rem, fup))

	ev := event.AuditEvent{
		Source:     event.SourceOrder,
		DetailType: event.DetailTypeOrder,
		Detail:     map[string]any{"reason": event.ReasonProductNotFound, "orderId": "ord-3"},
	}
	if err := c.handleWithRetry(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := arch.attemptCount(); got != 3 {
		t.Fatalf("archiver saw %d attempts, want 3 (2 failures then success)", got)
	}
	if len(arch.mem.Entries()) != 1 {
		t.Fatalf("archived %d entries, want 1", len(arch.mem.Entries()))
	}
	if len(rem.calls) != 1 {
		t.Fatalf("remediator called %d times, want 1", len(rem.calls))
	}
}

func TestHandleWithRetry_StopsOnlyWhenContextEnds(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	arch := &flakyArchiver{failures: 1 << 30, mem: archive.NewMemory()}
	c := newRetryConsumer(New(logger, rules.Default(), arch, &remediatorCapture{}, &followupCapture{}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ev := event.AuditEvent{
		Source:     event.SourceInvoice,
		DetailType: event.DetailTypeInvoice,
		Detail:     map[string]any{"errorDetail": event.ErrorInvoiceTimeout},
	}
	err := c.handleWithRetry(ctx, ev)
	if err == nil {
		t.Fatal("expected context error from a permanently failing archiver")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if got := arch.attemptCount(); got < 2 {
		t.Fatalf("archiver saw %d attempts, want at least 2", got)
	}
}
