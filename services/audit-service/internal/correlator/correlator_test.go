package correlator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"orderstream/libs/event"
	"orderstream/services/audit-service/internal/archive"
	"orderstream/services/audit-service/internal/rules"
)

type remediatorCapture struct {
	mu    sync.Mutex
	calls []struct {
		Rule string
		Ev   event.AuditEvent
	}
	err error
}

func (r *remediatorCapture) Remediate(_ context.Context, rule rules.Rule, ev event.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		Rule string
		Ev   event.AuditEvent
	}{rule.Name, ev})
	return r.err
}

type followupCapture struct {
	mu    sync.Mutex
	calls []struct {
		Rule string
		Ev   event.AuditEvent
	}
}

func (f *followupCapture) Enqueue(_ context.Context, ev event.AuditEvent, rule string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		Rule string
		Ev   event.AuditEvent
	}{rule, ev})
	return nil
}

type failingArchiver struct{ err error }

func (a failingArchiver) Archive(context.Context, archive.Entry) error { return a.err }

func newCorrelator(t *testing.T) (*Correlator, *archive.Memory, *remediatorCapture, *followupCapture) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	arch := archive.NewMemory()
	rem := &remediatorCapture{}
	fup := &followupCapture{}
	return New(logger, rules.Default(), arch, rem, fup), arch, rem, fup
}

func TestHandle_MatchedRemediationRule(t *testing.T) {
	c, arch, rem, fup := newCorrelator(t)

	ev := event.AuditEvent{
		Source:     event.SourceOrder,
		DetailType: event.DetailTypeOrder,
		Detail:     map[string]any{"reason": event.ReasonProductNotFound, "orderId": "ord-9"},
	}
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	entries := arch.Entries()
	if len(entries) != 1 {
		t.Fatalf("archived %d entries, want 1", len(entries))
	}
	if entries[0].MatchedRule != "order-product-not-found" {
		t.Fatalf("archived rule %q, want order-product-not-found", entries[0].MatchedRule)
	}
	if len(rem.calls) != 1 || rem.calls[0].Rule != "order-product-not-found" {
		t.Fatalf("remediator calls = %+v, want one for order-product-not-found", rem.calls)
	}
	if len(fup.calls) != 0 {
		t.Fatalf("followup queue got %d entries, want 0", len(fup.calls))
	}
}

func TestHandle_MatchedFollowupRule(t *testing.T) {
	c, arch, rem, fup := newCorrelator(t)

	ev := event.AuditEvent{
		Source:     event.SourceInvoice,
		DetailType: event.DetailTypeInvoice,
		Detail:     map[string]any{"errorDetail": event.ErrorInvoiceTimeout, "invoiceId": "inv-4"},
	}
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(fup.calls) != 1 || fup.calls[0].Rule != "invoice-timeout" {
		t.Fatalf("followup calls = %+v, want one for invoice-timeout", fup.calls)
	}
	if len(rem.calls) != 0 {
		t.Fatalf("remediator called %d times, want 0", len(rem.calls))
	}
	entries := arch.Entries()
	if len(entries) != 1 || entries[0].MatchedRule != "invoice-timeout" {
		t.Fatalf("archive entries = %+v, want one with invoice-timeout", entries)
	}
}

func TestHandle_UnmatchedEventArchivedOnly(t *testing.T) {
	c, arch, rem, fup := newCorrelator(t)

	ev := event.AuditEvent{
		Source:     "app.shipping",
		DetailType: "shipment",
		Detail:     map[string]any{"status": "LOST"},
	}
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	entries := arch.Entries()
	if len(entries) != 1 {
		t.Fatalf("archived %d entries, want 1", len(entries))
	}
	if entries[0].MatchedRule != "" {
		t.Fatalf("unmatched event archived with rule %q, want empty", entries[0].MatchedRule)
	}
	if len(rem.calls) != 0 || len(fup.calls) != 0 {
		t.Fatalf("unmatched event was routed: remediate=%d followup=%d", len(rem.calls), len(fup.calls))
	}
}

func TestHandle_ArchiveFailureReturnsError(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	rem := &remediatorCapture{}
	fup := &followupCapture{}
	c := New(logger, rules.Default(), failingArchiver{err: errors.New("db down")}, rem, fup)

	ev := event.AuditEvent{
		Source:     event.SourceOrder,
		DetailType: event.DetailTypeOrder,
		Detail:     map[string]any{"reason": event.ReasonProductNotFound},
	}
	if err := c.Handle(context.Background(), ev); err == nil {
		t.Fatal("expected error when archive fails")
	}
	if len(rem.calls) != 0 {
		t.Fatalf("event routed despite archive failure")
	}
}

func TestHandle_RemediationFailureReturnsError(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	arch := archive.NewMemory()
	rem := &remediatorCapture{err: errors.New("handler down")}
	fup := &followupCapture{}
	c := New(logger, rules.Default(), arch, rem, fup)

	ev := event.AuditEvent{
		Source:     event.SourceOrder,
		DetailType: event.DetailTypeOrder,
		Detail:     map[string]any{"reason": event.ReasonProductNotFound},
	}
	if err := c.Handle(context.Background(), ev); err == nil {
		t.Fatal("expected error when remediation fails")
	}
	// Archive still happened before the route.
	if len(arch.Entries()) != 1 {
		t.Fatalf("archived %d entries, want 1", len(arch.Entries()))
	}
}
