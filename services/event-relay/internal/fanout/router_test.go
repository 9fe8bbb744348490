package fanout

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"orderstream/libs/event"
)

type recordingSink struct {
	deliveries []Delivery
	err        error
}

func (s *recordingSink) Deliver(_ context.Context, d Delivery) error {
	s.deliveries = append(s.deliveries, d)
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func createdDelivery() Delivery {
	env, _ := event.Wrap(event.TypeOrderCreated, event.OrderEvent{OrderID: "o-1"})
	return Delivery{Envelope: env, EventID: "evt-1"}
}

func deletedDelivery() Delivery {
	env, _ := event.Wrap(event.TypeOrderDeleted, event.OrderEvent{OrderID: "o-1"})
	return Delivery{Envelope: env, EventID: "evt-2"}
}

func TestDispatch_UnfilteredSinkReceivesEverything(t *testing.T) {
	r := NewRouter(discardLogger(), 0)
	all := &recordingSink{}
	r.Subscribe(Subscription{Name: "log", Sink: all})

	if err := r.Dispatch(context.Background(), createdDelivery()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := r.Dispatch(context.Background(), deletedDelivery()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(all.deliveries) != 2 {
		t.Fatalf("unfiltered sink should see both events, saw %d", len(all.deliveries))
	}
}

func TestDispatch_FilteredSinksSkipDeletes(t *testing.T) {
	r := NewRouter(discardLogger(), 0)
	log := &recordingSink{}
	billing := &recordingSink{}
	notify := &recordingSink{}
	r.Subscribe(Subscription{Name: "eventlog", Sink: log})
	r.Subscribe(Subscription{Name: "billing", Filter: TypeFilter(event.TypeOrderCreated), Sink: billing})
	r.Subscribe(Subscription{Name: "notify", Filter: TypeFilter(event.TypeOrderCreated), Sink: notify})

	if err := r.Dispatch(context.Background(), deletedDelivery()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(log.deliveries) != 1 {
		t.Fatalf("log writer must receive ORDER_DELETED, got %d deliveries", len(log.deliveries))
	}
	if len(billing.deliveries) != 0 || len(notify.deliveries) != 0 {
		t.Fatalf("filtered sinks must not see ORDER_DELETED (billing=%d notify=%d)",
			len(billing.deliveries), len(notify.deliveries))
	}
}

func TestDispatch_SinkFailureIsIsolated(t *testing.T) {
	r := NewRouter(discardLogger(), 0)
	failing := &recordingSink{err: errors.New("boom")}
	healthy := &recordingSink{}
	r.Subscribe(Subscription{Name: "failing", Sink: failing})
	r.Subscribe(Subscription{Name: "healthy", Sink: healthy})

	err := r.Dispatch(context.Background(), createdDelivery())
	if err == nil {
		t.Fatal("expected aggregated error from failing sink")
	}
	if len(healthy.deliveries) != 1 {
		t.Fatal("healthy sink must still be invoked when a sibling fails")
	}
}

func TestTypeFilter(t *testing.T) {
	f := TypeFilter(event.TypeOrderCreated)
	if !f(event.TypeOrderCreated) {
		t.Fatal("expected ORDER_CREATED to pass")
	}
	if f(event.TypeOrderDeleted) {
		t.Fatal("expected ORDER_DELETED to be filtered out")
	}
}
