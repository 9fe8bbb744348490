package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"orderstream/libs/event"
	"orderstream/libs/kafkax"
)

// Publishes a synthetic audit event onto the audit bus so the correlator's
// rule routing can be exercised against a local broker.
func main() {
	var (
		brokers  = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "kafka brokers, comma separated")
		topic    = flag.String("topic", getenv("AUDIT_EVENTS_TOPIC", "audit.events.v1"), "audit bus topic")
		scenario = flag.String("scenario", "product-not-found", "one of: product-not-found, no-invoice-number, invoice-timeout, unmatched")
		orderID  = flag.String("order-id", "ord_sim_1", "order id carried in the detail")
	)
	flag.Parse()

	ev, err := buildEvent(*scenario, *orderID)
	if err != nil {
		fatal(err.Error())
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		fatal(err.Error())
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(kafkax.SplitBrokers(*brokers)...),
		Topic:    *topic,
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Source),
		Value: payload,
	}); err != nil {
		fatal(err.Error())
	}

	fmt.Printf("published scenario=%s source=%s detailType=%s\n", *scenario, ev.Source, ev.DetailType)
}

func buildEvent(scenario, orderID string) (event.AuditEvent, error) {
	switch scenario {
	case "product-not-found":
		return event.AuditEvent{
			Source:     event.SourceOrder,
			DetailType: event.DetailTypeOrder,
			Detail: map[string]any{
				"reason":  event.ReasonProductNotFound,
				"orderId": orderID,
			},
		}, nil
	case "no-invoice-number":
		return event.AuditEvent{
			Source:     event.SourceInvoice,
			DetailType: event.DetailTypeInvoice,
			Detail: map[string]any{
				"errorDetail": event.ErrorNoInvoiceNumber,
				"orderId":     orderID,
			},
		}, nil
	case "invoice-timeout":
		return event.AuditEvent{
			Source:     event.SourceInvoice,
			DetailType: event.DetailTypeInvoice,
			Detail: map[string]any{
				"errorDetail": event.ErrorInvoiceTimeout,
				"orderId":     orderID,
			},
		}, nil
	case "unmatched":
		return event.AuditEvent{
			Source:     "app.shipping",
			DetailType: "shipment",
			Detail: map[string]any{
				"status":  "LOST",
				"orderId": orderID,
			},
		}, nil
	default:
		return event.AuditEvent{}, fmt.Errorf("unknown scenario %q", scenario)
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
