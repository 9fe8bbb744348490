package eventlog

import (
	"fmt"
	"time"
)

// Record is one append-only row of the durable order-event log.
//
// PK groups all events for one order; SK is derived from the event type and
// the consumer's write time in milliseconds. Because the key depends on the
// write clock and not a stable event identifier, a redelivered envelope
// lands as an additional row unless both writes fall in the same
// millisecond, in which case the keys collide and the second write replaces
// the first. Both outcomes are accepted behavior; DeliveryID keeps the
// stable publish-time id around for forensics.
type Record struct {
	PK           string
	SK           string
	ExpiresAt    time.Time
	Email        string
	CreatedAt    int64 // write time, epoch millis
	RequestID    string
	EventType    string
	OrderID      string
	ProductCodes []string
	DeliveryID   string
}

func PartitionKey(orderID string) string {
	return "#order_" + orderID
}

func SortKey(eventType string, writeMillis int64) string {
	return fmt.Sprintf("%s#%d", eventType, writeMillis)
}
