package queue

import "context"

// Message is one in-flight copy of an envelope. ReceiveCount is the only
// field the queue ever mutates; the payload is opaque to it.
type Message struct {
	ID           int64
	EventID      string
	EventType    string
	Payload      []byte
	ReceiveCount int
}

// Queue is the durable notification queue. A received message is invisible
// to other consumers until acked, nacked, or its visibility timeout lapses.
// Nack applies the dead-letter policy: a message that has exhausted its
// receives moves to the dead-letter store instead of becoming visible again.
type Queue interface {
	Receive(ctx context.Context, max int) ([]Message, error)
	Ack(ctx context.Context, id int64) error
	Nack(ctx context.Context, msg Message, reason string) error
	Pending(ctx context.Context) (int, error)
}
