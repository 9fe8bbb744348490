package notifyq

import (
	"context"
	"encoding/json"

	"orderstream/libs/db"
	"orderstream/services/event-relay/internal/fanout"
)

type Inserter interface {
	Enqueue(ctx context.Context, eventID, eventType string, payload []byte) error
}

// Enqueuer is the notifier's entry into the pipeline: a filtered sink that
// copies the envelope into the durable notification queue. Processing and
// retry policy live entirely with the queue consumer.
type Enqueuer struct {
	queue Inserter
}

func NewEnqueuer(queue Inserter) *Enqueuer {
	return &Enqueuer{queue: queue}
}

func (e *Enqueuer) Deliver(ctx context.Context, d fanout.Delivery) error {
	payload, err := json.Marshal(d.Envelope)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, d.EventID, d.Envelope.EventType, payload)
}

var _ fanout.Sink = (*Enqueuer)(nil)

// Repository inserts queue rows. Receives and acknowledgements are the
// notifier service's side of the table.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Enqueue(ctx context.Context, eventID, eventType string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notify_queue (event_id, event_type, payload)
		VALUES ($1, $2, $3)
	`, eventID, eventType, payload)
	return err
}
