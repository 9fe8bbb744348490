package queue

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"orderstream/libs/db"
)

// Postgres implements Queue on the notify_queue table. Row locks plus the
// visible_at column give single-consumer visibility for in-flight messages
// across any number of concurrent worker invocations.
type Postgres struct {
	pool              *db.Pool
	maxReceives       int
	visibilityTimeout time.Duration
	retryBackoff      time.Duration
}

type PostgresConfig struct {
	MaxReceives       int
	VisibilityTimeout time.Duration
	RetryBackoff      time.Duration
}

func NewPostgres(pool *db.Pool, cfg PostgresConfig) *Postgres {
	if cfg.MaxReceives <= 0 {
		cfg.MaxReceives = 3
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	return &Postgres{
		pool:              pool,
		maxReceives:       cfg.MaxReceives,
		visibilityTimeout: cfg.VisibilityTimeout,
		retryBackoff:      cfg.RetryBackoff,
	}
}

func (q *Postgres) Receive(ctx context.Context, max int) ([]Message, error) {
	rows, err := q.pool.Query(ctx, `
		WITH picked AS (
			SELECT id FROM notify_queue
			WHERE visible_at <= now()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notify_queue q
		SET receive_count = q.receive_count + 1,
		    visible_at = now() + $2
		FROM picked
		WHERE q.id = picked.id
		RETURNING q.id, q.event_id, q.event_type, q.payload, q.receive_count
	`, max, q.visibilityTimeout)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.EventID, &m.EventType, &m.Payload, &m.ReceiveCount); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	// UPDATE ... RETURNING yields rows in no particular order; receipt
	// order is oldest first.
	sortByID(msgs)
	return msgs, nil
}

func sortByID(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
}

func (q *Postgres) Ack(ctx context.Context, id int64) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM notify_queue WHERE id = $1`, id)
	return err
}

func (q *Postgres) Nack(ctx context.Context, msg Message, reason string) error {
	if msg.ReceiveCount < q.maxReceives {
		_, err := q.pool.Exec(ctx, `
			UPDATE notify_queue SET visible_at = now() + $2 WHERE id = $1
		`, msg.ID, q.retryBackoff)
		return err
	}

	// Retry budget exhausted: move to the dead-letter store atomically so
	// the message is never both redeliverable and dead-lettered.
	return q.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notify_dead_letters (event_id, event_type, payload, receive_count, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.EventID, msg.EventType, msg.Payload, msg.ReceiveCount, reason); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM notify_queue WHERE id = $1`, msg.ID)
		return err
	})
}

func (q *Postgres) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*) FROM notify_queue WHERE visible_at <= now()
	`).Scan(&n)
	return n, err
}
