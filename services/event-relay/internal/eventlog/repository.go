package eventlog

import (
	"context"
	"encoding/json"

	"orderstream/libs/db"
)

// Repository is the Postgres appender. The upsert mirrors keyed-put
// semantics: a second write with the same (pk, sk) replaces the row instead
// of failing.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Append(ctx context.Context, rec Record) error {
	codes, err := json.Marshal(rec.ProductCodes)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO order_events (pk, sk, expires_at, email, created_at, request_id, event_type, order_id, product_codes, delivery_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pk, sk) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			email = EXCLUDED.email,
			created_at = EXCLUDED.created_at,
			request_id = EXCLUDED.request_id,
			event_type = EXCLUDED.event_type,
			order_id = EXCLUDED.order_id,
			product_codes = EXCLUDED.product_codes,
			delivery_id = EXCLUDED.delivery_id
	`, rec.PK, rec.SK, rec.ExpiresAt, rec.Email, rec.CreatedAt, rec.RequestID, rec.EventType, rec.OrderID, codes, rec.DeliveryID)
	return err
}
