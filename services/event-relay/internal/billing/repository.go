package billing

import (
	"context"

	"orderstream/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) RecordCharge(ctx context.Context, c Charge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO billing_charges (order_id, email, amount, provider, provider_id)
		VALUES ($1, $2, $3, $4, $5)
	`, c.OrderID, c.Email, c.Amount, c.Provider, c.ProviderID)
	return err
}
