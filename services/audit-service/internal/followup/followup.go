package followup

import (
	"context"
	"encoding/json"

	"orderstream/libs/db"
	"orderstream/libs/event"
)

// Repository records audit events that need manual handling in
// audit_followups. Rows stay until an operator works them off.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Enqueue(ctx context.Context, ev event.AuditEvent, rule string) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_followups (source, detail_type, detail, rule)
		VALUES ($1, $2, $3, $4)
	`, ev.Source, ev.DetailType, detail, rule)
	return err
}
