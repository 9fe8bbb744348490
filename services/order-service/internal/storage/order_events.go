package storage

import (
	"context"
	"encoding/json"

	"orderstream/libs/db"
)

// OrderEventView is the customer-facing projection of a durable log record.
type OrderEventView struct {
	Email        string   `json:"email"`
	CreatedAt    int64    `json:"createdAt"`
	EventType    string   `json:"eventType"`
	RequestID    string   `json:"requestId"`
	OrderID      string   `json:"orderId"`
	ProductCodes []string `json:"productCodes"`
}

// OrderEventReader serves the customer event-history lookup over the
// (email, sk) index of the durable log. Expired records are invisible.
type OrderEventReader struct {
	pool *db.Pool
}

func NewOrderEventReader(pool *db.Pool) *OrderEventReader {
	return &OrderEventReader{pool: pool}
}

// ListByEmail returns the live events for one customer. eventTypePrefix
// narrows by sort-key prefix; an empty prefix matches every order event.
func (r *OrderEventReader) ListByEmail(ctx context.Context, email string, eventTypePrefix string) ([]OrderEventView, error) {
	if eventTypePrefix == "" {
		eventTypePrefix = "ORDER_"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT email, created_at, event_type, request_id, order_id, product_codes
		FROM order_events
		WHERE email = $1 AND sk LIKE $2 || '%' AND expires_at > now()
		ORDER BY sk
	`, email, eventTypePrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []OrderEventView
	for rows.Next() {
		var v OrderEventView
		var codes []byte
		if err := rows.Scan(&v.Email, &v.CreatedAt, &v.EventType, &v.RequestID, &v.OrderID, &codes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(codes, &v.ProductCodes); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return views, nil
}
