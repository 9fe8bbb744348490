package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"orderstream/libs/db"
)

var ErrOrderNotFound = errors.New("order not found")

type Order struct {
	Email           string
	OrderID         string
	Products        []OrderProduct
	Payment         string
	TotalPrice      float64
	ShippingType    string
	ShippingCarrier string
	CreatedAt       time.Time
}

type OrderProduct struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

func (o Order) ProductCodes() []string {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	return codes
}

type OrderRepository struct {
	pool *db.Pool
}

func NewOrderRepository(pool *db.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert writes the order inside tx so the caller can commit it together
// with the pending-event row.
func (r *OrderRepository) Insert(ctx context.Context, tx pgx.Tx, o Order) error {
	products, err := json.Marshal(o.Products)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (email, order_id, products, payment, total_price, shipping_type, shipping_carrier)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.Email, o.OrderID, products, o.Payment, o.TotalPrice, o.ShippingType, o.ShippingCarrier)
	return err
}

// Delete removes the order inside tx and returns the deleted row, which the
// caller needs to build the ORDER_DELETED event.
func (r *OrderRepository) Delete(ctx context.Context, tx pgx.Tx, email, orderID string) (Order, error) {
	row := tx.QueryRow(ctx, `
		DELETE FROM orders
		WHERE email = $1 AND order_id = $2
		RETURNING email, order_id, products, payment, total_price, shipping_type, shipping_carrier, created_at
	`, email, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *OrderRepository) Get(ctx context.Context, email, orderID string) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, order_id, products, payment, total_price, shipping_type, shipping_carrier, created_at
		FROM orders WHERE email = $1 AND order_id = $2
	`, email, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *OrderRepository) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT email, order_id, products, payment, total_price, shipping_type, shipping_carrier, created_at
		FROM orders WHERE email = $1 ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT email, order_id, products, payment, total_price, shipping_type, shipping_carrier, created_at
		FROM orders ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var products []byte
	if err := row.Scan(&o.Email, &o.OrderID, &products, &o.Payment, &o.TotalPrice, &o.ShippingType, &o.ShippingCarrier, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(products, &o.Products); err != nil {
		return Order{}, err
	}
	return o, nil
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}
