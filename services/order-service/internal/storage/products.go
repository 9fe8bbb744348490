package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"orderstream/libs/db"
)

var ErrProductExists = errors.New("product code already exists")

type Product struct {
	Code        string  `json:"code"`
	ProductName string  `json:"productName"`
	Model       string  `json:"model"`
	Price       float64 `json:"price"`
}

type ProductRepository struct {
	pool *db.Pool
}

func NewProductRepository(pool *db.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Create(ctx context.Context, p Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (code, product_name, model, price)
		VALUES ($1, $2, $3, $4)
	`, p.Code, p.ProductName, p.Model, p.Price)
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return ErrProductExists
	}
	return err
}

func (r *ProductRepository) Update(ctx context.Context, p Product) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET product_name = $2, model = $3, price = $4
		WHERE code = $1
	`, p.Code, p.ProductName, p.Model, p.Price)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProductRepository) Delete(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE code = $1`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, product_name, model, price FROM products ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetByCodes returns the products matching codes. Fewer results than codes
// means at least one code is unknown; order validation depends on that.
func (r *ProductRepository) GetByCodes(ctx context.Context, codes []string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, product_name, model, price FROM products WHERE code = ANY($1)
	`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Code, &p.ProductName, &p.Model, &p.Price); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return products, nil
}
