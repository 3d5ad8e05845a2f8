package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/anon-cart/internal/domain/product"
)

const productColumns = `id, name, description, price, image_url, created_at`

// PostgresCatalog implements product.Catalog on the products table
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	p, err := scanProduct(c.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (c *PostgresCatalog) ListProducts(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC LIMIT $1`,
		product.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]product.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpsertProducts inserts or refreshes catalog rows by id.
func (c *PostgresCatalog) UpsertProducts(ctx context.Context, products []product.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, description, price, image_url, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price = EXCLUDED.price,
				image_url = EXCLUDED.image_url
		`, p.ID, p.Name, p.Description, p.Price, p.ImageURL, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert product %q: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

func scanProduct(row rowScanner) (*product.Product, error) {
	var (
		p           product.Product
		description sql.NullString
		imageURL    sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &description, &p.Price, &imageURL, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Description = nullableString(description)
	p.ImageURL = nullableString(imageURL)
	return &p, nil
}
