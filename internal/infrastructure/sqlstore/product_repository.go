package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

type ProductRepository struct{ s *Store }

const productColumns = "id, name, category, price_per_kg, stock_kg, image_ref, version, updated_at"

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := r.s.queryRow(ctx, r.s.db, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get product %s: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.s.query(ctx, r.s.db, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list products: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("sqlstore: product id is required")
	}
	now := time.Now().UTC()
	var version int64
	err := r.s.queryRow(ctx, r.s.db, `INSERT INTO products (`+productColumns+`)
VALUES (?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    category = excluded.category,
    price_per_kg = excluded.price_per_kg,
    stock_kg = excluded.stock_kg,
    image_ref = excluded.image_ref,
    version = products.version + 1,
    updated_at = excluded.updated_at
RETURNING version`,
		p.ID, p.Name, p.Category, p.PricePerKilogram, p.StockKilograms.String(), p.ImageRef, formatTime(now),
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert product %s: %w", p.ID, err)
	}
	p.Version = version
	p.UpdatedAt = now
	return nil
}

func (r *ProductRepository) UpdateStock(ctx context.Context, id string, expectedVersion int64, stock decimal.Decimal) error {
	res, err := r.s.exec(ctx, r.s.db,
		"UPDATE products SET stock_kg = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		stock.String(), formatTime(time.Now()), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: update stock %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update stock %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrStockConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (*domain.Product, error) {
	var (
		p              domain.Product
		stock, updated string
	)
	if err := sc.Scan(&p.ID, &p.Name, &p.Category, &p.PricePerKilogram, &stock, &p.ImageRef, &p.Version, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.StockKilograms, err = decimal.NewFromString(stock); err != nil {
		return nil, fmt.Errorf("stock %q: %w", stock, err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}
