package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store is the SQLite-backed catalog.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database handle. The handle must have been opened
// with the catalog Schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Resolve looks the trimmed code up by barcode, then id, then SKU, and
// returns the first active match. Misses return a *NotFoundError wrapping
// ErrNotFound.
func (s *Store) Resolve(ctx context.Context, code string) (*Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &NotFoundError{Code: code}
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, barcode, sku, unit_price, active
		FROM products
		WHERE active = 1 AND (barcode = ?1 OR id = ?1 OR sku = ?1)
		ORDER BY CASE
			WHEN barcode = ?1 THEN 0
			WHEN id = ?1 THEN 1
			ELSE 2
		END
		LIMIT 1`, code)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Code: code}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve %q: %w", code, err)
	}
	return p, nil
}

// Put inserts or replaces a product. New products default to active unless
// the caller says otherwise. Used by seeding and by the vision registrar
// path, where an identified product without a code is added on the fly.
func (s *Store) Put(ctx context.Context, p *Product) error {
	now := time.Now().UnixMilli()
	active := 0
	if p.Active {
		active = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, sku, unit_price, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			barcode = excluded.barcode,
			sku = excluded.sku,
			unit_price = excluded.unit_price,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Barcode, p.SKU, p.UnitPrice, active, now, now)
	if err != nil {
		return fmt.Errorf("catalog: put %q: %w", p.ID, err)
	}
	return nil
}

// Deactivate retires a product without deleting its row; retired products
// no longer resolve but stay referenced by historical sales.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE products SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("catalog: deactivate %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Code: id}
	}
	return nil
}

// Get fetches a product by id regardless of active state.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, barcode, sku, unit_price, active
		FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Code: id}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %q: %w", id, err)
	}
	return p, nil
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	var active int
	if err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.SKU, &p.UnitPrice, &active); err != nil {
		return nil, err
	}
	p.Active = active == 1
	return &p, nil
}
