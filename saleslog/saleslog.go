// Package saleslog persists settled carts to SQLite.
//
// The Store implements cart.Persister: one Persist writes the sale header
// and all its line items in a single transaction, so a crash mid-flush
// never leaves a header without items.
package saleslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tillworks/scanpipe/cart"
	"github.com/tillworks/scanpipe/dbopen"
)

// ErrNotFound is returned when no sale matches the requested id.
var ErrNotFound = errors.New("saleslog: sale not found")

// Store writes and reads settled sales.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database handle with the saleslog Schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Persist writes the sale and its items atomically. Retries on SQLite
// contention are handled by dbopen.RunTx.
func (s *Store) Persist(ctx context.Context, sale *cart.Sale) error {
	if sale.ID == "" {
		return errors.New("saleslog: sale has no id")
	}
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales (id, created_at, subtotal, tax_rate, tax, total)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sale.ID, sale.CreatedAt.UnixMilli(), sale.Subtotal, sale.TaxRate, sale.Tax, sale.Total)
		if err != nil {
			return err
		}
		for i, l := range sale.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, position, product_ref, name, barcode, unit_price, quantity, line_total)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sale.ID, i, l.Ref, l.Name, l.Barcode, l.UnitPrice, l.Quantity, l.LineTotal)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saleslog: persist %s: %w", sale.ID, err)
	}
	return nil
}

// Get loads one sale with its items in stored order.
func (s *Store) Get(ctx context.Context, id string) (*cart.Sale, error) {
	var sale cart.Sale
	var createdAt int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, created_at, subtotal, tax_rate, tax, total
		FROM sales WHERE id = ?`, id).
		Scan(&sale.ID, &createdAt, &sale.Subtotal, &sale.TaxRate, &sale.Tax, &sale.Total)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("saleslog: %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("saleslog: get %q: %w", id, err)
	}
	sale.CreatedAt = time.UnixMilli(createdAt)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT product_ref, name, barcode, unit_price, quantity, line_total
		FROM sale_items WHERE sale_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("saleslog: items for %q: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.Ref, &l.Name, &l.Barcode, &l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("saleslog: scan item: %w", err)
		}
		sale.Lines = append(sale.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saleslog: iterate items: %w", err)
	}
	return &sale, nil
}

// ListRecent returns up to limit sale headers, newest first, without items.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*cart.Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, created_at, subtotal, tax_rate, tax, total
		FROM sales ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("saleslog: list: %w", err)
	}
	defer rows.Close()

	var sales []*cart.Sale
	for rows.Next() {
		var sale cart.Sale
		var createdAt int64
		if err := rows.Scan(&sale.ID, &createdAt, &sale.Subtotal, &sale.TaxRate, &sale.Tax, &sale.Total); err != nil {
			return nil, fmt.Errorf("saleslog: scan sale: %w", err)
		}
		sale.CreatedAt = time.UnixMilli(createdAt)
		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saleslog: iterate sales: %w", err)
	}
	return sales, nil
}
