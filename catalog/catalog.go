// Package catalog defines the product lookup contract consumed by the scan
// pipeline, and an SQLite-backed Store implementing it.
//
// The pipeline holds no product data beyond the current lookup; the catalog
// is the owner. Resolution is a trimmed exact match tried against the
// barcode field first, then the catalog identifier, then the SKU. First
// match wins, and only active products resolve.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no active product matches a code.
var ErrNotFound = errors.New("catalog: product not found")

// Product is one catalog record. UnitPrice is in minor currency units.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Barcode   string `json:"barcode"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Active    bool   `json:"active"`
}

// Resolver maps a scanned code to a product.
// Implementations return an error wrapping ErrNotFound on miss.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Product, error)
}

// NotFoundError carries the unresolved code so callers can report it.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: product not found for code %q", e.Code)
}

// Unwrap makes errors.Is(err, ErrNotFound) hold for NotFoundError values.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
