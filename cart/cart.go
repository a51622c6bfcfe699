// Package cart folds resolved products into an in-progress sale.
//
// A Cart holds ordered line items, one per product reference; repeated
// scans of the same product merge into the existing line. Totals are
// recomputed synchronously after every mutation, so a snapshot taken at
// any moment satisfies subtotal = Σ lineTotal and total = subtotal + tax.
package cart

import (
	"context"
	"math"
	"sync"
	"time"
)

// Item is the product information a cart needs to open a line.
type Item struct {
	Ref       string // catalog identifier, unique per line
	Name      string
	Barcode   string
	UnitPrice int64 // minor currency units
}

// Line is one cart position. LineTotal is always Quantity * UnitPrice.
type Line struct {
	Ref       string `json:"ref"`
	Name      string `json:"name"`
	Barcode   string `json:"barcode"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// Snapshot is an immutable copy of the cart state at one instant.
type Snapshot struct {
	Lines    []Line  `json:"lines"`
	Subtotal int64   `json:"subtotal"`
	TaxRate  float64 `json:"tax_rate"`
	Tax      int64   `json:"tax"`
	Total    int64   `json:"total"`
}

// Units returns the total number of scanned units across all lines.
func (s Snapshot) Units() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

// Sale is a settled cart handed to a Persister.
type Sale struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Snapshot
}

// Persister flushes a settled sale to external storage.
// Implementations should be idempotent-safe; retry policy belongs to the caller.
type Persister interface {
	Persist(ctx context.Context, sale *Sale) error
}

// Cart is the mutable aggregate. Safe for concurrent use; the scan service
// additionally serialises mutations through its event loop.
type Cart struct {
	mu       sync.Mutex
	lines    []*Line
	taxRate  float64
	subtotal int64
	tax      int64
	total    int64
}

// New creates an empty cart with the given tax rate (e.g. 0.18 for 18% VAT).
func New(taxRate float64) *Cart {
	return &Cart{taxRate: taxRate}
}

// Add merges one unit of item into the cart: an existing line for the same
// Ref gets its quantity incremented, otherwise a new line is appended at the
// item's current unit price. Totals are recomputed before returning.
func (c *Cart) Add(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.lines {
		if l.Ref == item.Ref {
			l.Quantity++
			l.LineTotal = int64(l.Quantity) * l.UnitPrice
			c.recompute()
			return
		}
	}
	c.lines = append(c.lines, &Line{
		Ref:       item.Ref,
		Name:      item.Name,
		Barcode:   item.Barcode,
		UnitPrice: item.UnitPrice,
		Quantity:  1,
		LineTotal: item.UnitPrice,
	})
	c.recompute()
}

// RemoveLine deletes the line for ref, if present. Reports whether a line
// was removed. Totals are recomputed either way.
func (c *Cart) RemoveLine(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.lines {
		if l.Ref == ref {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			c.recompute()
			return true
		}
	}
	c.recompute()
	return false
}

// Clear empties the cart and zeroes the totals.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.recompute()
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Total returns the current grand total (subtotal + tax).
func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Snapshot returns a deep copy of the current state.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]Line, len(c.lines))
	for i, l := range c.lines {
		lines[i] = *l
	}
	return Snapshot{
		Lines:    lines,
		Subtotal: c.subtotal,
		TaxRate:  c.taxRate,
		Tax:      c.tax,
		Total:    c.total,
	}
}

// recompute re-derives subtotal, tax and total. Callers hold c.mu.
func (c *Cart) recompute() {
	var subtotal int64
	for _, l := range c.lines {
		subtotal += l.LineTotal
	}
	c.subtotal = subtotal
	c.tax = int64(math.Round(float64(subtotal) * c.taxRate))
	c.total = subtotal + c.tax
}
