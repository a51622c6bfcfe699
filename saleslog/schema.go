package saleslog

// Schema is the sales log schema. Items reference their sale with cascade
// delete so a sale removal never strands lines.
const Schema = `
CREATE TABLE IF NOT EXISTS sales (
    id          TEXT PRIMARY KEY,
    created_at  INTEGER NOT NULL,
    subtotal    INTEGER NOT NULL,
    tax_rate    REAL NOT NULL,
    tax         INTEGER NOT NULL,
    total       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sale_items (
    sale_id     TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    product_ref TEXT NOT NULL,
    name        TEXT NOT NULL,
    barcode     TEXT NOT NULL DEFAULT '',
    unit_price  INTEGER NOT NULL,
    quantity    INTEGER NOT NULL,
    line_total  INTEGER NOT NULL,
    PRIMARY KEY (sale_id, position)
);
CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales(created_at);
`
