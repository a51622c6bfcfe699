package catalog

// Schema is the catalog store schema.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    barcode     TEXT NOT NULL DEFAULT '',
    sku         TEXT NOT NULL DEFAULT '',
    unit_price  INTEGER NOT NULL DEFAULT 0,
    active      INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_barcode ON products(barcode) WHERE barcode != '';
CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku) WHERE sku != '';
`
