package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/external"
	"github.com/devxankit/neargud-sub001/internal/order"
)

// The products table backs the Catalog collaborator. The order core reads
// it exactly once per order, at creation time, to snapshot line items;
// slices never look back at it afterwards.

type Product struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	VendorID      string          `json:"vendor_id"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	TaxIncluded   bool            `json:"tax_included"`
	Size          string          `json:"size,omitempty"`
	Color         string          `json:"color,omitempty"`
	Version       int             `json:"version"`
}

func (s *Store) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	created := &Product{}

	query := `
		INSERT INTO products (id, sku, name, description, vendor_id, price, stock_quantity,
		                      is_active, tax_included, size, color, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW(), 1)
		RETURNING id, sku, name, description, vendor_id, price, stock_quantity, is_active, tax_included, size, color, version`

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.SKU, p.Name, p.Description, p.VendorID, p.Price, p.StockQuantity,
		p.IsActive, p.TaxIncluded, p.Size, p.Color).Scan(
		&created.ID,
		&created.SKU,
		&created.Name,
		&created.Description,
		&created.VendorID,
		&created.Price,
		&created.StockQuantity,
		&created.IsActive,
		&created.TaxIncluded,
		&created.Size,
		&created.Color,
		&created.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return created, nil
}

// GetProduct implements external.Catalog.
func (s *Store) GetProduct(ctx context.Context, id string) (*external.ProductSnapshot, error) {
	snapshot := &external.ProductSnapshot{}

	query := `
		SELECT id, name, vendor_id, price, stock_quantity, is_active, tax_included, size, color
		FROM products
		WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&snapshot.ID,
		&snapshot.Name,
		&snapshot.VendorID,
		&snapshot.Price,
		&snapshot.StockQuantity,
		&snapshot.IsActive,
		&snapshot.TaxIncluded,
		&snapshot.Size,
		&snapshot.Color,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: product %s", order.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return snapshot, nil
}
