// Package external declares the collaborator interfaces the order core
// consumes. Real implementations live at the edges (Postgres catalog,
// payment gateway client, notification dispatcher); the core only depends
// on these contracts.
package external

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/order"
)

// ProductSnapshot is what the catalog reports about a product at checkout
// time. The order core copies it into immutable line items and never
// consults the catalog for that order again.
type ProductSnapshot struct {
	ID            string
	Name          string
	VendorID      string
	Price         decimal.Decimal
	StockQuantity int
	IsActive      bool
	TaxIncluded   bool
	Size          string
	Color         string
}

// Catalog resolves products for order creation.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*ProductSnapshot, error)
}

// Payments fronts the payment gateway. Capture and refund outcomes arrive
// asynchronously via OrderService.RecordPaymentOutcome; the calls here only
// initiate. ValidatePaymentMethod is the one synchronous call on the order
// creation path and must respond within the configured timeout.
type Payments interface {
	ValidatePaymentMethod(ctx context.Context, method string) error
	CapturePayment(ctx context.Context, orderID string, amount decimal.Decimal) error
	InitiateRefund(ctx context.Context, referenceID string, amount decimal.Decimal) error
}

// Notifier delivers fire-and-forget notifications after committed
// transitions. Failures never affect the transition that triggered them.
type Notifier interface {
	Notify(ctx context.Context, actorID string, role order.Role, event string, payload map[string]any) error
}
