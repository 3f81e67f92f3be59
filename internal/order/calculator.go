package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SliceFinancials is the full monetary breakdown of one vendor slice.
type SliceFinancials struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	Discount       decimal.Decimal `json:"discount"`
	Commission     decimal.Decimal `json:"commission"`
	VendorEarnings decimal.Decimal `json:"vendor_earnings"`
}

// roundMoney applies the single rounding policy for every monetary figure in
// the system: round half up to two decimal places. decimal.Round rounds half
// away from zero, which is half-up for the non-negative amounts produced
// here.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeSlice derives a vendor slice's financial breakdown from its line
// items and rates. It is pure and deterministic: items are summed in slice
// order using decimal arithmetic, so identical inputs always produce
// identical output.
//
// Items flagged TaxIncluded carry their tax inside the price and contribute
// nothing to the tax figure. Earnings that would go negative are rejected
// rather than clamped.
func ComputeSlice(items []LineItem, shipping, taxRate, discount, commissionRate decimal.Decimal) (SliceFinancials, error) {
	if len(items) == 0 {
		return SliceFinancials{}, fmt.Errorf("%w: slice has no line items", ErrInvalidFinancials)
	}

	subtotal := decimal.Zero
	taxable := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return SliceFinancials{}, fmt.Errorf("%w: product %s has quantity %d", ErrInvalidFinancials, item.ProductID, item.Quantity)
		}
		if item.Price.IsNegative() {
			return SliceFinancials{}, fmt.Errorf("%w: product %s has negative price", ErrInvalidFinancials, item.ProductID)
		}
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		if !item.TaxIncluded {
			taxable = taxable.Add(lineTotal)
		}
	}

	tax := roundMoney(taxable.Mul(taxRate))
	commission := roundMoney(subtotal.Mul(commissionRate))

	earnings := subtotal.Add(shipping).Add(tax).Sub(discount).Sub(commission)
	if earnings.IsNegative() {
		return SliceFinancials{}, fmt.Errorf("%w: vendor earnings %s would be negative", ErrInvalidFinancials, earnings)
	}

	return SliceFinancials{
		Subtotal:       subtotal,
		Shipping:       shipping,
		Tax:            tax,
		Discount:       discount,
		Commission:     commission,
		VendorEarnings: earnings,
	}, nil
}

// LineTotal is the item's price times quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
