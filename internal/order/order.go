package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Actor is whoever is driving a mutation: a vendor, an admin, a customer,
// or the system itself.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// LineItem is a product snapshot taken at checkout time. It is never
// re-read from the live catalog after the order is created.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	TaxIncluded bool            `json:"tax_included"`
}

// Address is the shipping destination snapshotted at creation.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// VendorSlice is one vendor's portion of a multi-vendor order: its line
// items, financial breakdown, and independently tracked status.
type VendorSlice struct {
	VendorID string     `json:"vendor_id"`
	Items    []LineItem `json:"items"`
	SliceFinancials
	Status Status `json:"status"`

	// StatusBeforeCancellation remembers where the slice was when a
	// cancellation was requested, so a rejection can restore it exactly.
	StatusBeforeCancellation *Status `json:"status_before_cancellation,omitempty"`
}

// StatusEntry is one row of the append-only audit ledger. A non-empty
// VendorID scopes the entry to that vendor's slice.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	ChangedBy string    `json:"changed_by"`
	Role      Role      `json:"role"`
	VendorID  string    `json:"vendor_id,omitempty"`
}

// CancellationRequest is the order's single cancellation slot. At most one
// request may be pending at a time.
type CancellationRequest struct {
	Status          RequestStatus `json:"status"`
	Reason          string        `json:"reason"`
	Note            string        `json:"note,omitempty"`
	RequestedAt     time.Time     `json:"requested_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
}

// Order is the aggregate root. It exclusively owns its vendor slices and
// status history; the slice set is fixed at creation.
type Order struct {
	ID              string          `json:"id"`
	OrderCode       string          `json:"order_code"`
	CustomerID      string          `json:"customer_id"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          Status          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`

	VendorItems         []VendorSlice        `json:"vendor_items"`
	StatusHistory       []StatusEntry        `json:"status_history"`
	CancellationRequest *CancellationRequest `json:"cancellation_request,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Slice returns the vendor's slice, or ErrNotFound.
func (o *Order) Slice(vendorID string) (*VendorSlice, error) {
	for i := range o.VendorItems {
		if o.VendorItems[i].VendorID == vendorID {
			return &o.VendorItems[i], nil
		}
	}
	return nil, fmt.Errorf("%w: vendor %s has no slice in order %s", ErrNotFound, vendorID, o.ID)
}

func (o *Order) appendHistory(status Status, actor Actor, note, vendorID string, now time.Time) {
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: now,
		Note:      note,
		ChangedBy: actor.ID,
		Role:      actor.Role,
		VendorID:  vendorID,
	})
	o.UpdatedAt = now
}

// ApplyTransition moves one vendor slice along the fulfillment ladder and
// re-derives the aggregate status. Cancellation-family statuses are managed
// by the cancellation workflow and are not valid targets here.
//
// Authorization: a vendor may only transition its own slice, an admin any
// slice; customers never set fulfillment statuses directly. The check and
// the apply are atomic: a rejected transition leaves the order untouched.
func (o *Order) ApplyTransition(vendorID string, to Status, actor Actor, note string, now time.Time) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
	case RoleVendor:
		if actor.ID != vendorID {
			return fmt.Errorf("%w: vendor %s cannot transition slice of vendor %s", ErrForbidden, actor.ID, vendorID)
		}
	default:
		return fmt.Errorf("%w: role %s cannot set fulfillment statuses", ErrForbidden, actor.Role)
	}

	slice, err := o.Slice(vendorID)
	if err != nil {
		return err
	}

	if !to.Fulfillment() || to == StatusPending {
		return &InvalidTransitionError{VendorID: vendorID, From: slice.Status, To: to}
	}
	if !CanTransition(slice.Status, to) {
		return &InvalidTransitionError{VendorID: vendorID, From: slice.Status, To: to}
	}

	slice.Status = to
	o.Status = DeriveOrderStatus(o.VendorItems)
	o.appendHistory(to, actor, note, vendorID, now)
	return nil
}

// RequestCancellation opens the order's cancellation slot and parks every
// active slice in cancellation_requested, remembering each slice's prior
// status for a possible rejection.
func (o *Order) RequestCancellation(actor Actor, reason, note string, now time.Time) error {
	if reason == "" {
		return fmt.Errorf("%w: cancellation reason is required", ErrInvalidArgument)
	}
	if actor.Role == RoleCustomer && actor.ID != o.CustomerID {
		return fmt.Errorf("%w: customer %s does not own order %s", ErrForbidden, actor.ID, o.ID)
	}
	if o.CancellationRequest != nil && o.CancellationRequest.Status == RequestPending {
		return fmt.Errorf("%w: order %s already has a pending cancellation", ErrDuplicateRequest, o.ID)
	}

	// Validate before mutating: every non-cancelled slice must still be
	// pre-delivery for the request to be raisable.
	affected := 0
	for i := range o.VendorItems {
		s := &o.VendorItems[i]
		if s.Status == StatusCancelled {
			continue
		}
		if !CanTransition(s.Status, StatusCancellationRequested) {
			return &InvalidTransitionError{VendorID: s.VendorID, From: s.Status, To: StatusCancellationRequested}
		}
		affected++
	}
	if affected == 0 {
		return &InvalidTransitionError{VendorID: "", From: o.Status, To: StatusCancellationRequested}
	}

	for i := range o.VendorItems {
		s := &o.VendorItems[i]
		if s.Status == StatusCancelled {
			continue
		}
		prior := s.Status
		s.StatusBeforeCancellation = &prior
		s.Status = StatusCancellationRequested
	}

	o.CancellationRequest = &CancellationRequest{
		Status:      RequestPending,
		Reason:      reason,
		Note:        note,
		RequestedAt: now,
	}
	o.Status = DeriveOrderStatus(o.VendorItems)
	o.appendHistory(StatusCancellationRequested, actor, reason, "", now)
	return nil
}

// ApproveCancellation drives every requested slice to terminal cancelled
// and resolves the request. Refund initiation is the caller's side effect,
// fired only after this mutation commits.
func (o *Order) ApproveCancellation(actor Actor, note string, now time.Time) error {
	if err := o.authorizeCancellationResolution(actor); err != nil {
		return err
	}

	for i := range o.VendorItems {
		s := &o.VendorItems[i]
		if s.Status != StatusCancellationRequested {
			continue
		}
		s.Status = StatusCancelled
		s.StatusBeforeCancellation = nil
	}

	o.CancellationRequest.Status = RequestApproved
	o.CancellationRequest.ResolvedAt = &now
	o.Status = DeriveOrderStatus(o.VendorItems)
	o.appendHistory(o.Status, actor, note, "", now)
	return nil
}

// RejectCancellation restores every requested slice to its stored prior
// status and resolves the request with the reason shown to the customer.
func (o *Order) RejectCancellation(actor Actor, rejectionReason string, now time.Time) error {
	if rejectionReason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidArgument)
	}
	if err := o.authorizeCancellationResolution(actor); err != nil {
		return err
	}

	for i := range o.VendorItems {
		s := &o.VendorItems[i]
		if s.Status != StatusCancellationRequested {
			continue
		}
		restored := StatusPending
		if s.StatusBeforeCancellation != nil {
			restored = *s.StatusBeforeCancellation
		}
		s.Status = restored
		s.StatusBeforeCancellation = nil
	}

	o.CancellationRequest.Status = RequestRejected
	o.CancellationRequest.ResolvedAt = &now
	o.CancellationRequest.RejectionReason = rejectionReason
	o.Status = DeriveOrderStatus(o.VendorItems)
	o.appendHistory(StatusCancellationRejected, actor, rejectionReason, "", now)
	return nil
}

func (o *Order) authorizeCancellationResolution(actor Actor) error {
	switch actor.Role {
	case RoleAdmin:
	case RoleVendor:
		if _, err := o.Slice(actor.ID); err != nil {
			return fmt.Errorf("%w: vendor %s has no slice in order %s", ErrForbidden, actor.ID, o.ID)
		}
	default:
		return fmt.Errorf("%w: role %s cannot resolve cancellations", ErrForbidden, actor.Role)
	}

	if o.CancellationRequest == nil {
		return fmt.Errorf("%w: order %s has no cancellation request", ErrNotFound, o.ID)
	}
	if o.CancellationRequest.Status != RequestPending {
		return fmt.Errorf("%w: cancellation already %s", ErrRequestAlreadyResolved, o.CancellationRequest.Status)
	}
	return nil
}

// RefundableAmount is what the customer gets back when the whole order is
// cancelled: everything they were charged.
func (o *Order) RefundableAmount() decimal.Decimal {
	return o.Total
}

// CheckInvariants verifies the money identities that must hold for every
// order in every state. Used by tests and by the store before persisting.
func (o *Order) CheckInvariants() error {
	sliceSubtotals := decimal.Zero
	for _, s := range o.VendorItems {
		sliceSubtotals = sliceSubtotals.Add(s.Subtotal)

		earned := s.Subtotal.Add(s.Shipping).Add(s.Tax).Sub(s.Discount).Sub(s.Commission)
		if !s.VendorEarnings.Equal(earned) {
			return fmt.Errorf("%w: vendor %s earnings %s != %s", ErrInvalidFinancials, s.VendorID, s.VendorEarnings, earned)
		}
	}
	if !sliceSubtotals.Equal(o.Subtotal) {
		return fmt.Errorf("%w: slice subtotals %s != order subtotal %s", ErrInvalidFinancials, sliceSubtotals, o.Subtotal)
	}

	total := o.Subtotal.Add(o.Shipping).Add(o.Tax).Sub(o.Discount)
	if !o.Total.Equal(total) {
		return fmt.Errorf("%w: order total %s != %s", ErrInvalidFinancials, o.Total, total)
	}
	return nil
}
