package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReturnRequest is a post-delivery reversal request for a subset of one
// vendor slice's items. It is stored separately from the order (an order can
// accumulate many over its life) with a back-reference to orderId/vendorId.
type ReturnRequest struct {
	ID              string          `json:"id"`
	ReturnCode      string          `json:"return_code"`
	OrderID         string          `json:"order_id"`
	VendorID        string          `json:"vendor_id"`
	Items           []LineItem      `json:"items"`
	Reason          string          `json:"reason"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	Status          ReturnStatus    `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	RequestedAt     time.Time       `json:"requested_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// NewReturnRequest builds a return for the selected products of the
// vendor's slice. The governing slice must be delivered, and every selected
// product must exist on the slice. The refund amount is the sum of the
// selected items' line totals; no restocking fee is modeled.
func NewReturnRequest(id, returnCode string, o *Order, vendorID string, productIDs []string, reason string, actor Actor, now time.Time) (*ReturnRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: return reason is required", ErrInvalidArgument)
	}
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one item must be selected", ErrInvalidArgument)
	}
	if actor.Role == RoleCustomer && actor.ID != o.CustomerID {
		return nil, fmt.Errorf("%w: customer %s does not own order %s", ErrForbidden, actor.ID, o.ID)
	}

	slice, err := o.Slice(vendorID)
	if err != nil {
		return nil, err
	}
	if slice.Status != StatusDelivered {
		return nil, fmt.Errorf("%w: returns require a delivered slice, vendor %s is %s", ErrInvalidTransition, vendorID, slice.Status)
	}

	byProduct := make(map[string]LineItem, len(slice.Items))
	for _, item := range slice.Items {
		byProduct[item.ProductID] = item
	}

	var selected []LineItem
	refund := decimal.Zero
	for _, pid := range productIDs {
		item, ok := byProduct[pid]
		if !ok {
			return nil, fmt.Errorf("%w: product %s is not part of vendor %s slice", ErrInvalidArgument, pid, vendorID)
		}
		selected = append(selected, item)
		refund = refund.Add(item.LineTotal())
	}

	return &ReturnRequest{
		ID:           id,
		ReturnCode:   returnCode,
		OrderID:      o.ID,
		VendorID:     vendorID,
		Items:        selected,
		Reason:       reason,
		RefundAmount: refund,
		Status:       ReturnPending,
		RequestedAt:  now,
	}, nil
}

func (r *ReturnRequest) authorizeResolution(actor Actor) error {
	switch actor.Role {
	case RoleAdmin:
	case RoleVendor:
		if actor.ID != r.VendorID {
			return fmt.Errorf("%w: vendor %s cannot resolve return for vendor %s", ErrForbidden, actor.ID, r.VendorID)
		}
	default:
		return fmt.Errorf("%w: role %s cannot resolve returns", ErrForbidden, actor.Role)
	}
	if r.Status != ReturnPending {
		return fmt.Errorf("%w: return %s already %s", ErrRequestAlreadyResolved, r.ReturnCode, r.Status)
	}
	return nil
}

// Approve records the vendor's decision. Approval is distinct from
// completion: the refund settles externally and is confirmed through
// BeginProcessing/Complete.
func (r *ReturnRequest) Approve(actor Actor, now time.Time) error {
	if err := r.authorizeResolution(actor); err != nil {
		return err
	}
	r.Status = ReturnApproved
	r.ResolvedAt = &now
	return nil
}

// Reject terminally refuses the return with a reason shown to the customer.
// No financial side effect follows.
func (r *ReturnRequest) Reject(actor Actor, rejectionReason string, now time.Time) error {
	if rejectionReason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidArgument)
	}
	if err := r.authorizeResolution(actor); err != nil {
		return err
	}
	r.Status = ReturnRejected
	r.RejectionReason = rejectionReason
	r.ResolvedAt = &now
	return nil
}

// BeginProcessing marks the refund as handed to the payment provider.
func (r *ReturnRequest) BeginProcessing() error {
	if r.Status != ReturnApproved {
		return fmt.Errorf("%w: return %s is %s, not approved", ErrInvalidTransition, r.ReturnCode, r.Status)
	}
	r.Status = ReturnProcessing
	return nil
}

// Complete records the externally confirmed refund settlement.
func (r *ReturnRequest) Complete() error {
	if r.Status != ReturnApproved && r.Status != ReturnProcessing {
		return fmt.Errorf("%w: return %s is %s, cannot complete", ErrInvalidTransition, r.ReturnCode, r.Status)
	}
	r.Status = ReturnCompleted
	return nil
}
