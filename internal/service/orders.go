package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/config"
	"github.com/devxankit/neargud-sub001/internal/effects"
	"github.com/devxankit/neargud-sub001/internal/external"
	"github.com/devxankit/neargud-sub001/internal/order"
	"github.com/devxankit/neargud-sub001/internal/store"
)

// maxMutationAttempts bounds the optimistic-concurrency retry loop. A
// caller that loses every attempt gets order.ErrConflict.
const maxMutationAttempts = 3

// OrderRepository is the persistence contract the service orchestrates
// over. The Postgres implementation lives in internal/store.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateOrder(ctx context.Context, o *order.Order, expectedVersion int) error
	ListOrdersByVendor(ctx context.Context, vendorID string, filter store.ListOrdersFilter) (*store.CursorPage, error)
	CreateReturnRequest(ctx context.Context, r *order.ReturnRequest) error
	GetReturnRequest(ctx context.Context, id string) (*order.ReturnRequest, error)
	UpdateReturnRequest(ctx context.Context, r *order.ReturnRequest, expectedStatus order.ReturnStatus) error
	ListReturnsByOrder(ctx context.Context, orderID string) ([]order.ReturnRequest, error)
}

// EffectQueue parks failed side effects for out-of-band retry. May be nil,
// in which case failures are only logged.
type EffectQueue interface {
	Enqueue(ctx context.Context, env effects.Envelope) error
}

// OrderService owns all read/write authority over orders. Every mutation is
// serialized per order through the repository's version check; external side
// effects fire strictly after the mutation commits and never roll it back.
type OrderService struct {
	repo     OrderRepository
	catalog  external.Catalog
	payments external.Payments
	notifier external.Notifier
	queue    EffectQueue
	logger   *slog.Logger
	rates    config.MarketplaceConfig
	payCfg   config.PaymentConfig
}

func NewOrderService(
	repo OrderRepository,
	catalog external.Catalog,
	payments external.Payments,
	notifier external.Notifier,
	queue EffectQueue,
	logger *slog.Logger,
	rates config.MarketplaceConfig,
	payCfg config.PaymentConfig,
) *OrderService {
	return &OrderService{
		repo:     repo,
		catalog:  catalog,
		payments: payments,
		notifier: notifier,
		queue:    queue,
		logger:   logger,
		rates:    rates,
		payCfg:   payCfg,
	}
}

func generateOrderCode() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

func generateReturnCode() string {
	return fmt.Sprintf("RET-%d", time.Now().UnixNano())
}

// CartItem is one checkout line before snapshotting.
type CartItem struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	CustomerID      string
	Items           []CartItem
	ShippingAddress order.Address
	PaymentMethod   string
}

// CreateOrder groups the cart by vendor, snapshots each product from the
// catalog, computes one slice per vendor, and persists the order in status
// pending with its first history entry. Payment capture and the new-order
// notification fire after the commit.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	if in.CustomerID == "" || in.PaymentMethod == "" || len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: customer, payment method, and items are required", order.ErrInvalidArgument)
	}

	validateCtx, cancel := context.WithTimeout(ctx, s.payCfg.ValidationTimeout)
	defer cancel()
	if err := s.payments.ValidatePaymentMethod(validateCtx, in.PaymentMethod); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", order.ErrPaymentValidationFailed, in.PaymentMethod, err)
	}

	// Group line items by vendor, preserving first-seen vendor order so
	// slice layout and summation order are deterministic.
	var vendorOrder []string
	itemsByVendor := make(map[string][]order.LineItem)
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s has quantity %d", order.ErrInvalidArgument, item.ProductID, item.Quantity)
		}

		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product %s is not active", order.ErrInvalidArgument, item.ProductID)
		}
		if product.StockQuantity < item.Quantity {
			return nil, fmt.Errorf("%w: product %s has insufficient stock", order.ErrInvalidArgument, item.ProductID)
		}

		if _, seen := itemsByVendor[product.VendorID]; !seen {
			vendorOrder = append(vendorOrder, product.VendorID)
		}
		itemsByVendor[product.VendorID] = append(itemsByVendor[product.VendorID], order.LineItem{
			ProductID:   product.ID,
			Name:        product.Name,
			Price:       product.Price,
			Quantity:    item.Quantity,
			Size:        product.Size,
			Color:       product.Color,
			TaxIncluded: product.TaxIncluded,
		})
	}

	now := time.Now().UTC()
	o := &order.Order{
		ID:              uuid.NewString(),
		OrderCode:       generateOrderCode(),
		CustomerID:      in.CustomerID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   order.PaymentPending,
		Status:          order.StatusPending,
		Subtotal:        decimal.Zero,
		Shipping:        decimal.Zero,
		Tax:             decimal.Zero,
		Discount:        decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	for _, vendorID := range vendorOrder {
		fin, err := order.ComputeSlice(itemsByVendor[vendorID], s.rates.ShippingFee, s.rates.TaxRate, decimal.Zero, s.rates.CommissionRate)
		if err != nil {
			return nil, err
		}
		o.VendorItems = append(o.VendorItems, order.VendorSlice{
			VendorID:        vendorID,
			Items:           itemsByVendor[vendorID],
			SliceFinancials: fin,
			Status:          order.StatusPending,
		})
		o.Subtotal = o.Subtotal.Add(fin.Subtotal)
		o.Shipping = o.Shipping.Add(fin.Shipping)
		o.Tax = o.Tax.Add(fin.Tax)
		o.Discount = o.Discount.Add(fin.Discount)
	}
	o.Total = o.Subtotal.Add(o.Shipping).Add(o.Tax).Sub(o.Discount)

	o.StatusHistory = []order.StatusEntry{{
		Status:    order.StatusPending,
		Timestamp: now,
		ChangedBy: "system",
		Role:      order.RoleSystem,
		Note:      "order created",
	}}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	s.capturePayment(ctx, o.ID, o.Total)
	s.notify(ctx, o.CustomerID, order.RoleCustomer, "order_created", map[string]any{
		"order_id": o.ID, "order_code": o.OrderCode, "total": o.Total,
	})
	for _, slice := range o.VendorItems {
		s.notify(ctx, slice.VendorID, order.RoleVendor, "order_created", map[string]any{
			"order_id": o.ID, "order_code": o.OrderCode, "subtotal": slice.Subtotal,
		})
	}
	return o, nil
}

// mutateOrder runs the read-modify-write loop: load the order, apply fn,
// and persist against the version that was read. A losing writer re-reads
// and retries; domain validation errors abort immediately with nothing
// persisted.
func (s *OrderService) mutateOrder(ctx context.Context, orderID string, fn func(*order.Order) error) (*order.Order, error) {
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		o, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}

		readVersion := o.Version
		if err := fn(o); err != nil {
			return nil, err
		}

		err = s.repo.UpdateOrder(ctx, o, readVersion)
		if errors.Is(err, order.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, fmt.Errorf("%w: order %s, gave up after %d attempts", order.ErrConflict, orderID, maxMutationAttempts)
}

// ApplyStatusTransition moves one vendor slice along the fulfillment ladder
// and notifies the customer after the commit.
func (s *OrderService) ApplyStatusTransition(ctx context.Context, orderID, vendorID string, newStatus order.Status, actor order.Actor, note string) (*order.Order, error) {
	o, err := s.mutateOrder(ctx, orderID, func(o *order.Order) error {
		return o.ApplyTransition(vendorID, newStatus, actor, note, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, o.CustomerID, order.RoleCustomer, "order_status_changed", map[string]any{
		"order_id": o.ID, "vendor_id": vendorID, "status": newStatus, "order_status": o.Status,
	})
	return o, nil
}

// RequestCancellation opens the order's single cancellation slot.
func (s *OrderService) RequestCancellation(ctx context.Context, orderID string, actor order.Actor, reason, note string) (*order.Order, error) {
	o, err := s.mutateOrder(ctx, orderID, func(o *order.Order) error {
		return o.RequestCancellation(actor, reason, note, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	for _, slice := range o.VendorItems {
		if slice.Status != order.StatusCancellationRequested {
			continue
		}
		s.notify(ctx, slice.VendorID, order.RoleVendor, "cancellation_requested", map[string]any{
			"order_id": o.ID, "reason": reason,
		})
	}
	return o, nil
}

// ResolveCancellation approves or rejects the pending cancellation. An
// approval fires the refund side effect exactly once, after the commit;
// settlement later arrives through RecordPaymentOutcome.
func (s *OrderService) ResolveCancellation(ctx context.Context, orderID string, actor order.Actor, approve bool, reason string) (*order.Order, error) {
	o, err := s.mutateOrder(ctx, orderID, func(o *order.Order) error {
		now := time.Now().UTC()
		if approve {
			return o.ApproveCancellation(actor, reason, now)
		}
		return o.RejectCancellation(actor, reason, now)
	})
	if err != nil {
		return nil, err
	}

	event := "cancellation_rejected"
	if approve {
		event = "cancellation_approved"
		s.initiateRefund(ctx, o.ID, o.RefundableAmount())
	}
	s.notify(ctx, o.CustomerID, order.RoleCustomer, event, map[string]any{
		"order_id": o.ID, "reason": reason,
	})
	return o, nil
}

// RequestReturn raises a return for delivered items of one vendor slice.
// Only one return may be active per order at a time.
func (s *OrderService) RequestReturn(ctx context.Context, orderID, vendorID string, productIDs []string, reason string, actor order.Actor) (*order.ReturnRequest, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListReturnsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Status.Active() {
			return nil, fmt.Errorf("%w: order %s already has an active return %s", order.ErrDuplicateRequest, orderID, r.ReturnCode)
		}
	}

	ret, err := order.NewReturnRequest(uuid.NewString(), generateReturnCode(), o, vendorID, productIDs, reason, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateReturnRequest(ctx, ret); err != nil {
		return nil, err
	}

	s.notify(ctx, vendorID, order.RoleVendor, "return_requested", map[string]any{
		"order_id": orderID, "return_code": ret.ReturnCode, "refund_amount": ret.RefundAmount,
	})
	return ret, nil
}

// ResolveReturn approves or rejects a pending return. Approval initiates
// the refund and marks the request processing; the order's own status is
// never touched by a return outcome.
//
// The write is guarded by the status that was read, so of two concurrent
// resolvers exactly one lands; the loser gets ErrRequestAlreadyResolved and
// the refund fires once.
func (s *OrderService) ResolveReturn(ctx context.Context, returnID string, actor order.Actor, approve bool, reason string) (*order.ReturnRequest, error) {
	ret, err := s.repo.GetReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	readStatus := ret.Status

	now := time.Now().UTC()
	if approve {
		if err := ret.Approve(actor, now); err != nil {
			return nil, err
		}
		// Approval and processing land in the same write; the refund is
		// initiated only after that write commits.
		if err := ret.BeginProcessing(); err != nil {
			return nil, err
		}
	} else {
		if err := ret.Reject(actor, reason, now); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateReturnRequest(ctx, ret, readStatus); err != nil {
		return nil, err
	}

	if approve {
		s.initiateRefund(ctx, ret.ID, ret.RefundAmount)
	}

	o, err := s.repo.GetOrder(ctx, ret.OrderID)
	if err == nil {
		event := "return_rejected"
		if approve {
			event = "return_approved"
		}
		s.notify(ctx, o.CustomerID, order.RoleCustomer, event, map[string]any{
			"order_id": o.ID, "return_code": ret.ReturnCode, "reason": reason,
		})
	}
	return ret, nil
}

// PaymentOutcome is the asynchronous result of a capture or refund reported
// back by the payment collaborator.
type PaymentOutcome struct {
	// Kind is "capture" or "refund".
	Kind string
	// ReferenceID is the order id for captures and cancellation refunds,
	// or the return request id for return refunds.
	ReferenceID string
	Success     bool
}

// RecordPaymentOutcome folds an external settlement event into the order's
// payment status. Refund confirmations complete any processing return.
func (s *OrderService) RecordPaymentOutcome(ctx context.Context, outcome PaymentOutcome) error {
	switch outcome.Kind {
	case "capture":
		_, err := s.mutateOrder(ctx, outcome.ReferenceID, func(o *order.Order) error {
			if outcome.Success {
				o.PaymentStatus = order.PaymentCompleted
			} else {
				o.PaymentStatus = order.PaymentFailed
			}
			o.UpdatedAt = time.Now().UTC()
			return nil
		})
		return err

	case "refund":
		orderID := outcome.ReferenceID

		// A refund reference may be a return request rather than an order.
		if ret, err := s.repo.GetReturnRequest(ctx, outcome.ReferenceID); err == nil {
			if !outcome.Success {
				s.logger.ErrorContext(ctx, "return refund failed externally", "return_id", ret.ID)
				return nil
			}
			readStatus := ret.Status
			if err := ret.Complete(); err != nil {
				return err
			}
			if err := s.repo.UpdateReturnRequest(ctx, ret, readStatus); err != nil {
				return err
			}
			orderID = ret.OrderID
		} else if !errors.Is(err, order.ErrNotFound) {
			return err
		}

		if !outcome.Success {
			s.logger.ErrorContext(ctx, "refund failed externally", "order_id", orderID)
			return nil
		}
		_, err := s.mutateOrder(ctx, orderID, func(o *order.Order) error {
			o.PaymentStatus = order.PaymentRefunded
			o.UpdatedAt = time.Now().UTC()
			return nil
		})
		return err

	default:
		return fmt.Errorf("%w: unknown payment outcome kind %q", order.ErrInvalidArgument, outcome.Kind)
	}
}

// ListReturnsForOrder exposes an order's return requests, e.g. for support
// staff looking a return up independently of the order document.
func (s *OrderService) ListReturnsForOrder(ctx context.Context, orderID string) ([]order.ReturnRequest, error) {
	return s.repo.ListReturnsByOrder(ctx, orderID)
}

// GetOrderForAdmin returns the full order with no ownership check.
func (s *OrderService) GetOrderForAdmin(ctx context.Context, orderID string) (*order.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// GetOrderForCustomer returns the full order, all slices included.
func (s *OrderService) GetOrderForCustomer(ctx context.Context, orderID, customerID string) (*order.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, fmt.Errorf("%w: order %s does not belong to customer %s", order.ErrForbidden, orderID, customerID)
	}
	return o, nil
}

// VendorOrderView is a vendor-scoped projection: the vendor's own slice
// plus the shared shipping and customer info, nothing from other vendors.
type VendorOrderView struct {
	OrderID         string              `json:"order_id"`
	OrderCode       string              `json:"order_code"`
	CustomerID      string              `json:"customer_id"`
	ShippingAddress order.Address       `json:"shipping_address"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentStatus   order.PaymentStatus `json:"payment_status"`
	Slice           order.VendorSlice   `json:"slice"`
	History         []order.StatusEntry `json:"history"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func vendorView(o *order.Order, slice *order.VendorSlice) *VendorOrderView {
	var history []order.StatusEntry
	for _, e := range o.StatusHistory {
		if e.VendorID == "" || e.VendorID == slice.VendorID {
			history = append(history, e)
		}
	}
	return &VendorOrderView{
		OrderID:         o.ID,
		OrderCode:       o.OrderCode,
		CustomerID:      o.CustomerID,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		Slice:           *slice,
		History:         history,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// GetOrderForVendor returns only the vendor's slice of the order.
func (s *OrderService) GetOrderForVendor(ctx context.Context, orderID, vendorID string) (*VendorOrderView, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	slice, err := o.Slice(vendorID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s has no slice for vendor %s", order.ErrForbidden, orderID, vendorID)
	}
	return vendorView(o, slice), nil
}

// ListOrdersForVendor pages through the vendor's orders, newest first,
// each projected down to the vendor's own view.
func (s *OrderService) ListOrdersForVendor(ctx context.Context, vendorID string, filter store.ListOrdersFilter) (*store.CursorPage, error) {
	page, err := s.repo.ListOrdersByVendor(ctx, vendorID, filter)
	if err != nil {
		return nil, err
	}

	if orders, ok := page.Items.([]order.Order); ok {
		views := make([]VendorOrderView, 0, len(orders))
		for i := range orders {
			slice, err := orders[i].Slice(vendorID)
			if err != nil {
				continue
			}
			views = append(views, *vendorView(&orders[i], slice))
		}
		page.Items = views
	}
	return page, nil
}

// capturePayment, initiateRefund, and notify are the post-commit side
// effects. They run detached from the request's cancellation, and a failure
// is logged and queued for retry, never propagated to the caller whose
// transition already committed.

func (s *OrderService) capturePayment(ctx context.Context, orderID string, amount decimal.Decimal) {
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.CapturePayment(ctx, orderID, amount); err != nil {
		s.logger.ErrorContext(ctx, "payment capture failed, queueing retry", "order_id", orderID, "error", err)
		s.enqueue(ctx, effects.Envelope{Kind: effects.KindCapture, ReferenceID: orderID, Amount: amount})
	}
}

func (s *OrderService) initiateRefund(ctx context.Context, referenceID string, amount decimal.Decimal) {
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.InitiateRefund(ctx, referenceID, amount); err != nil {
		s.logger.ErrorContext(ctx, "refund initiation failed, queueing retry", "reference_id", referenceID, "error", err)
		s.enqueue(ctx, effects.Envelope{Kind: effects.KindRefund, ReferenceID: referenceID, Amount: amount})
	}
}

func (s *OrderService) notify(ctx context.Context, actorID string, role order.Role, event string, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)
	if err := s.notifier.Notify(ctx, actorID, role, event, payload); err != nil {
		s.logger.ErrorContext(ctx, "notification failed, queueing retry", "actor_id", actorID, "event", event, "error", err)
		s.enqueue(ctx, effects.Envelope{Kind: effects.KindNotify, ReferenceID: actorID, ActorID: actorID, Role: role, Event: event, Payload: payload})
	}
}

func (s *OrderService) enqueue(ctx context.Context, env effects.Envelope) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, env); err != nil {
		s.logger.ErrorContext(ctx, "side effect enqueue failed", "kind", env.Kind, "reference_id", env.ReferenceID, "error", err)
	}
}

// EffectHandler adapts the service's collaborators to the retry queue.
func (s *OrderService) EffectHandler() effects.Handler {
	return func(ctx context.Context, env effects.Envelope) error {
		switch env.Kind {
		case effects.KindCapture:
			return s.payments.CapturePayment(ctx, env.ReferenceID, env.Amount)
		case effects.KindRefund:
			return s.payments.InitiateRefund(ctx, env.ReferenceID, env.Amount)
		case effects.KindNotify:
			return s.notifier.Notify(ctx, env.ActorID, env.Role, env.Event, env.Payload)
		default:
			return fmt.Errorf("unknown side effect kind %q", env.Kind)
		}
	}
}
