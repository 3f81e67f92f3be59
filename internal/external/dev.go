package external

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/devxankit/neargud-sub001/internal/order"
)

// Dev implementations of the payment and notification collaborators. They
// accept everything and log the call; real gateway clients replace them in
// deployment wiring.

type DevPayments struct {
	Logger *slog.Logger
}

func (p *DevPayments) ValidatePaymentMethod(ctx context.Context, method string) error {
	p.Logger.InfoContext(ctx, "payment method validated", "method", method)
	return nil
}

func (p *DevPayments) CapturePayment(ctx context.Context, orderID string, amount decimal.Decimal) error {
	p.Logger.InfoContext(ctx, "payment capture initiated", "order_id", orderID, "amount", amount)
	return nil
}

func (p *DevPayments) InitiateRefund(ctx context.Context, referenceID string, amount decimal.Decimal) error {
	p.Logger.InfoContext(ctx, "refund initiated", "reference_id", referenceID, "amount", amount)
	return nil
}

type DevNotifier struct {
	Logger *slog.Logger
}

func (n *DevNotifier) Notify(ctx context.Context, actorID string, role order.Role, event string, payload map[string]any) error {
	n.Logger.InfoContext(ctx, "notification dispatched", "actor_id", actorID, "role", role, "event", event)
	return nil
}
