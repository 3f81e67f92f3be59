package api

import "github.com/devxankit/neargud-sub001/internal/order"

type CreateOrderRequest struct {
	CustomerID      string               `json:"customer_id"`
	Items           []CreateOrderItemDTO `json:"items"`
	ShippingAddress order.Address        `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
}

type CreateOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type TransitionRequest struct {
	VendorID string `json:"vendor_id"`
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
}

type CancellationRequestDTO struct {
	Reason string `json:"reason"`
	Note   string `json:"note,omitempty"`
}

type ResolutionRequest struct {
	Note            string `json:"note,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type ReturnRequestDTO struct {
	VendorID   string   `json:"vendor_id"`
	ProductIDs []string `json:"product_ids"`
	Reason     string   `json:"reason"`
}

type PaymentOutcomeRequest struct {
	Kind        string `json:"kind"`
	ReferenceID string `json:"reference_id"`
	Success     bool   `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
