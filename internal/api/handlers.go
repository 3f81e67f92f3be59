package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devxankit/neargud-sub001/internal/order"
	"github.com/devxankit/neargud-sub001/internal/service"
	"github.com/devxankit/neargud-sub001/internal/store"
)

// Handler translates HTTP requests into Order Service calls and taxonomy
// errors back into status codes. Authentication is upstream; the actor
// arrives as trusted X-Actor-ID / X-Actor-Role headers.
type Handler struct {
	orders *service.OrderService
}

func NewHandler(orders *service.OrderService) *Handler {
	return &Handler{orders: orders}
}

func actorFrom(r *http.Request) order.Actor {
	return order.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Role: order.Role(r.Header.Get("X-Actor-Role")),
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]service.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		CustomerID:      req.CustomerID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	actor := actorFrom(r)

	switch actor.Role {
	case order.RoleCustomer:
		o, err := h.orders.GetOrderForCustomer(r.Context(), orderID, actor.ID)
		if err != nil {
			writeTaxonomyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case order.RoleVendor:
		view, err := h.orders.GetOrderForVendor(r.Context(), orderID, actor.ID)
		if err != nil {
			writeTaxonomyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case order.RoleAdmin:
		o, err := h.orders.GetOrderForAdmin(r.Context(), orderID)
		if err != nil {
			writeTaxonomyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	default:
		writeError(w, http.StatusForbidden, "forbidden", "unknown actor role")
	}
}

func (h *Handler) ApplyStatusTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.ApplyStatusTransition(r.Context(), chi.URLParam(r, "id"),
		req.VendorID, order.Status(req.Status), actorFrom(r), req.Note)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	var req CancellationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.RequestCancellation(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason, req.Note)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) ApproveCancellation(w http.ResponseWriter, r *http.Request) {
	var req ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.ResolveCancellation(r.Context(), chi.URLParam(r, "id"), actorFrom(r), true, req.Note)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RejectCancellation(w http.ResponseWriter, r *http.Request) {
	var req ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	o, err := h.orders.ResolveCancellation(r.Context(), chi.URLParam(r, "id"), actorFrom(r), false, req.RejectionReason)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ret, err := h.orders.RequestReturn(r.Context(), chi.URLParam(r, "id"),
		req.VendorID, req.ProductIDs, req.Reason, actorFrom(r))
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := h.orders.ListReturnsForOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, returns)
}

func (h *Handler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	var req ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ret, err := h.orders.ResolveReturn(r.Context(), chi.URLParam(r, "id"), actorFrom(r), true, req.Note)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (h *Handler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	var req ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ret, err := h.orders.ResolveReturn(r.Context(), chi.URLParam(r, "id"), actorFrom(r), false, req.RejectionReason)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (h *Handler) RecordPaymentOutcome(w http.ResponseWriter, r *http.Request) {
	var req PaymentOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	err := h.orders.RecordPaymentOutcome(r.Context(), service.PaymentOutcome{
		Kind:        req.Kind,
		ReferenceID: req.ReferenceID,
		Success:     req.Success,
	})
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListVendorOrders(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")
	actor := actorFrom(r)
	if actor.Role != order.RoleAdmin && !(actor.Role == order.RoleVendor && actor.ID == vendorID) {
		writeError(w, http.StatusForbidden, "forbidden", "vendor listings are vendor/admin scoped")
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := store.ListOrdersFilter{
		Status: order.Status(q.Get("status")),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "from must be an RFC3339 timestamp")
			return
		}
		filter.From = sql.NullTime{Time: from, Valid: true}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "to must be an RFC3339 timestamp")
			return
		}
		filter.To = sql.NullTime{Time: to, Valid: true}
	}

	page, err := h.orders.ListOrdersForVendor(r.Context(), vendorID, filter)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func writeTaxonomyError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, order.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, order.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, order.ErrInvalidTransition):
		status, code = http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, order.ErrInvalidFinancials):
		status, code = http.StatusUnprocessableEntity, "invalid_financials"
	case errors.Is(err, order.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, order.ErrDuplicateRequest):
		status, code = http.StatusConflict, "duplicate_request"
	case errors.Is(err, order.ErrRequestAlreadyResolved):
		status, code = http.StatusConflict, "request_already_resolved"
	case errors.Is(err, order.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, order.ErrPaymentValidationFailed):
		status, code = http.StatusPaymentRequired, "payment_validation_failed"
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "error", err)
	}

	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
