package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/orders", handler.CreateOrder)
	r.Get("/orders/{id}", handler.GetOrder)
	r.Post("/orders/{id}/status", handler.ApplyStatusTransition)
	r.Post("/orders/{id}/cancellation", handler.RequestCancellation)
	r.Post("/orders/{id}/cancellation/approve", handler.ApproveCancellation)
	r.Post("/orders/{id}/cancellation/reject", handler.RejectCancellation)
	r.Post("/orders/{id}/returns", handler.RequestReturn)
	r.Get("/orders/{id}/returns", handler.ListReturns)
	r.Post("/returns/{id}/approve", handler.ApproveReturn)
	r.Post("/returns/{id}/reject", handler.RejectReturn)
	r.Post("/payments/outcomes", handler.RecordPaymentOutcome)
	r.Get("/vendors/{vendorID}/orders", handler.ListVendorOrders)

	return r
}
