package telemetry

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

// ContextHandler is a slog.Handler that stamps every record with the chi
// request id carried in the context, so one request's log lines can be
// correlated across the service and the side-effect queue.
type ContextHandler struct {
	slog.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		r.AddAttrs(slog.String("request_id", reqID))
	}
	return h.Handler.Handle(ctx, r)
}

// NewContextHandler decorates h with request-id extraction.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// InitLogger installs a JSON slog logger decorated with request ids as the
// process default and returns it.
func InitLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(NewContextHandler(handler))
	slog.SetDefault(logger)
	return logger
}
