package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"claimgate/internal/product"
	"claimgate/pkg/platform/httputil"
	"claimgate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/product-mocks.go -package=mocks Service

// Service defines the product lookup used by the handler.
type Service interface {
	Get(ctx context.Context, code string) (product.Info, error)
}

// Handler serves product info.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts product endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/products/{code}", h.HandleGet)
}

// HandleGet handles GET /products/{code}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")
	info, err := h.service.Get(ctx, code)
	if err != nil {
		h.logger.WarnContext(ctx, "product lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"code", code,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}
