package pages

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routeResolver interface {
	Resolve(ctx context.Context, slug string) (string, bool, error)
}

// Handler dispatches page slugs to the flow their tag names.
type Handler struct {
	logger  *slog.Logger
	service routeResolver
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service routeResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the page route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/p/{slug}", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	route, ok, err := h.service.Resolve(r.Context(), slug)
	if err != nil {
		h.logger.Error("resolve page", slog.String("slug", slug), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if q := r.URL.RawQuery; q != "" {
		route += "?" + q
	}
	http.Redirect(w, r, route, http.StatusFound)
}
