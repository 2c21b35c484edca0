package avatar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/platform/httpx"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
)

// UploadStore issues upload URLs and confirms finished uploads.
type UploadStore interface {
	PresignUpload(ctx context.Context, memberID int64, contentType string) (Upload, error)
	ConfirmUpload(ctx context.Context, memberID int64, key string) (publicURL string, err error)
}

// MetaWriter stores the profile_picture meta value.
type MetaWriter interface {
	SetMeta(ctx context.Context, memberID int64, key, value string) error
}

// HandlerParams groups Handler dependencies.
type HandlerParams struct {
	Logger     *slog.Logger
	Resolver   *Resolver
	Uploads    UploadStore
	Meta       MetaWriter
	RBAC       rbac.Middleware
	DefaultURL string
}

// Handler serves avatar redirects and upload URLs.
type Handler struct {
	logger     *slog.Logger
	resolver   *Resolver
	uploads    UploadStore
	meta       MetaWriter
	rbac       rbac.Middleware
	defaultURL string
}

// NewHandler constructs a Handler.
func NewHandler(p HandlerParams) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		resolver:   p.Resolver,
		uploads:    p.Uploads,
		meta:       p.Meta,
		rbac:       p.RBAC,
		defaultURL: p.DefaultURL,
	}
}

// MountRoutes registers avatar routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/members/{id}/avatar", h.show)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin("/login"))
		r.Post("/profile/avatar", h.upload)
		r.Post("/profile/avatar/confirm", h.confirm)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	target := h.defaultURL
	av, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "id"), "", h.defaultURL)
	if err != nil {
		h.logger.Error("resolve avatar", slog.String("id", chi.URLParam(r, "id")), slog.Any("error", err))
	} else if av.URL != "" {
		target = av.URL
	}
	if target == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type uploadRequest struct {
	ContentType string `json:"content_type"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	memberID, ok := shared.CurrentMemberID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if h.uploads == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "avatar uploads are not configured")
		return
	}
	var req uploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	up, err := h.uploads.PresignUpload(r.Context(), memberID, req.ContentType)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "", []httpx.FieldError{
				{Code: "unsupported_type", Field: "content_type", Message: "Upload a PNG, JPEG, GIF or WebP image."},
			})
			return
		}
		h.logger.Error("presign avatar upload", slog.Int64("member_id", memberID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, up)
}

type confirmRequest struct {
	Key string `json:"key"`
}

// confirm stores the picture as profile_picture once its object exists.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	memberID, ok := shared.CurrentMemberID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if h.uploads == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "avatar uploads are not configured")
		return
	}
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	publicURL, err := h.uploads.ConfirmUpload(r.Context(), memberID, req.Key)
	switch {
	case errors.Is(err, ErrInvalidKey):
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "", []httpx.FieldError{
			{Code: "invalid_key", Field: "key", Message: "The key does not belong to one of your uploads."},
		})
		return
	case errors.Is(err, ErrUnsupportedType):
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "", []httpx.FieldError{
			{Code: "unsupported_type", Field: "key", Message: "Upload a PNG, JPEG, GIF or WebP image."},
		})
		return
	case errors.Is(err, ErrUploadMissing):
		httpx.Problem(w, http.StatusConflict, "Conflict", "the picture has not been uploaded yet")
		return
	case err != nil:
		h.logger.Error("confirm avatar upload", slog.Int64("member_id", memberID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.meta.SetMeta(r.Context(), memberID, members.MetaProfilePicture, publicURL); err != nil {
		h.logger.Error("store profile picture", slog.Int64("member_id", memberID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{members.MetaProfilePicture: publicURL})
}
