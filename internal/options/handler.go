package options

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
)

// Tabs of the options page.
const (
	TabGeneral     = "general"
	TabUserColumns = "users_page_columns"
)

type optionsService interface {
	Snapshot(ctx context.Context) (Options, error)
	SaveFieldNames(ctx context.Context, raw string) error
	SaveExportColumns(ctx context.Context, raw string) error
	Reset(ctx context.Context, referer string) (bool, error)
}

// Params groups Handler dependencies.
type Params struct {
	Logger    *slog.Logger
	Service   optionsService
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	RBAC      rbac.Middleware
	Audit     shared.Auditor
}

// Handler serves the options page.
type Handler struct {
	logger    *slog.Logger
	service   optionsService
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	audit     shared.Auditor
}

// NewHandler builds Handler instance.
func NewHandler(p Params) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   p.Service,
		templates: p.Templates,
		csrf:      p.CSRF,
		rbac:      p.RBAC,
		audit:     p.Audit,
	}
}

// MountRoutes registers option routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin("/login"))
		r.Use(h.rbac.RequireAny(rbac.CapManageOptions))
		r.Get("/admin/options", h.show)
		r.Post("/admin/options", h.save)
		r.Post("/admin/options/reset", h.reset)
	})
}

type optionsPage struct {
	Tab           string
	FieldNames    []string
	ExportColumns []string
	Errors        map[string]string
	Referer       string
}

func tabFrom(raw string) string {
	if raw == TabUserColumns {
		return TabUserColumns
	}
	return TabGeneral
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, tabFrom(r.URL.Query().Get("tab")), nil, http.StatusOK)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, tab string, errs map[string]string, status int) {
	opts, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("load options", slog.Any("error", err))
		h.render(w, r, "pages/error.html", "Error", map[string]string{"Message": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	if errs == nil {
		errs = map[string]string{}
	}
	h.render(w, r, "pages/options.html", "Options", optionsPage{
		Tab:           tab,
		FieldNames:    opts.FieldNames,
		ExportColumns: opts.ExportColumns,
		Errors:        errs,
		Referer:       ResetReferer,
	}, status)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	tab := tabFrom(r.PostFormValue("tab"))
	var err error
	switch tab {
	case TabUserColumns:
		err = h.service.SaveExportColumns(r.Context(), r.PostFormValue("export_columns"))
	default:
		err = h.service.SaveFieldNames(r.Context(), r.PostFormValue("member_fields"))
	}
	if err != nil {
		if errors.Is(err, members.ErrDuplicateField) {
			h.renderPage(w, r, tab, map[string]string{"member_fields": "Each field name may appear only once."}, http.StatusUnprocessableEntity)
			return
		}
		if errors.Is(err, members.ErrReservedField) {
			h.renderPage(w, r, tab, map[string]string{"member_fields": shared.UserSafeMessage(err)}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("save options", slog.String("tab", tab), slog.Any("error", err))
		h.renderPage(w, r, tab, map[string]string{"general": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.record(r, "options.saved", map[string]any{"tab": tab})
	h.redirectWithFlash(w, r, "/admin/options?tab="+tab, "success", "Settings saved.")
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	done, err := h.service.Reset(r.Context(), r.PostFormValue("referer"))
	if err != nil {
		h.logger.Error("reset options", slog.Any("error", err))
		h.renderPage(w, r, TabGeneral, map[string]string{"general": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	if !done {
		h.redirectWithFlash(w, r, "/admin/options", "error", "Options were not reset.")
		return
	}
	h.record(r, "options.reset", nil)
	h.redirectWithFlash(w, r, "/admin/options", "success", "Options reset to defaults.")
}

func (h *Handler) record(r *http.Request, action string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actorID, _ := shared.CurrentMemberID(r.Context())
	if err := h.audit.Record(r.Context(), shared.AuditLog{ActorID: actorID, Action: action, Entity: "options", Meta: meta}); err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	if err := h.templates.Page(w, r, h.csrf, template, title, data, status); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
