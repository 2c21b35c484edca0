// Package membershttp serves the registration, profile and roster export pages.
package membershttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/observability"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
	"github.com/clubroster/clubroster/jobs"
)

type memberService interface {
	Catalog() *members.Catalog
	Export(ctx context.Context, w io.Writer, req members.ExportRequest) (members.ExportResult, error)
	ExportColumns(ctx context.Context) ([]string, error)
	Register(ctx context.Context, in members.RegisterInput) (*members.Member, error)
	Get(ctx context.Context, id int64) (*members.Member, error)
	UpdateProfile(ctx context.Context, memberID int64, values map[string]string) error
}

// ProfileTitler resolves the title of the profile page.
type ProfileTitler interface {
	ProfileTitle(ctx context.Context, title, memberParam string, viewerCanEditUsers bool) (string, error)
}

// WelcomeEnqueuer schedules the welcome mail for new members.
type WelcomeEnqueuer interface {
	EnqueueWelcome(ctx context.Context, payload jobs.WelcomePayload) error
}

// Params groups the Handler dependencies.
type Params struct {
	Logger    *slog.Logger
	Service   memberService
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Sessions  *shared.SessionManager
	RBAC      rbac.Middleware
	Titles    ProfileTitler
	Welcome   WelcomeEnqueuer
	Audit     shared.Auditor
	Metrics   *observability.Metrics
}

// Handler serves registration, profile and roster export pages.
type Handler struct {
	logger    *slog.Logger
	service   memberService
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
	titles    ProfileTitler
	welcome   WelcomeEnqueuer
	audit     shared.Auditor
	metrics   *observability.Metrics
	validator *validator.Validate
	now       func() time.Time
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
		sessions:  p.Sessions,
		rbac:      p.RBAC,
		titles:    p.Titles,
		welcome:   p.Welcome,
		audit:     p.Audit,
		metrics:   p.Metrics,
		validator: shared.NewValidator(),
		now:       time.Now,
	}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/register", h.showRegister)
	r.Post("/register", h.register)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin("/login"))
		r.Get("/profile", h.showProfile)
		r.Post("/profile", h.updateProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin("/login"))
		r.Use(h.rbac.RequireAny(rbac.CapEditUsers))
		r.Get("/admin/members/export", h.showExport)
		r.Post("/admin/members/export", h.export)
	})
}

type formErrors map[string]string

// FieldInput is one catalog field rendered as a text input.
type FieldInput struct {
	Name  string
	Label string
	Value string
}

type registerForm struct {
	Username        string `form:"username" validate:"required,min=3,max=60"`
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required,min=8"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

type registerPage struct {
	Form   registerForm
	Fields []FieldInput
	Errors formErrors
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.CurrentMemberID(r.Context()); ok {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	fields, err := h.fieldInputs(r.Context(), nil)
	if err != nil {
		h.fail(w, r, "load catalog", err)
		return
	}
	h.render(w, r, "pages/register.html", "Register", registerPage{Fields: fields, Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	fields, err := h.fieldInputs(r.Context(), firstFormValues(r.PostForm))
	if err != nil {
		h.fail(w, r, "load catalog", err)
		return
	}
	page := registerPage{Form: registerForm{Username: form.Username, Email: form.Email}, Fields: fields}

	if err := h.validator.Struct(form); err != nil {
		page.Errors = shared.ValidationMessages(err)
		h.render(w, r, "pages/register.html", "Register", page, http.StatusUnprocessableEntity)
		return
	}

	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Name] = f.Value
	}
	m, err := h.service.Register(r.Context(), members.RegisterInput{
		Login:    form.Username,
		Email:    form.Email,
		Password: form.Password,
		Fields:   values,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, members.ErrDuplicate) {
			status = http.StatusConflict
		} else {
			h.logger.Error("register member", slog.Any("error", err))
		}
		page.Errors = formErrors{"general": shared.UserSafeMessage(err)}
		h.render(w, r, "pages/register.html", "Register", page, status)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.sessions.Renew(r.Context(), sess); err != nil {
			h.logger.Warn("renew session", slog.Any("error", err))
		}
		sess.SetUser(m.ID)
	}
	if h.welcome != nil {
		payload := jobs.WelcomePayload{MemberID: m.ID, Login: m.Login, Email: m.Email, Name: m.FullName()}
		if err := h.welcome.EnqueueWelcome(r.Context(), payload); err != nil {
			h.logger.Warn("enqueue welcome mail", slog.Int64("member_id", m.ID), slog.Any("error", err))
		}
	}
	h.record(r.Context(), m.ID, "member.registered", m.ID, nil)
	h.redirectWithFlash(w, r, "/profile", "success", "Welcome to the club! Your account has been created.")
}

type profilePage struct {
	Member *members.Member
	Fields []FieldInput
	Action string
	Errors formErrors
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	m, title, ok := h.profileTarget(w, r)
	if !ok {
		return
	}
	fields, err := h.fieldInputs(r.Context(), m.Fields)
	if err != nil {
		h.fail(w, r, "load catalog", err)
		return
	}
	h.render(w, r, "pages/profile.html", title, profilePage{Member: m, Fields: fields, Action: profileAction(r), Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	m, title, ok := h.profileTarget(w, r)
	if !ok {
		return
	}
	fields, err := h.fieldInputs(r.Context(), firstFormValues(r.PostForm))
	if err != nil {
		h.fail(w, r, "load catalog", err)
		return
	}
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Name] = f.Value
	}
	if err := h.service.UpdateProfile(r.Context(), m.ID, values); err != nil {
		h.logger.Error("update profile", slog.Int64("member_id", m.ID), slog.Any("error", err))
		h.render(w, r, "pages/profile.html", title, profilePage{Member: m, Fields: fields, Action: profileAction(r), Errors: formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	actor, _ := shared.CurrentMemberID(r.Context())
	h.record(r.Context(), actor, "member.profile_updated", m.ID, nil)
	h.redirectWithFlash(w, r, profileAction(r), "success", "Profile saved.")
}

// profileTarget resolves whose profile is shown: the viewer's own, or the
// one named by ?member= when the viewer may edit users.
func (h *Handler) profileTarget(w http.ResponseWriter, r *http.Request) (*members.Member, string, bool) {
	viewerID, _ := shared.CurrentMemberID(r.Context())
	canEdit, err := h.canEditUsers(r, viewerID)
	if err != nil {
		h.fail(w, r, "resolve capabilities", err)
		return nil, "", false
	}

	memberParam := strings.TrimSpace(r.URL.Query().Get("member"))
	targetID := viewerID
	if memberParam != "" && canEdit {
		id, err := strconv.ParseInt(memberParam, 10, 64)
		if err != nil || id <= 0 {
			h.notFound(w, r)
			return nil, "", false
		}
		targetID = id
	}

	m, err := h.service.Get(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, members.ErrNotFound) {
			h.notFound(w, r)
			return nil, "", false
		}
		h.fail(w, r, "load profile", err)
		return nil, "", false
	}

	title := "Profile"
	if h.titles != nil {
		resolved, err := h.titles.ProfileTitle(r.Context(), title, memberParam, canEdit)
		if err != nil {
			h.logger.Warn("profile title", slog.Any("error", err))
		} else {
			title = resolved
		}
	}
	return m, title, true
}

func (h *Handler) canEditUsers(r *http.Request, viewerID int64) (bool, error) {
	if v := view.ViewerFromContext(r.Context()); v != nil {
		return v.Can(rbac.CapEditUsers), nil
	}
	if h.rbac.Service == nil {
		return false, nil
	}
	return h.rbac.Service.Can(r.Context(), viewerID, rbac.CapEditUsers)
}

func profileAction(r *http.Request) string {
	if member := r.URL.Query().Get("member"); member != "" {
		return "/profile?member=" + member
	}
	return "/profile"
}

// FilterInput is one row of the export filter table.
type FilterInput struct {
	Name    string
	Label   string
	Enabled bool
	Needle  string
}

type exportPage struct {
	Catalog  []string
	Selected []string
	Filters  []FilterInput
	Errors   formErrors
}

func (h *Handler) showExport(w http.ResponseWriter, r *http.Request) {
	page, err := h.exportPage(r.Context())
	if err != nil {
		h.fail(w, r, "load export page", err)
		return
	}
	h.render(w, r, "pages/export.html", "Export Members", page, http.StatusOK)
}

func (h *Handler) exportPage(ctx context.Context) (exportPage, error) {
	catalog, err := h.service.Catalog().FieldNames(ctx)
	if err != nil {
		return exportPage{}, err
	}
	selected, err := h.service.ExportColumns(ctx)
	if err != nil {
		return exportPage{}, err
	}
	filterable := append([]string{members.FieldUsername, members.FieldEmail, members.FieldDisplayName}, catalog...)
	filters := make([]FilterInput, 0, len(filterable))
	for _, name := range filterable {
		filters = append(filters, FilterInput{Name: name, Label: members.FieldLabel(name)})
	}
	return exportPage{Catalog: catalog, Selected: selected, Filters: filters, Errors: formErrors{}}, nil
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req := ExportRequestFromForm(r.PostForm)

	var buf bytes.Buffer
	res, err := h.service.Export(r.Context(), &buf, req)
	if err != nil {
		h.fail(w, r, "export members", err)
		return
	}
	filename := fmt.Sprintf("members-%s.csv", h.now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write export", slog.Any("error", err))
		return
	}
	h.metrics.ObserveExport(res.Rows)
	actor, _ := shared.CurrentMemberID(r.Context())
	h.record(r.Context(), actor, "members.exported", 0, map[string]any{
		"columns": res.Columns,
		"rows":    res.Rows,
		"filter":  req.Filter,
	})
}

// ExportRequestFromForm builds an export request from the export form.
// A checked filter_<field> box enables the filter; the needle is read from
// the <field> input. The field_names key marks the selection as supplied
// even when it is empty.
func ExportRequestFromForm(form map[string][]string) members.ExportRequest {
	req := members.ExportRequest{Filter: members.FilterSpec{}}
	for key := range form {
		field, ok := strings.CutPrefix(key, "filter_")
		if !ok || field == "" {
			continue
		}
		req.Filter[field] = first(form[field])
	}
	if raw, ok := form["field_names"]; ok {
		req.FieldsSupplied = true
		req.Fields = members.SplitFieldList(first(raw))
	}
	return req
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (h *Handler) fieldInputs(ctx context.Context, values map[string]string) ([]FieldInput, error) {
	names, err := h.service.Catalog().FieldNames(ctx)
	if err != nil {
		return nil, err
	}
	inputs := make([]FieldInput, 0, len(names))
	for _, name := range names {
		inputs = append(inputs, FieldInput{Name: name, Label: members.FieldLabel(name), Value: strings.TrimSpace(values[name])})
	}
	return inputs, nil
}

func (h *Handler) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if h.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actorID, Action: action, Entity: "member", Meta: meta}
	if entityID > 0 {
		entry.EntityID = strconv.FormatInt(entityID, 10)
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	if err := h.templates.Page(w, r, h.csrf, template, title, data, status); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/error.html", "Not Found", map[string]string{"Message": "That member does not exist."}, http.StatusNotFound)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	h.render(w, r, "pages/error.html", "Error", map[string]string{"Message": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// firstFormValues flattens form values to the first value per key, matching
// r.PostFormValue semantics.
func firstFormValues(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k := range form {
		out[k] = form.Get(k)
	}
	return out
}
