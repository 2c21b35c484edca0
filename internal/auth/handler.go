package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/observability"
	"github.com/clubroster/clubroster/internal/platform/httpx"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
)

const defaultRedirect = "/profile"

// memberLookup loads the logged in member.
type memberLookup interface {
	FindByID(ctx context.Context, id int64) (*members.Member, error)
}

// HandlerParams groups Handler dependencies.
type HandlerParams struct {
	Logger      *slog.Logger
	Service     *Service
	Members     memberLookup
	Templates   *view.Engine
	Sessions    *shared.SessionManager
	CSRF        *shared.CSRFManager
	RBAC        rbac.Middleware
	Metrics     *observability.Metrics
	RememberTTL time.Duration
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	members        memberLookup
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	rbac           rbac.Middleware
	metrics        *observability.Metrics
	rememberTTL    time.Duration
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(p HandlerParams) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        p.Service,
		members:        p.Members,
		templates:      p.Templates,
		sessionManager: p.Sessions,
		csrfManager:    p.CSRF,
		rbac:           p.RBAC,
		metrics:        p.Metrics,
		rememberTTL:    p.RememberTTL,
		validator:      shared.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin("/login"))
		r.Get("/change-password", h.showChangePassword)
		r.Post("/change-password", h.handleChangePassword)
	})
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/session", h.apiSession)
		r.Post("/login", h.apiLogin)
	})
}

type loginPageData struct {
	Already    bool
	Name       string
	LoggedOut  bool
	Login      string
	Remember   bool
	RedirectTo string
	Errors     map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{
		LoggedOut:  r.URL.Query().Get("logout") == "success",
		Remember:   true,
		RedirectTo: safeRedirect(r.URL.Query().Get("redirect_to")),
		Errors:     map[string]string{},
	}
	if m := h.currentMember(r); m != nil {
		data.Already = true
		data.Name = m.FullName()
	}
	h.render(w, r, "pages/login.html", "Login", data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	login := r.PostFormValue("log")
	password := r.PostFormValue("pwd")
	remember := r.PostFormValue("rememberme") != ""
	redirectTo := safeRedirect(r.PostFormValue("redirect_to"))

	m, err := h.service.Login(r.Context(), login, password)
	if err != nil {
		h.metrics.ObserveLogin(observability.LoginFailure)
		data := loginPageData{Login: login, Remember: remember, RedirectTo: redirectTo, Errors: loginErrors(err)}
		if !IsFailure(err) {
			h.logger.Error("login", slog.Any("error", err))
			h.render(w, r, "pages/login.html", "Login", data, http.StatusInternalServerError)
			return
		}
		h.render(w, r, "pages/login.html", "Login", data, http.StatusBadRequest)
		return
	}

	if err := h.startSession(r, m, remember); err != nil {
		h.logger.Error("start session", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveLogin(observability.LoginSuccess)
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

func (h *Handler) startSession(r *http.Request, m *members.Member, remember bool) error {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return shared.ErrSessionMissing
	}
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		return err
	}
	sess.SetUser(m.ID)
	if remember && h.rememberTTL > 0 {
		sess.SetTTL(h.rememberTTL)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + m.FullName() + "."})
	if err := h.service.RegisterSession(r.Context(), sess.ID, m.ID, h.sessionManager.ExpiresAt(sess), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	return nil
}

// loginErrors maps failures to the form field they concern.
func loginErrors(err error) map[string]string {
	out := make(map[string]string)
	failures := Failures(err)
	if len(failures) == 0 {
		out["general"] = shared.UserSafeMessage(err)
		return out
	}
	for _, f := range failures {
		switch f.Code {
		case CodeEmptyUsername:
			out["log"] = f.Message
		case CodeEmptyPassword:
			out["pwd"] = f.Message
		default:
			out["general"] = f.Message
		}
	}
	return out
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/login?logout=success", http.StatusSeeOther)
}

type changePasswordForm struct {
	Current string `form:"current_password" validate:"required"`
	New     string `form:"new_password" validate:"required,min=8"`
	Confirm string `form:"confirm_password" validate:"required,eqfield=New"`
}

type changePasswordPage struct {
	Errors map[string]string
}

func (h *Handler) showChangePassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/change_password.html", "Change Password", changePasswordPage{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	m := h.currentMember(r)
	if m == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	form := changePasswordForm{
		Current: r.PostFormValue("current_password"),
		New:     r.PostFormValue("new_password"),
		Confirm: r.PostFormValue("confirm_password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, "pages/change_password.html", "Change Password", changePasswordPage{Errors: shared.ValidationMessages(err)}, http.StatusUnprocessableEntity)
		return
	}
	if err := h.service.ChangePassword(r.Context(), m, form.Current, form.New); err != nil {
		if IsFailure(err) {
			h.render(w, r, "pages/change_password.html", "Change Password", changePasswordPage{Errors: map[string]string{"current_password": shared.UserSafeMessage(err)}}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("change password", slog.Int64("member_id", m.ID), slog.Any("error", err))
		h.render(w, r, "pages/change_password.html", "Change Password", changePasswordPage{Errors: map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
			h.logger.Warn("renew session", slog.Any("error", err))
		}
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Your password has been changed."})
	}
	http.Redirect(w, r, defaultRedirect, http.StatusSeeOther)
}

type apiLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type apiMember struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type apiSessionResponse struct {
	CSRFToken string     `json:"csrf_token"`
	Member    *apiMember `json:"member,omitempty"`
}

func (h *Handler) apiSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := apiSessionResponse{CSRFToken: token}
	if m := h.currentMember(r); m != nil {
		resp.Member = &apiMember{ID: m.ID, Login: m.Login, DisplayName: m.FullName()}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req apiLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	m, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		h.metrics.ObserveLogin(observability.LoginFailure)
		failures := Failures(err)
		if len(failures) == 0 {
			h.logger.Error("api login", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		fieldErrs := make([]httpx.FieldError, 0, len(failures))
		for _, f := range failures {
			fieldErrs = append(fieldErrs, httpx.FieldError{Code: f.Code, Field: failureField(f.Code), Message: f.Message})
		}
		httpx.ProblemWithErrors(w, http.StatusUnauthorized, "Login Failed", "", fieldErrs)
		return
	}
	if err := h.startSession(r, m, req.Remember); err != nil {
		h.logger.Error("start session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveLogin(observability.LoginSuccess)
	httpx.JSON(w, http.StatusOK, apiMember{ID: m.ID, Login: m.Login, DisplayName: m.FullName()})
}

func failureField(code string) string {
	switch code {
	case CodeEmptyUsername:
		return "login"
	case CodeEmptyPassword, CodeWrongPassword:
		return "password"
	}
	return ""
}

func (h *Handler) currentMember(r *http.Request) *members.Member {
	id, ok := shared.CurrentMemberID(r.Context())
	if !ok || h.members == nil {
		return nil
	}
	m, err := h.members.FindByID(r.Context(), id)
	if err != nil {
		h.logger.Warn("load current member", slog.Any("error", err))
		return nil
	}
	return m
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	if err := h.templates.Page(w, r, h.csrfManager, template, title, data, status); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

// safeRedirect keeps redirects on this site.
func safeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return defaultRedirect
	}
	return target
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
