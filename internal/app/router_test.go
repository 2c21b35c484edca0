package app

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubroster/clubroster/internal/auth"
	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/observability"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
)

func newTestRouter(t *testing.T) (http.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "clubroster_session", time.Hour, false)
	csrf := shared.NewCSRFManager("secret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	repo := members.NewMemoryRepository(&members.Member{ID: 1, Login: "anna", Email: "anna@club.nl", Role: members.RoleMember})
	rbacMW := rbac.Middleware{Service: rbac.NewService(repo)}
	resolver := auth.NewResolver(repo, nil)
	authHandler := auth.NewHandler(auth.HandlerParams{
		Service:   auth.NewService(auth.Pipeline{resolver.Stage()}, nil, nil, repo),
		Members:   repo,
		Templates: templates,
		Sessions:  sessions,
		CSRF:      csrf,
		RBAC:      rbacMW,
	})
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	h := NewRouter(RouterParams{
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    csrf,
		RBACMiddleware: rbacMW,
		AuthHandler:    authHandler,
		Metrics:        observability.NewMetrics(),
	})
	return h, sessions
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestStaticAssets(t *testing.T) {
	h, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
	assert.Empty(t, res.Header().Values("Set-Cookie"), "assets do not start sessions")
}

func TestHomeSetsSessionCookieAndSecurityHeaders(t *testing.T) {
	h, sessions := newTestRouter(t)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Club Roster")
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	cookie := res.Result().Cookies()
	require.NotEmpty(t, cookie)
	assert.Equal(t, sessions.CookieName(), cookie[0].Name)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	h, _ := newTestRouter(t)
	form := url.Values{"log": {"anna"}, "pwd": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestLoginFormRoundTripWithCSRF(t *testing.T) {
	h, sessions := newTestRouter(t)

	getRes := httptest.NewRecorder()
	h.ServeHTTP(getRes, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, getRes.Code)
	var sessionCookie *http.Cookie
	for _, c := range getRes.Result().Cookies() {
		if c.Name == sessions.CookieName() {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	body := getRes.Body.String()
	marker := `name="csrf_token" value="`
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0)
	token := body[i+len(marker):]
	token = token[:strings.Index(token, `"`)]

	form := url.Values{"log": {""}, "pwd": {""}, "csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(sessionCookie)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Email/Username field is empty.")
}
