package app

import (
	"io/fs"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clubroster/clubroster/internal/auth"
	"github.com/clubroster/clubroster/internal/avatar"
	membershttp "github.com/clubroster/clubroster/internal/members/http"
	"github.com/clubroster/clubroster/internal/observability"
	"github.com/clubroster/clubroster/internal/options"
	"github.com/clubroster/clubroster/internal/pages"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
	"github.com/clubroster/clubroster/jobs"
	"github.com/clubroster/clubroster/web"
)

func init() {
	for ext, typ := range map[string]string{
		".css": "text/css; charset=utf-8",
		".svg": "image/svg+xml",
	} {
		if mime.TypeByExtension(ext) == "" {
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	RBACMiddleware     rbac.Middleware
	AuthHandler        *auth.Handler
	MembersHandler     *membershttp.Handler
	AvatarHandler      *avatar.Handler
	OptionsHandler     *options.Handler
	PagesHandler       *pages.Handler
	JobHandler         *jobs.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Probes, metrics and assets skip sessions and rate limits.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)
		r.Use(params.RBACMiddleware.LoadViewer)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if err := params.Templates.Page(w, r, params.CSRFManager, "pages/home.html", "Club Roster", nil, http.StatusOK); err != nil {
				logger.Error("render home", slog.Any("error", err))
			}
		})

		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(r)
		}
		if params.MembersHandler != nil {
			params.MembersHandler.MountRoutes(r)
		}
		if params.AvatarHandler != nil {
			params.AvatarHandler.MountRoutes(r)
		}
		if params.OptionsHandler != nil {
			params.OptionsHandler.MountRoutes(r)
		}
		if params.PagesHandler != nil {
			params.PagesHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
	})

	return r
}

// staticCacheHandler lets browsers cache static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
