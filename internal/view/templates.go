// Package view renders the HTML pages from the embedded templates.
package view

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// Viewer describes the logged in member for navigation and notices.
type Viewer struct {
	ID           int64
	Name         string
	Capabilities []string
}

// Can reports whether the viewer holds capability.
func (v *Viewer) Can(capability string) bool {
	if v == nil {
		return false
	}
	for _, c := range v.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type viewerContextKey struct{}

// ContextWithViewer stores the viewer in context.
func ContextWithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

// ViewerFromContext returns the viewer, or nil for anonymous requests.
func ViewerFromContext(ctx context.Context) *Viewer {
	v, _ := ctx.Value(viewerContextKey{}).(*Viewer)
	return v
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Viewer      *Viewer
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"join": strings.Join,
		"contains": func(list []string, s string) bool {
			for _, v := range list {
				if v == s {
					return true
				}
			}
			return false
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Page renders name for the current request, filling the CSRF token,
// pending flash and viewer from the request context.
func (e *Engine) Page(w http.ResponseWriter, r *http.Request, csrf *shared.CSRFManager, name, title string, data any, status int) error {
	sess := shared.SessionFromContext(r.Context())
	var (
		token string
		flash *shared.FlashMessage
	)
	if sess != nil {
		if csrf != nil {
			token, _ = csrf.EnsureToken(r.Context(), sess)
		}
		flash = sess.PopFlash()
	}
	viewData := TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Viewer:      ViewerFromContext(r.Context()),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.Render(w, name, viewData)
}
