package pages_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/clubroster/clubroster/internal/pages"
	_ "github.com/clubroster/clubroster/testing"
)

type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, slug string) (string, bool, error) {
	if slug == "broken" {
		return "", false, errors.New("db down")
	}
	route, ok := s[slug]
	return route, ok, nil
}

func TestPageRedirects(t *testing.T) {
	r := chi.NewRouter()
	pages.NewHandler(nil, stubResolver{"profile": "/profile", "lost-password": "/login"}).MountRoutes(r)

	cases := []struct {
		target   string
		code     int
		location string
	}{
		{"/p/profile?member=4", http.StatusFound, "/profile?member=4"},
		{"/p/lost-password", http.StatusFound, "/login"},
		{"/p/unknown", http.StatusNotFound, ""},
		{"/p/broken", http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, tc.target, nil))
		assert.Equal(t, tc.code, res.Code, tc.target)
		assert.Equal(t, tc.location, res.Header().Get("Location"), tc.target)
	}
}
