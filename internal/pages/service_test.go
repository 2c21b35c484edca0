package pages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubroster/clubroster/internal/members"
)

type memoryPages struct {
	pages  []Page
	nextID int64
}

func (m *memoryPages) PagesContaining(_ context.Context, needle string) ([]Page, error) {
	var out []Page
	for _, p := range m.pages {
		if strings.Contains(p.Content, needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryPages) FindBySlug(_ context.Context, slug string) (*Page, error) {
	for _, p := range m.pages {
		if p.Slug == slug {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryPages) FindByID(_ context.Context, id int64) (*Page, error) {
	for _, p := range m.pages {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryPages) Insert(_ context.Context, p Page) (*Page, error) {
	for _, existing := range m.pages {
		if existing.Slug == p.Slug {
			return nil, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.pages = append(m.pages, p)
	return &p, nil
}

func (m *memoryPages) DeleteContaining(_ context.Context, needle string) (int64, error) {
	kept := m.pages[:0]
	var n int64
	for _, p := range m.pages {
		if strings.Contains(p.Content, needle) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	m.pages = kept
	return n, nil
}

type countingResetter struct{ calls int }

func (c *countingResetter) ResetDefaults(context.Context) error {
	c.calls++
	return nil
}

func newTestService(repo *memoryPages) (*Service, *countingResetter) {
	lookup := members.NewMemoryRepository(
		&members.Member{ID: 5, Login: "bob", DisplayName: "Bob B."},
		&members.Member{ID: 6, Login: "carl", Fields: map[string]string{"first_name": "Carl"}},
	)
	reset := &countingResetter{}
	return NewService(repo, lookup, reset, nil), reset
}

func TestInstallCreatesMissingPages(t *testing.T) {
	repo := &memoryPages{}
	repo.pages = []Page{{ID: 100, Slug: "members-login", Title: "Sign in", Content: "Welcome " + TagLogin, Status: StatusPublish}}
	repo.nextID = 100
	svc, reset := newTestService(repo)

	created, err := svc.Install(context.Background())
	require.NoError(t, err)
	slugs := make([]string, 0, len(created))
	for _, p := range created {
		slugs = append(slugs, p.Slug)
		assert.Equal(t, StatusPublish, p.Status)
	}
	assert.Equal(t, []string{"register", "profile", "change-password", "lost-password"}, slugs)
	assert.Equal(t, 1, reset.calls)

	created, err = svc.Install(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created, "install is idempotent")
	assert.Equal(t, 2, reset.calls)
}

func TestUninstallRemovesProfilePages(t *testing.T) {
	repo := &memoryPages{}
	svc, _ := newTestService(repo)
	_, err := svc.Install(context.Background())
	require.NoError(t, err)

	n, err := svc.Uninstall(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ids, err := svc.IDsWithTag(context.Background(), TagProfile)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = svc.IDsWithTag(context.Background(), TagLogin)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestTitle(t *testing.T) {
	repo := &memoryPages{pages: []Page{
		{ID: 1, Slug: "profile", Title: "Profile", Content: TagProfile, Status: StatusPublish},
		{ID: 2, Slug: "login", Title: "Login", Content: TagLogin, Status: StatusPublish},
	}}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	cases := []struct {
		name    string
		pageID  int64
		title   string
		member  string
		canEdit bool
		want    string
	}{
		{"other page", 2, "Login", "5", true, "Login"},
		{"no member param", 1, "Profile", "", true, "Profile"},
		{"no capability", 1, "Profile", "5", false, "Profile"},
		{"display name", 1, "Profile", "5", true, "Bob B."},
		{"full name fallback", 1, "Profile", "6", true, "Carl"},
		{"unknown member", 1, "Profile", "77", true, "Profile"},
		{"not a number", 1, "Profile", "bob", true, "Profile"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Title(ctx, tc.pageID, tc.title, tc.member, tc.canEdit)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRouteFor(t *testing.T) {
	route, ok := RouteFor("intro " + TagLostPassword + " then " + TagRegister)
	assert.True(t, ok)
	assert.Equal(t, "/login", route)

	route, ok = RouteFor(TagChangePassword)
	assert.True(t, ok)
	assert.Equal(t, "/change-password", route)

	_, ok = RouteFor("plain content")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	repo := &memoryPages{pages: []Page{
		{ID: 1, Slug: "profile", Content: TagProfile, Status: StatusPublish},
		{ID: 2, Slug: "draft", Content: TagLogin, Status: "draft"},
	}}
	svc, _ := newTestService(repo)

	route, ok, err := svc.Resolve(context.Background(), "profile")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/profile", route)

	_, ok, err = svc.Resolve(context.Background(), "draft")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = svc.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
