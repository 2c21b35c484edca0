package avatar

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubroster/clubroster/internal/members"
)

type idOnly struct{ id int64 }

func (i idOnly) MemberID() int64 { return i.id }

type brokenStore struct{ members.Store }

func (brokenStore) FindByID(context.Context, int64) (*members.Member, error) {
	return nil, errors.New("db down")
}

func newTestResolver() *Resolver {
	return NewResolver(members.NewMemoryRepository(
		&members.Member{ID: 1, Login: "anna", Email: "anna@club.nl", Fields: map[string]string{members.MetaProfilePicture: "http://x/pic.png"}},
		&members.Member{ID: 2, Login: "bob", Email: "bob@club.nl"},
		&members.Member{ID: 3, Login: "eve", Email: "eve@club.nl", Fields: map[string]string{members.MetaProfilePicture: "javascript:alert(1)"}},
	))
}

func TestResolveIdentifierKinds(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	for name, identifier := range map[string]any{
		"int":            1,
		"int32":          int32(1),
		"uint64":         uint64(1),
		"numeric string": "1",
		"member id":      idOnly{id: 1},
		"member":         &members.Member{ID: 1},
		"email":          "anna@club.nl",
		"email any case": "ANNA@club.nl",
	} {
		t.Run(name, func(t *testing.T) {
			av, err := r.Resolve(ctx, identifier, "", "")
			require.NoError(t, err)
			assert.Equal(t, "http://x/pic.png", av.URL)
		})
	}
}

func TestResolveUnknownUsesFallbackMarkup(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	av, err := r.Resolve(ctx, "ghost@club.nl", "", `<img src="/default.png">`)
	require.NoError(t, err)
	assert.Empty(t, av.URL)
	assert.Equal(t, `<img src="/default.png">`, av.Markup)

	av, err = r.Resolve(ctx, 1, "<img>", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "<img>", av.Markup)

	for _, identifier := range []any{nil, 3.5, idOnly{}, (*members.Member)(nil), 99} {
		av, err := r.Resolve(ctx, identifier, "", "fb")
		require.NoError(t, err)
		assert.Empty(t, av.URL)
		assert.Equal(t, "fb", av.Markup)
	}
}

func TestResolveOutOfRangeUnsignedIsNoIdentifier(t *testing.T) {
	repo := members.NewMemoryRepository(
		&members.Member{ID: -1, Login: "minus", Email: "minus@club.nl", Fields: map[string]string{members.MetaProfilePicture: "http://x/minus.png"}},
		&members.Member{ID: math.MinInt64, Login: "min", Email: "min@club.nl", Fields: map[string]string{members.MetaProfilePicture: "http://x/min.png"}},
	)
	r := NewResolver(repo)

	for _, identifier := range []any{uint64(math.MaxUint64), uint64(1 << 63), uint(math.MaxUint)} {
		av, err := r.Resolve(context.Background(), identifier, "", "fb")
		require.NoError(t, err)
		assert.Empty(t, av.URL)
		assert.Equal(t, "fb", av.Markup)
	}

	_, ok := numericID(uint64(1 << 63))
	assert.False(t, ok)
	id, ok := numericID(uint64(math.MaxInt64))
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), id)
}

func TestResolveMemberWithoutPicture(t *testing.T) {
	av, err := newTestResolver().Resolve(context.Background(), 2, "", "")
	require.NoError(t, err)
	assert.Empty(t, av.URL)
}

func TestResolveDropsUnsafeURL(t *testing.T) {
	av, err := newTestResolver().Resolve(context.Background(), 3, "", "")
	require.NoError(t, err)
	assert.Empty(t, av.URL)
}

func TestResolveStoreError(t *testing.T) {
	av, err := NewResolver(brokenStore{}).Resolve(context.Background(), 1, "", "fb")
	require.Error(t, err)
	assert.Equal(t, "fb", av.Markup)
}

func TestCleanURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example/a.png", cleanURL(" https://cdn.example/a.png "))
	assert.Equal(t, "/uploads/a.png", cleanURL("/uploads/a.png"))
	assert.Empty(t, cleanURL("//evil.example/a.png"))
	assert.Empty(t, cleanURL("data:image/png;base64,AAAA"))
	assert.Empty(t, cleanURL("http:///nohost"))
}
