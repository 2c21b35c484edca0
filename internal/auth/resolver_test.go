package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/settings"
)

type plainVerifier struct{}

func (plainVerifier) Verify(plaintext, hash string, _ int64) bool { return plaintext == hash }

type failingStore struct{ members.Store }

func (failingStore) FindByEmail(context.Context, string) (*members.Member, error) {
	return nil, errors.New("connection refused")
}

func newResolver() *Resolver {
	repo := members.NewMemoryRepository(
		&members.Member{ID: 1, Login: "alice", Email: "alice@club.nl", PasswordHash: "secret"},
		&members.Member{ID: 2, Login: "bob", Email: "bob@club.nl", PasswordHash: "hunter2"},
		&members.Member{ID: 3, Login: "Jos\u00e9", Email: "jose@club.nl", PasswordHash: "ole"},
		&members.Member{ID: 4, Login: "bob@example.com", Email: "robert@club.nl", PasswordHash: "builder"},
	)
	return NewResolver(repo, plainVerifier{})
}

func TestAuthenticateEmptyCredentials(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	_, err := r.Authenticate(ctx, "", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyUsername)
	assert.ErrorIs(t, err, ErrEmptyPassword)
	assert.Len(t, Failures(err), 2)

	_, err = r.Authenticate(ctx, "   ", "x", nil)
	assert.ErrorIs(t, err, ErrEmptyUsername)
	assert.NotErrorIs(t, err, ErrEmptyPassword)

	_, err = r.Authenticate(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)
	assert.Equal(t, "Password field is empty.", Failures(err)[0].Message)
}

func TestAuthenticateByEmail(t *testing.T) {
	m, err := newResolver().Authenticate(context.Background(), "alice@club.nl", "secret", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)
}

func TestAuthenticateFallsBackToLogin(t *testing.T) {
	m, err := newResolver().Authenticate(context.Background(), "bob", "hunter2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.ID)
}

func TestAuthenticateEmailShapedLoginFallsBackToLogin(t *testing.T) {
	m, err := newResolver().Authenticate(context.Background(), "bob@example.com", "builder", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	_, err := newResolver().Authenticate(context.Background(), "alice@club.nl", "nope", nil)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, "The password you entered is invalid.", err.Error())
}

func TestAuthenticateUnknownUserNamesLogin(t *testing.T) {
	_, err := newResolver().Authenticate(context.Background(), "ghost@club.nl", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Equal(t, "Either the email/username or password you entered is invalid. The email you entered was: ghost@club.nl", err.Error())
}

func TestAuthenticateNormalizesLogin(t *testing.T) {
	m, err := newResolver().Authenticate(context.Background(), "Jose\u0301", "ole", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.ID)
}

func TestAuthenticateDecomposedLoginAfterRegister(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	repo := members.NewMemoryRepository()
	svc := members.NewService(repo, members.NewCatalog(store), store)

	decomposed := "Jose\u0301"
	registered, err := svc.Register(ctx, members.RegisterInput{
		Login:    decomposed,
		Email:    "Jose\u0301@club.nl",
		Password: "pw123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", registered.Login)

	m, err := NewResolver(repo, nil).Authenticate(ctx, decomposed, "pw123456", nil)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, m.ID)

	m, err = NewResolver(repo, nil).Authenticate(ctx, "Jos\u00e9@club.nl", "pw123456", nil)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, m.ID)
}

func TestAuthenticatePreResolvedSkipsLookup(t *testing.T) {
	r := NewResolver(failingStore{}, plainVerifier{})
	pre := &members.Member{ID: 9, Login: "pre", PasswordHash: "pw"}

	m, err := r.Authenticate(context.Background(), "anything", "pw", pre)
	require.NoError(t, err)
	assert.Same(t, pre, m)

	_, err = r.Authenticate(context.Background(), "anything", "bad", pre)
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestAuthenticateStoreErrorIsNotFailure(t *testing.T) {
	_, err := NewResolver(failingStore{}, plainVerifier{}).Authenticate(context.Background(), "alice", "secret", nil)
	require.Error(t, err)
	assert.False(t, IsFailure(err))
	assert.Contains(t, err.Error(), "auth: find by email")
}

func TestBcryptVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	v := BcryptVerifier{}
	assert.True(t, v.Verify("correct-horse", string(hash), 1))
	assert.False(t, v.Verify("wrong", string(hash), 1))
	assert.False(t, v.Verify("correct-horse", "", 1))
}

func TestPipelineStages(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	var seen *members.Member
	audit := StageFunc(func(_ context.Context, current *members.Member, _, _ string) (*members.Member, error) {
		seen = current
		return current, nil
	})
	m, err := Pipeline{r.Stage(), audit}.Run(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.ID)
	assert.Equal(t, int64(2), seen.ID)

	blocked := &Failure{Code: "blocked", Message: "Account suspended."}
	deny := StageFunc(func(context.Context, *members.Member, string, string) (*members.Member, error) {
		return nil, blocked
	})
	_, err = Pipeline{r.Stage(), deny}.Run(ctx, "bob", "hunter2")
	assert.ErrorIs(t, err, blocked)

	override := StageFunc(func(context.Context, *members.Member, string, string) (*members.Member, error) {
		return &members.Member{ID: 1, PasswordHash: "secret"}, nil
	})
	m, err = Pipeline{override, r.Stage()}.Run(ctx, "whoever", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID, "a pre-resolved member is verified instead of looked up")

	_, err = Pipeline{}.Run(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, ErrUnknownUser)
}
