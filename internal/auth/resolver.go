package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/clubroster/clubroster/internal/members"
)

// Verifier checks a plaintext password against a stored hash.
type Verifier interface {
	Verify(plaintext, hash string, memberID int64) bool
}

// BcryptVerifier verifies bcrypt hashes.
type BcryptVerifier struct{}

// Verify reports whether plaintext matches hash.
func (BcryptVerifier) Verify(plaintext, hash string, _ int64) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Resolver authenticates a login that may be either an email address or a
// username.
type Resolver struct {
	store    members.Store
	verifier Verifier
}

// NewResolver constructs a Resolver.
func NewResolver(store members.Store, verifier Verifier) *Resolver {
	if verifier == nil {
		verifier = BcryptVerifier{}
	}
	return &Resolver{store: store, verifier: verifier}
}

// Authenticate resolves login and checks password. When preResolved is
// non-nil it is verified instead of looking the login up.
//
// Empty credentials yield ErrEmptyUsername and/or ErrEmptyPassword joined
// together. An unmatched login yields an unknown_user Failure naming it;
// a bad password yields ErrWrongPassword. Store errors are returned wrapped
// and are not failures.
func (r *Resolver) Authenticate(ctx context.Context, login, password string, preResolved *members.Member) (*members.Member, error) {
	login = members.NormalizeLogin(login)

	var empty []error
	if login == "" {
		empty = append(empty, ErrEmptyUsername)
	}
	if password == "" {
		empty = append(empty, ErrEmptyPassword)
	}
	if len(empty) > 0 {
		return nil, errors.Join(empty...)
	}

	m := preResolved
	if m == nil {
		var err error
		m, err = r.lookup(ctx, login)
		if err != nil {
			return nil, err
		}
	}
	if m == nil {
		return nil, unknownUser(login)
	}
	if !r.verifier.Verify(password, m.PasswordHash, m.ID) {
		return nil, ErrWrongPassword
	}
	return m, nil
}

func (r *Resolver) lookup(ctx context.Context, login string) (*members.Member, error) {
	m, err := r.store.FindByEmail(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("auth: find by email: %w", err)
	}
	if m != nil {
		return m, nil
	}
	m, err = r.store.FindByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("auth: find by login: %w", err)
	}
	return m, nil
}

// Verifier exposes the password verifier.
func (r *Resolver) Verifier() Verifier {
	return r.verifier
}

// Stage adapts the resolver into a pipeline stage that verifies the member
// resolved so far, or looks the login up when there is none.
func (r *Resolver) Stage() Stage {
	return StageFunc(func(ctx context.Context, current *members.Member, login, password string) (*members.Member, error) {
		return r.Authenticate(ctx, login, password, current)
	})
}

// Stage is one step of an authentication pipeline. It receives the member
// resolved by earlier stages (possibly nil) and returns the member to pass
// on, or an error to reject the attempt.
type Stage interface {
	Authenticate(ctx context.Context, current *members.Member, login, password string) (*members.Member, error)
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, current *members.Member, login, password string) (*members.Member, error)

func (f StageFunc) Authenticate(ctx context.Context, current *members.Member, login, password string) (*members.Member, error) {
	return f(ctx, current, login, password)
}

// Pipeline runs stages in order. The first error stops it.
type Pipeline []Stage

// Run authenticates login through every stage.
func (p Pipeline) Run(ctx context.Context, login, password string) (*members.Member, error) {
	var current *members.Member
	for _, stage := range p {
		m, err := stage.Authenticate(ctx, current, login, password)
		if err != nil {
			return nil, err
		}
		current = m
	}
	if current == nil {
		return nil, unknownUser(members.NormalizeLogin(login))
	}
	return current, nil
}
