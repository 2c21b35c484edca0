package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clubroster/clubroster/internal/members"
)

// PasswordWriter stores new password hashes.
type PasswordWriter interface {
	UpdatePassword(ctx context.Context, memberID int64, hash string) error
}

// Service wraps authentication business rules.
type Service struct {
	pipeline  Pipeline
	verifier  Verifier
	sessions  SessionRepository
	passwords PasswordWriter
}

// NewService constructs a Service running pipeline for logins.
func NewService(pipeline Pipeline, verifier Verifier, sessions SessionRepository, passwords PasswordWriter) *Service {
	if verifier == nil {
		verifier = BcryptVerifier{}
	}
	return &Service{pipeline: pipeline, verifier: verifier, sessions: sessions, passwords: passwords}
}

// Login authenticates login and password through the pipeline.
func (s *Service) Login(ctx context.Context, login, password string) (*members.Member, error) {
	return s.pipeline.Run(ctx, login, password)
}

// ChangePassword replaces m's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, m *members.Member, current, next string) error {
	if current == "" {
		return ErrEmptyPassword
	}
	if !s.verifier.Verify(current, m.PasswordHash, m.ID) {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.passwords.UpdatePassword(ctx, m.ID, string(hash))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, memberID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.CreateSession(ctx, id, memberID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.DeleteSession(ctx, id)
}
