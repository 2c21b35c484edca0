package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clubroster/clubroster/internal/platform/db"
)

// SessionRepository records login sessions for auditing.
type SessionRepository interface {
	CreateSession(ctx context.Context, id string, memberID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements SessionRepository using PostgreSQL.
type PGRepository struct {
	db  db.DBTX
	now func() time.Time
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn, now: time.Now}
}

// CreateSession persists a new login session.
func (r *PGRepository) CreateSession(ctx context.Context, id string, memberID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sessions (id, member_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET member_id = EXCLUDED.member_id, expires_at = EXCLUDED.expires_at`,
		id,
		memberID,
		pgtype.Timestamptz{Time: r.now().UTC(), Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	if err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

var _ SessionRepository = (*PGRepository)(nil)
