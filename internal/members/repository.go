package members

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clubroster/clubroster/internal/platform/db"
)

const memberColumns = `id, login, email, display_name, password_hash, role, registered_at`

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// FindByID fetches a member by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Member, error) {
	return r.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
}

// FindByEmail fetches a member by email, ignoring case.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Member, error) {
	if email == "" {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE lower(email) = lower($1)`, email)
}

// FindByLogin fetches a member by login name.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (*Member, error) {
	if login == "" {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE login = $1`, login)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("members: find: %w", err)
	}
	fields, err := r.metaFor(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.Fields = fields
	return m, nil
}

// ListAll returns every member ordered by id with meta values attached.
func (r *PGRepository) ListAll(ctx context.Context) ([]*Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("members: list: %w", err)
	}
	var list []*Member
	byID := make(map[int64]*Member)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("members: list scan: %w", err)
		}
		m.Fields = make(map[string]string)
		list = append(list, m)
		byID[m.ID] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members: list: %w", err)
	}

	metaRows, err := r.pool.Query(ctx, `SELECT member_id, meta_key, meta_value FROM member_meta ORDER BY member_id`)
	if err != nil {
		return nil, fmt.Errorf("members: list meta: %w", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := metaRows.Scan(&id, &key, &value); err != nil {
			return nil, fmt.Errorf("members: list meta scan: %w", err)
		}
		if m, ok := byID[id]; ok {
			m.Fields[key] = value
		}
	}
	if err := metaRows.Err(); err != nil {
		return nil, fmt.Errorf("members: list meta: %w", err)
	}
	return list, nil
}

// Meta returns a single meta value, or "" when unset.
func (r *PGRepository) Meta(ctx context.Context, memberID int64, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT meta_value FROM member_meta WHERE member_id = $1 AND meta_key = $2`, memberID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("members: meta %s: %w", key, err)
	}
	return value, nil
}

// Create inserts the member and its field values in one transaction.
func (r *PGRepository) Create(ctx context.Context, reg Registration) (*Member, error) {
	m := &Member{
		Login:        reg.Login,
		Email:        reg.Email,
		DisplayName:  reg.Login,
		PasswordHash: reg.PasswordHash,
		Role:         RoleMember,
		Fields:       make(map[string]string, len(reg.Fields)),
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var registered time.Time
		err := tx.QueryRow(ctx, `INSERT INTO members (login, email, display_name, password_hash, role) VALUES ($1, $2, $3, $4, $5) RETURNING id, registered_at`,
			m.Login, m.Email, m.DisplayName, m.PasswordHash, m.Role).Scan(&m.ID, &registered)
		if err != nil {
			return err
		}
		m.Registered = registered
		for _, key := range sortedKeys(reg.Fields) {
			if err := upsertMeta(ctx, tx, m.ID, key, reg.Fields[key]); err != nil {
				return err
			}
			m.Fields[key] = reg.Fields[key]
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("members: create: %w", err)
	}
	return m, nil
}

// UpdateFields upserts the given meta values in one transaction.
func (r *PGRepository) UpdateFields(ctx context.Context, memberID int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, key := range sortedKeys(fields) {
			if err := upsertMeta(ctx, tx, memberID, key, fields[key]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("members: update fields: %w", err)
	}
	return nil
}

// SetMeta upserts one meta value.
func (r *PGRepository) SetMeta(ctx context.Context, memberID int64, key, value string) error {
	if err := upsertMeta(ctx, r.pool, memberID, key, value); err != nil {
		return fmt.Errorf("members: set meta %s: %w", key, err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, memberID int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE members SET password_hash = $2 WHERE id = $1`, memberID, hash)
	if err != nil {
		return fmt.Errorf("members: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func upsertMeta(ctx context.Context, conn db.DBTX, memberID int64, key, value string) error {
	_, err := conn.Exec(ctx, `INSERT INTO member_meta (member_id, meta_key, meta_value) VALUES ($1, $2, $3)
ON CONFLICT (member_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`, memberID, key, value)
	return err
}

func (r *PGRepository) metaFor(ctx context.Context, memberID int64) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT meta_key, meta_value FROM member_meta WHERE member_id = $1`, memberID)
	if err != nil {
		return nil, fmt.Errorf("members: meta: %w", err)
	}
	defer rows.Close()
	fields := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("members: meta scan: %w", err)
		}
		fields[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members: meta: %w", err)
	}
	return fields, nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.Login, &m.Email, &m.DisplayName, &m.PasswordHash, &m.Role, &m.Registered); err != nil {
		return nil, err
	}
	return &m, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
