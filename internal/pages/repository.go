package pages

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clubroster/clubroster/internal/platform/db"
)

const pageColumns = `id, slug, title, content, status, created_at`

// Repository persists pages.
type Repository interface {
	PagesContaining(ctx context.Context, needle string) ([]Page, error)
	FindBySlug(ctx context.Context, slug string) (*Page, error)
	FindByID(ctx context.Context, id int64) (*Page, error)
	// Insert stores p and returns it with its id, or nil when the slug is taken.
	Insert(ctx context.Context, p Page) (*Page, error)
	DeleteContaining(ctx context.Context, needle string) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

var _ Repository = (*PGRepository)(nil)

// PagesContaining lists pages whose content contains needle, by id.
func (r *PGRepository) PagesContaining(ctx context.Context, needle string) ([]Page, error) {
	rows, err := r.db.Query(ctx, `SELECT `+pageColumns+` FROM pages WHERE strpos(content, $1) > 0 ORDER BY id`, needle)
	if err != nil {
		return nil, fmt.Errorf("pages: list: %w", err)
	}
	defer rows.Close()
	var out []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("pages: list scan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pages: list: %w", err)
	}
	return out, nil
}

// FindBySlug returns the page with slug, or nil.
func (r *PGRepository) FindBySlug(ctx context.Context, slug string) (*Page, error) {
	return r.findOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE slug = $1`, slug)
}

// FindByID returns the page with id, or nil.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Page, error) {
	return r.findOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Page, error) {
	p, err := scanPage(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pages: find: %w", err)
	}
	return p, nil
}

// Insert stores p unless its slug exists.
func (r *PGRepository) Insert(ctx context.Context, p Page) (*Page, error) {
	if p.Status == "" {
		p.Status = StatusPublish
	}
	err := r.db.QueryRow(ctx, `INSERT INTO pages (slug, title, content, status) VALUES ($1, $2, $3, $4)
ON CONFLICT (slug) DO NOTHING RETURNING id, created_at`, p.Slug, p.Title, p.Content, p.Status).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pages: insert %s: %w", p.Slug, err)
	}
	return &p, nil
}

// DeleteContaining removes pages whose content contains needle.
func (r *PGRepository) DeleteContaining(ctx context.Context, needle string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM pages WHERE strpos(content, $1) > 0`, needle)
	if err != nil {
		return 0, fmt.Errorf("pages: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPage(row pgx.Row) (*Page, error) {
	var p Page
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Content, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
