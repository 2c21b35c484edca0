package members

import "context"

// Store is the record store port. Lookups return (nil, nil) when nothing
// matches; errors are reserved for storage failures.
type Store interface {
	FindByID(ctx context.Context, id int64) (*Member, error)
	FindByEmail(ctx context.Context, email string) (*Member, error)
	FindByLogin(ctx context.Context, login string) (*Member, error)
	ListAll(ctx context.Context) ([]*Member, error)
	Meta(ctx context.Context, memberID int64, key string) (string, error)
}

// Writer persists member changes.
type Writer interface {
	Create(ctx context.Context, reg Registration) (*Member, error)
	UpdateFields(ctx context.Context, memberID int64, fields map[string]string) error
	SetMeta(ctx context.Context, memberID int64, key, value string) error
	UpdatePassword(ctx context.Context, memberID int64, hash string) error
}

// Repository is the full persistence surface used by the service.
type Repository interface {
	Store
	Writer
}
