package members

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clubroster/clubroster/internal/settings"
)

// Service handles member business logic.
type Service struct {
	repo     Repository
	catalog  *Catalog
	settings settings.Store
}

// NewService builds Service instance.
func NewService(repo Repository, catalog *Catalog, store settings.Store) *Service {
	return &Service{repo: repo, catalog: catalog, settings: store}
}

// Catalog exposes the field catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// ExportResult summarises a finished export.
type ExportResult struct {
	Columns []string
	Rows    int
}

// Export writes the members matching req.Filter as CSV to w.
//
// Columns come from req.Fields when supplied (and are persisted as the new
// default selection), otherwise from the persisted selection; an empty
// result falls back to the whole catalog.
func (s *Service) Export(ctx context.Context, w io.Writer, req ExportRequest) (ExportResult, error) {
	columns, err := s.exportColumns(ctx, req)
	if err != nil {
		return ExportResult{}, err
	}
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	matched := Filter(all, req.Filter)
	if err := WriteCSV(w, matched, columns); err != nil {
		return ExportResult{}, fmt.Errorf("members: write export: %w", err)
	}
	return ExportResult{Columns: columns, Rows: len(matched)}, nil
}

func (s *Service) exportColumns(ctx context.Context, req ExportRequest) ([]string, error) {
	var selected []string
	if req.FieldsSupplied {
		selected = req.Fields
		if selected == nil {
			selected = []string{}
		}
		if err := settings.SetStrings(ctx, s.settings, settings.KeyExportColumns, selected); err != nil {
			return nil, err
		}
	} else {
		persisted, err := settings.Strings(ctx, s.settings, settings.KeyExportColumns)
		if err != nil {
			return nil, err
		}
		selected = persisted
	}
	if len(selected) > 0 {
		return selected, nil
	}
	catalog, err := s.catalog.FieldNames(ctx)
	if err != nil {
		return nil, err
	}
	return ResolveColumns(selected, catalog), nil
}

// ExportColumns returns the persisted column selection for display.
func (s *Service) ExportColumns(ctx context.Context) ([]string, error) {
	return settings.Strings(ctx, s.settings, settings.KeyExportColumns)
}

// SetExportColumns replaces the persisted column selection.
func (s *Service) SetExportColumns(ctx context.Context, columns []string) error {
	return settings.SetStrings(ctx, s.settings, settings.KeyExportColumns, columns)
}

// RegisterInput is the validated registration form.
type RegisterInput struct {
	Login    string
	Email    string
	Password string
	Fields   map[string]string
}

// Register creates a member, keeping only catalog fields.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Member, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("members: hash password: %w", err)
	}
	fields, err := s.catalogValues(ctx, in.Fields)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, Registration{
		Login:        NormalizeLogin(in.Login),
		Email:        NormalizeLogin(in.Email),
		PasswordHash: string(hash),
		Fields:       fields,
	})
}

// Get returns the member with id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*Member, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// UpdateProfile stores the catalog field values for a member.
func (s *Service) UpdateProfile(ctx context.Context, memberID int64, values map[string]string) error {
	fields, err := s.catalogValues(ctx, values)
	if err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, memberID, fields)
}

func (s *Service) catalogValues(ctx context.Context, values map[string]string) (map[string]string, error) {
	names, err := s.catalog.FieldNames(ctx)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := values[name]; ok {
			fields[name] = strings.TrimSpace(v)
		}
	}
	return fields, nil
}
