// Package options serves the administrator settings: the member field
// catalog, the default export columns and the reset to defaults.
package options

import (
	"context"
	"fmt"
	"strings"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/settings"
)

// RefererPrefix marks reset requests that originate from this service's
// own forms.
const RefererPrefix = "clubroster__"

// ResetReferer is the referer value posted by the options page.
const ResetReferer = RefererPrefix + "options"

// Options is a snapshot of the stored settings.
type Options struct {
	FieldNames    []string
	ExportColumns []string
}

// Service reads and writes options.
type Service struct {
	catalog *members.Catalog
	store   settings.Store
}

// NewService constructs a Service.
func NewService(catalog *members.Catalog, store settings.Store) *Service {
	return &Service{catalog: catalog, store: store}
}

// Snapshot returns the current options.
func (s *Service) Snapshot(ctx context.Context) (Options, error) {
	names, err := s.catalog.FieldNames(ctx)
	if err != nil {
		return Options{}, err
	}
	columns, err := settings.Strings(ctx, s.store, settings.KeyExportColumns)
	if err != nil {
		return Options{}, err
	}
	return Options{FieldNames: names, ExportColumns: columns}, nil
}

// SaveFieldNames replaces the catalog from a comma or newline separated
// list. Duplicate names are rejected with members.ErrDuplicateField.
func (s *Service) SaveFieldNames(ctx context.Context, raw string) error {
	return s.catalog.SetFieldNames(ctx, members.SplitFieldList(raw))
}

// SaveExportColumns replaces the default export columns.
func (s *Service) SaveExportColumns(ctx context.Context, raw string) error {
	return settings.SetStrings(ctx, s.store, settings.KeyExportColumns, members.SplitFieldList(raw))
}

// Reset restores defaults when referer starts with RefererPrefix. It
// reports whether the reset ran.
func (s *Service) Reset(ctx context.Context, referer string) (bool, error) {
	if !strings.HasPrefix(referer, RefererPrefix) {
		return false, nil
	}
	if err := s.ResetDefaults(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ResetDefaults restores the default catalog and clears export columns.
func (s *Service) ResetDefaults(ctx context.Context) error {
	if err := s.catalog.SetFieldNames(ctx, members.DefaultFieldNames); err != nil {
		return fmt.Errorf("options: reset catalog: %w", err)
	}
	if err := s.store.Delete(ctx, settings.KeyExportColumns); err != nil {
		return fmt.Errorf("options: reset export columns: %w", err)
	}
	return nil
}
