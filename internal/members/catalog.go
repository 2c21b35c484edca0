package members

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clubroster/clubroster/internal/settings"
)

// DefaultFieldNames seeds the catalog on install and reset.
var DefaultFieldNames = []string{"first_name", "last_name", "phone", "team"}

// Catalog resolves the configured custom member fields.
type Catalog struct {
	store settings.Store
}

// NewCatalog constructs a Catalog reading from store.
func NewCatalog(store settings.Store) *Catalog {
	return &Catalog{store: store}
}

// FieldNames returns the configured field names in order, or an empty
// slice when none are configured. Later duplicates are dropped.
func (c *Catalog) FieldNames(ctx context.Context) ([]string, error) {
	names, err := settings.Strings(ctx, c.store, settings.KeyMemberFields)
	if err != nil {
		return nil, fmt.Errorf("members: catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// SetFieldNames persists names after trimming and dropping blanks.
func (c *Catalog) SetFieldNames(ctx context.Context, names []string) error {
	cleaned, err := NormalizeFieldNames(names)
	if err != nil {
		return err
	}
	return settings.SetStrings(ctx, c.store, settings.KeyMemberFields, cleaned)
}

// NormalizeFieldNames trims names, drops blanks and rejects duplicates and
// built-in names.
func NormalizeFieldNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if IsBuiltinField(name) {
			return nil, &ReservedFieldError{Name: name}
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}
		seen[name] = struct{}{}
		cleaned = append(cleaned, name)
	}
	return cleaned, nil
}

// SplitFieldList splits a comma or newline separated list of names.
func SplitFieldList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FieldLabel turns a field name such as first_name into "First Name".
func FieldLabel(name string) string {
	// Casers are stateful and not safe to share between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
