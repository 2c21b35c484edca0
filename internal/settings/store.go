// Package settings provides the key/value settings store backing the
// member field catalog and the persisted export column selection.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clubroster/clubroster/internal/platform/db"
)

// Well-known keys.
const (
	KeyMemberFields  = "member_fields"
	KeyExportColumns = "export_columns"
)

// Store is the settings port consumed by the rest of the service.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// PGStore implements Store on the settings table.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// Get returns the raw value for key. ok is false when the key is unset.
func (s *PGStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key.
func (s *PGStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an unset key is not an error.
func (s *PGStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	return nil
}

// Strings decodes a JSON string list stored under key. Unset or blank
// values yield an empty, non-nil slice.
func Strings(ctx context.Context, s Store, key string) ([]string, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" || raw == "null" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// SetStrings stores list as JSON under key.
func SetStrings(ctx context.Context, s Store, key string, list []string) error {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
