package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT value FROM settings WHERE key").
		WithArgs(KeyMemberFields).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`["team"]`))
	mock.ExpectQuery("SELECT value FROM settings WHERE key").
		WithArgs(KeyExportColumns).
		WillReturnError(pgx.ErrNoRows)

	store := NewPGStore(mock)
	value, ok, err := store.Get(context.Background(), KeyMemberFields)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["team"]`, value)

	_, ok, err = store.Get(context.Background(), KeyExportColumns)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreSetAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO settings").
		WithArgs(KeyExportColumns, `["email"]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM settings").
		WithArgs(KeyExportColumns).
		WillReturnError(errors.New("conn reset"))

	store := NewPGStore(mock)
	require.NoError(t, SetStrings(context.Background(), store, KeyExportColumns, []string{"email"}))
	err = store.Delete(context.Background(), KeyExportColumns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings: delete export_columns")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStringsDecoding(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	list, err := Strings(ctx, store, KeyMemberFields)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	require.NoError(t, store.Set(ctx, KeyMemberFields, "null"))
	list, err = Strings(ctx, store, KeyMemberFields)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, SetStrings(ctx, store, KeyMemberFields, []string{"first_name", "team"}))
	list, err = Strings(ctx, store, KeyMemberFields)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name", "team"}, list)

	require.NoError(t, store.Set(ctx, KeyMemberFields, "{broken"))
	_, err = Strings(ctx, store, KeyMemberFields)
	assert.Error(t, err)
}
