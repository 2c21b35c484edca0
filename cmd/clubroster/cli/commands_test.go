package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/options"
	"github.com/clubroster/clubroster/internal/pages"
	"github.com/clubroster/clubroster/internal/settings"
)

type stubPages struct {
	created []pages.Page
	removed int64
	err     error
}

func (s *stubPages) Install(context.Context) ([]pages.Page, error) { return s.created, s.err }

func (s *stubPages) Uninstall(context.Context) (int64, error) { return s.removed, s.err }

type stubJobs struct {
	name     string
	memberID int64
	stats    QueueStats
}

func (s *stubJobs) Trigger(_ context.Context, name string, memberID int64) (*asynq.TaskInfo, error) {
	s.name = name
	s.memberID = memberID
	return &asynq.TaskInfo{ID: "task-1", Type: name, Queue: "default"}, nil
}

func (s *stubJobs) InspectQueue(context.Context) (QueueStats, error) { return s.stats, nil }

func newCommands(t *testing.T) (Commands, *bytes.Buffer, *bytes.Buffer, settings.Store) {
	t.Helper()
	store := settings.NewMemoryStore()
	repo := members.NewMemoryRepository(
		&members.Member{ID: 1, Login: "anna", Email: "anna@club.nl", Fields: map[string]string{"first_name": "Anna", "team": "U12"}},
		&members.Member{ID: 2, Login: "bram", Email: "bram@club.nl", Fields: map[string]string{"first_name": "Bram", "team": "Senioren"}},
	)
	catalog := members.NewCatalog(store)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	return Commands{
		Members: members.NewService(repo, catalog, store),
		Options: options.NewService(catalog, store),
		Stdout:  stdout,
		Stderr:  stderr,
	}, stdout, stderr, store
}

func TestExecuteWithoutArgsPrintsUsage(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	require.Equal(t, 2, cmds.Execute(context.Background(), nil))
	require.Contains(t, stderr.String(), "usage: clubroster")
}

func TestExecuteUnknownCommand(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	require.Equal(t, 2, cmds.Execute(context.Background(), []string{"frobnicate"}))
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)
}

func TestExportWritesFilteredCSV(t *testing.T) {
	cmds, stdout, stderr, store := newCommands(t)
	code := cmds.Execute(context.Background(), []string{"export", "-fields", "first_name, team", "-filter", "team=U1"})
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "Anna")
	require.Contains(t, stderr.String(), "exported 1 member(s)")

	saved, err := settings.Strings(context.Background(), store, settings.KeyExportColumns)
	require.NoError(t, err)
	require.Equal(t, []string{"first_name", "team"}, saved)
}

func TestExportWithoutFieldsKeepsSavedSelection(t *testing.T) {
	cmds, stdout, stderr, store := newCommands(t)
	ctx := context.Background()
	require.NoError(t, settings.SetStrings(ctx, store, settings.KeyExportColumns, []string{"team"}))

	require.Equal(t, 0, cmds.Execute(ctx, []string{"export"}), stderr.String())
	require.Contains(t, stderr.String(), "columns: team")
	require.Equal(t, 3, strings.Count(stdout.String(), "\n"))

	saved, err := settings.Strings(ctx, store, settings.KeyExportColumns)
	require.NoError(t, err)
	require.Equal(t, []string{"team"}, saved)
}

func TestExportRejectsMalformedFilter(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	require.Equal(t, 1, cmds.Execute(context.Background(), []string{"export", "-filter", "team"}))
	require.Contains(t, stderr.String(), "must be field=value")
}

func TestResetOptions(t *testing.T) {
	cmds, stdout, _, store := newCommands(t)
	ctx := context.Background()
	require.NoError(t, members.NewCatalog(store).SetFieldNames(ctx, []string{"shirt_size"}))

	require.Equal(t, 0, cmds.Execute(ctx, []string{"reset-options"}))
	require.Contains(t, stdout.String(), "options reset")

	names, err := members.NewCatalog(store).FieldNames(ctx)
	require.NoError(t, err)
	require.Equal(t, members.DefaultFieldNames, names)
}

func TestInstallAndUninstall(t *testing.T) {
	cmds, stdout, _, _ := newCommands(t)
	stub := &stubPages{created: []pages.Page{{ID: 7, Slug: "register", Title: "Register"}}, removed: 1}
	cmds.Pages = stub

	require.Equal(t, 0, cmds.Execute(context.Background(), []string{"install"}))
	require.Contains(t, stdout.String(), "created page 7 register (Register)")
	require.Contains(t, stdout.String(), "1 page(s) created")

	require.Equal(t, 0, cmds.Execute(context.Background(), []string{"uninstall"}))
	require.Contains(t, stdout.String(), "1 page(s) removed")
}

func TestInstallError(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	cmds.Pages = &stubPages{err: errors.New("db down")}
	require.Equal(t, 1, cmds.Execute(context.Background(), []string{"install"}))
	require.Contains(t, stderr.String(), "install: db down")
}

func TestMissingDependency(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	require.Equal(t, 1, cmds.Execute(context.Background(), []string{"migrate"}))
	require.Contains(t, stderr.String(), "migrate: not configured")
}

func TestMigrate(t *testing.T) {
	cmds, stdout, _, _ := newCommands(t)
	called := false
	cmds.Migrate = func(context.Context) error {
		called = true
		return nil
	}
	require.Equal(t, 0, cmds.Execute(context.Background(), []string{"migrate"}))
	require.True(t, called)
	require.Contains(t, stdout.String(), "migrations applied")
}

func TestJobsTriggerAndStats(t *testing.T) {
	cmds, stdout, _, _ := newCommands(t)
	stub := &stubJobs{stats: QueueStats{Queue: "default", Pending: 3, Retry: 1}}
	cmds.Jobs = stub
	ctx := context.Background()

	require.Equal(t, 0, cmds.Execute(ctx, []string{"jobs", "trigger", "mail:welcome", "-member", "42"}))
	require.Equal(t, "mail:welcome", stub.name)
	require.Equal(t, int64(42), stub.memberID)
	require.Contains(t, stdout.String(), "enqueued mail:welcome as task-1 on default")

	stdout.Reset()
	require.Equal(t, 0, cmds.Execute(ctx, []string{"jobs", "stats", "-json"}))
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Retry)
}

func TestJobsTriggerNeedsName(t *testing.T) {
	cmds, _, stderr, _ := newCommands(t)
	cmds.Jobs = &stubJobs{}
	require.Equal(t, 1, cmds.Execute(context.Background(), []string{"jobs", "trigger"}))
	require.Contains(t, stderr.String(), "trigger needs a job name")
}
