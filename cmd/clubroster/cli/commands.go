// Package cli implements the clubroster operator commands: page install
// and uninstall, option reset, roster export, migrations and job triggers.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/pages"
)

// PageInstaller creates and removes the tagged pages.
type PageInstaller interface {
	Install(ctx context.Context) ([]pages.Page, error)
	Uninstall(ctx context.Context) (int64, error)
}

// OptionsResetter restores option defaults.
type OptionsResetter interface {
	ResetDefaults(ctx context.Context) error
}

// Exporter writes the roster as CSV.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, req members.ExportRequest) (members.ExportResult, error)
}

// JobTrigger enqueues background jobs and reports queue state.
type JobTrigger interface {
	Trigger(ctx context.Context, name string, memberID int64) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Commands dispatches operator subcommands. Nil dependencies make the
// matching commands fail with a configuration error.
type Commands struct {
	Pages   PageInstaller
	Options OptionsResetter
	Members Exporter
	Jobs    JobTrigger
	Migrate func(ctx context.Context) error
	Stdout  io.Writer
	Stderr  io.Writer
}

const usage = `usage: clubroster <command> [flags]

commands:
  install                     create the tagged pages and reset options
  uninstall                   remove pages carrying the profile tag
  reset-options               restore field and export defaults
  export [-fields a,b] [-filter field=value]...
                              write the roster as CSV to stdout
  migrate                     apply database migrations
  jobs trigger <name> -member <id>
  jobs stats [-json]
`

var errNotConfigured = errors.New("not configured")

// Execute runs args and returns the process exit code.
func (c Commands) Execute(ctx context.Context, args []string) int {
	if c.Stdout == nil {
		c.Stdout = io.Discard
	}
	if c.Stderr == nil {
		c.Stderr = io.Discard
	}
	if len(args) == 0 {
		_, _ = fmt.Fprint(c.Stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "install":
		err = c.install(ctx)
	case "uninstall":
		err = c.uninstall(ctx)
	case "reset-options":
		err = c.resetOptions(ctx)
	case "export":
		err = c.export(ctx, args[1:])
	case "migrate":
		err = c.migrate(ctx)
	case "jobs":
		err = c.jobs(ctx, args[1:])
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(c.Stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(c.Stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		_, _ = fmt.Fprintf(c.Stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func (c Commands) install(ctx context.Context) error {
	if c.Pages == nil {
		return errNotConfigured
	}
	created, err := c.Pages.Install(ctx)
	if err != nil {
		return err
	}
	for _, p := range created {
		_, _ = fmt.Fprintf(c.Stdout, "created page %d %s (%s)\n", p.ID, p.Slug, p.Title)
	}
	_, _ = fmt.Fprintf(c.Stdout, "%d page(s) created\n", len(created))
	return nil
}

func (c Commands) uninstall(ctx context.Context) error {
	if c.Pages == nil {
		return errNotConfigured
	}
	removed, err := c.Pages.Uninstall(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Stdout, "%d page(s) removed\n", removed)
	return nil
}

func (c Commands) resetOptions(ctx context.Context) error {
	if c.Options == nil {
		return errNotConfigured
	}
	if err := c.Options.ResetDefaults(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Stdout, "options reset to defaults")
	return nil
}

type filterFlags members.FilterSpec

func (f filterFlags) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (f filterFlags) Set(value string) error {
	field, needle, ok := strings.Cut(value, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return fmt.Errorf("filter %q must be field=value", value)
	}
	f[field] = needle
	return nil
}

func (c Commands) export(ctx context.Context, args []string) error {
	if c.Members == nil {
		return errNotConfigured
	}
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fields := fs.String("fields", "", "comma separated column list; saved as the new default")
	filter := filterFlags{}
	fs.Var(filter, "filter", "field=value substring filter, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := members.ExportRequest{Filter: members.FilterSpec(filter)}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "fields" {
			req.FieldsSupplied = true
			req.Fields = members.SplitFieldList(*fields)
		}
	})
	result, err := c.Members.Export(ctx, c.Stdout, req)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Stderr, "exported %d member(s), columns: %s\n", result.Rows, strings.Join(result.Columns, ", "))
	return nil
}

func (c Commands) migrate(ctx context.Context) error {
	if c.Migrate == nil {
		return errNotConfigured
	}
	if err := c.Migrate(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Stdout, "migrations applied")
	return nil
}

func (c Commands) jobs(ctx context.Context, args []string) error {
	if c.Jobs == nil {
		return errNotConfigured
	}
	if len(args) == 0 {
		return errors.New("expected trigger or stats")
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		memberID := fs.Int64("member", 0, "member id the job runs for")
		if len(args) < 2 {
			return errors.New("trigger needs a job name")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := c.Jobs.Trigger(ctx, args[1], *memberID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		stats, err := c.Jobs.InspectQueue(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(c.Stdout).Encode(stats)
		}
		_, _ = fmt.Fprintf(c.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
}
