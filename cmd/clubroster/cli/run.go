package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/clubroster/clubroster/internal/app"
	"github.com/clubroster/clubroster/internal/members"
	"github.com/clubroster/clubroster/internal/options"
	"github.com/clubroster/clubroster/internal/pages"
	"github.com/clubroster/clubroster/internal/platform/db"
	"github.com/clubroster/clubroster/internal/settings"
)

// Run connects the stores named by cfg and executes args.
func Run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout io.Writer) int {
	cmds := Commands{
		Migrate: func(ctx context.Context) error { return db.Migrate(ctx, cfg.PGDSN) },
		Stdout:  stdout,
		Stderr:  os.Stderr,
	}
	if len(args) == 0 || !needsDatabase(args[0]) {
		return cmds.Execute(ctx, args)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	store := settings.NewPGStore(pool)
	memberRepo := members.NewRepository(pool)
	catalog := members.NewCatalog(store)
	optionsService := options.NewService(catalog, store)

	cmds.Options = optionsService
	cmds.Members = members.NewService(memberRepo, catalog, store)
	cmds.Pages = pages.NewService(pages.NewRepository(pool), memberRepo, optionsService, logger)

	if args[0] == "jobs" {
		jobsCLI := NewJobsCLI(cfg.RedisAddr, memberRepo)
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		cmds.Jobs = jobsCLI
	}
	return cmds.Execute(ctx, args)
}

func needsDatabase(cmd string) bool {
	switch cmd {
	case "install", "uninstall", "reset-options", "export", "jobs":
		return true
	}
	return false
}
