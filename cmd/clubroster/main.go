package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/clubroster/clubroster/cmd/clubroster/cli"
	"github.com/clubroster/clubroster/internal/app"
	"github.com/clubroster/clubroster/internal/auth"
	"github.com/clubroster/clubroster/internal/avatar"
	"github.com/clubroster/clubroster/internal/members"
	membershttp "github.com/clubroster/clubroster/internal/members/http"
	"github.com/clubroster/clubroster/internal/observability"
	"github.com/clubroster/clubroster/internal/options"
	"github.com/clubroster/clubroster/internal/pages"
	"github.com/clubroster/clubroster/internal/platform/cache"
	"github.com/clubroster/clubroster/internal/platform/db"
	"github.com/clubroster/clubroster/internal/rbac"
	"github.com/clubroster/clubroster/internal/settings"
	"github.com/clubroster/clubroster/internal/shared"
	"github.com/clubroster/clubroster/internal/view"
	"github.com/clubroster/clubroster/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(cli.Run(ctx, cfg, logger, os.Args[1:], os.Stdout))
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.PGMigrate {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "clubroster_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	settingsStore := settings.NewCachedStore(settings.NewPGStore(dbpool), cfg.SettingsCacheTTL)

	memberRepo := members.NewRepository(dbpool)
	catalog := members.NewCatalog(settingsStore)
	memberService := members.NewService(memberRepo, catalog, settingsStore)

	rbacService := rbac.NewService(memberRepo)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	resolver := auth.NewResolver(memberRepo, auth.BcryptVerifier{})
	authService := auth.NewService(auth.Pipeline{resolver.Stage()}, resolver.Verifier(), auth.NewRepository(dbpool), memberRepo)
	authHandler := auth.NewHandler(auth.HandlerParams{
		Logger:      logger,
		Service:     authService,
		Members:     memberRepo,
		Templates:   templates,
		Sessions:    sessionManager,
		CSRF:        csrfManager,
		RBAC:        rbacMiddleware,
		Metrics:     metrics,
		RememberTTL: cfg.RememberTTL,
	})

	optionsService := options.NewService(catalog, settingsStore)
	optionsHandler := options.NewHandler(options.Params{
		Logger:    logger,
		Service:   optionsService,
		Templates: templates,
		CSRF:      csrfManager,
		RBAC:      rbacMiddleware,
		Audit:     auditLogger,
	})

	pageService := pages.NewService(pages.NewRepository(dbpool), memberRepo, optionsService, logger)
	pagesHandler := pages.NewHandler(logger, pageService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	membersHandler := membershttp.NewHandler(membershttp.Params{
		Logger:    logger,
		Service:   memberService,
		Templates: templates,
		CSRF:      csrfManager,
		Sessions:  sessionManager,
		RBAC:      rbacMiddleware,
		Titles:    pageService,
		Welcome:   jobClient,
		Audit:     auditLogger,
		Metrics:   metrics,
	})

	avatarParams := avatar.HandlerParams{
		Logger:     logger,
		Resolver:   avatar.NewResolver(memberRepo),
		Meta:       memberRepo,
		RBAC:       rbacMiddleware,
		DefaultURL: cfg.DefaultAvatarURL,
	}
	if cfg.AvatarUploadsEnabled() {
		storage, err := avatar.NewS3Storage(ctx, avatar.StorageConfig{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
		avatarParams.Uploads = storage
	}
	avatarHandler := avatar.NewHandler(avatarParams)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		MembersHandler:     membersHandler,
		AvatarHandler:      avatarHandler,
		OptionsHandler:     optionsHandler,
		PagesHandler:       pagesHandler,
		JobHandler:         jobHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
