package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/internal/config"
	"github.com/pitchlink/authkit/internal/database"
	"github.com/pitchlink/authkit/internal/logging"
	"github.com/pitchlink/authkit/sessioncache"
)

const purgeInterval = time.Hour

type App struct {
	config  *config.Config
	db      *bun.DB
	repo    auth.RepositoryManager
	cache   auth.SessionCache
	service *auth.Service
	srv     router.Server[*fiber.App]
	logger  *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	app := &App{
		config: cfg,
		logger: logging.New(cfg.Mode, cfg.LogLevel, os.Stdout),
	}

	if !cfg.IsProduction() {
		app.logger.Debug("config", "values", print.MaybePrettyJSON(redacted(cfg)))
	}

	if err := run(ctx, app); err != nil {
		app.logger.Error("authd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *App) error {
	if err := WithPersistence(ctx, app); err != nil {
		return err
	}
	defer func() {
		closeDB := database.CloseShared
		if app.config.IsProduction() {
			closeDB = app.db.Close
		}
		if err := closeDB(); err != nil {
			app.logger.Warn("close database", "error", err)
		}
	}()

	WithSessionCache(ctx, app)
	WithAuthService(app)
	WithHTTPServer(app)
	ProtectedRoutes(app)

	go PurgeExpiredSessions(ctx, app, purgeInterval)

	errc := make(chan error, 1)
	go func() {
		app.logger.Info("listening", "addr", app.config.HTTPAddr)
		errc <- app.srv.Serve(app.config.HTTPAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.srv.Shutdown(shutdownCtx)
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Shared(ctx, app.config)
	if err != nil {
		return err
	}

	results, err := database.Migrate(ctx, db)
	if err != nil {
		return err
	}
	for _, r := range results {
		app.logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}

	app.db = db
	app.repo = auth.NewRepositoryManager(db)
	return app.repo.Validate()
}

func WithSessionCache(ctx context.Context, app *App) {
	app.cache = sessioncache.FromURL(ctx, app.config.RedisURL, app.logger)
}

func WithAuthService(app *App) {
	app.service = auth.NewService(app.config, app.repo,
		auth.WithServiceLogger(app.logger.With("component", "auth")),
		auth.WithSessionCache(app.cache),
		auth.WithActivitySink(auth.LoggerActivitySink{Logger: app.logger.With("component", "activity")}),
	)
}

func WithHTTPServer(app *App) {
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			AppName:               "authkit",
			DisableStartupMessage: app.config.IsProduction(),
			ErrorHandler:          auth.ErrorHandler(app.logger),
		})
	})

	f := srv.WrappedRouter()
	f.Use(recover.New())
	f.Use(requestid.New())
	f.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	f.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(app.config.CORSAllowedOrigins, ","),
		AllowCredentials: true,
	}))
	f.Use(auth.CaptureClientIP())

	r := srv.Router().WithLogger(app.logger.With("component", "router"))

	r.Get("/healthz", func(c router.Context) error {
		if err := app.db.PingContext(c.Context()); err != nil {
			return fiber.ErrServiceUnavailable
		}
		return c.SendString("ok")
	}).SetName("healthz")

	auth.RegisterAuthRoutes(r.Group("/api/auth"), app.service, app.config,
		auth.WithControllerLogger(app.logger.With("component", "auth:ctrl")),
		auth.WithControllerDebug(!app.config.IsProduction()),
	)

	app.srv = srv
}

func ProtectedRoutes(app *App) {
	protected := auth.RequireSession(app.service, app.config, app.logger)

	r := app.srv.Router()

	r.Get("/dashboard", func(c router.Context) error {
		user, _ := auth.UserFromContext(c.Context())
		return c.SendString("Welcome, " + user.Name + " (" + user.Role.Label() + ")")
	}, protected).SetName("dashboard")

	r.Get("/api/me", func(c router.Context) error {
		view, _ := auth.SessionFromLocals(c)
		return c.JSON(http.StatusOK, view)
	}, protected).SetName("api.me")
}

// PurgeExpiredSessions deletes expired session rows every interval until ctx is done
func PurgeExpiredSessions(ctx context.Context, app *App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.service.PurgeExpiredSessions(ctx)
			if err != nil {
				app.logger.Warn("purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.Secret != "" {
		out.Secret = "********"
	}
	if strings.Contains(out.DatabaseURL, "@") {
		out.DatabaseURL = "********"
	}
	if out.RedisURL != "" {
		out.RedisURL = "********"
	}
	return out
}
