package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/admin"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
	"github.com/mikepea/flickpick/pkg/flickpick/config"
	"github.com/mikepea/flickpick/pkg/flickpick/database"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"github.com/mikepea/flickpick/pkg/flickpick/queue"
	"github.com/mikepea/flickpick/pkg/flickpick/selection"
	"github.com/mikepea/flickpick/pkg/flickpick/server"
	"github.com/urfave/cli/v2"
)

// @title FlickPick API
// @version 1.0
// @description Pick a movie together: groups, genre votes and a shared candidate queue.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Account or participant JWT. Format: "Bearer {token}"

func main() {
	app := &cli.App{
		Name:  "flickpick-server",
		Usage: "group movie night decision server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"FLICKPICK_CONFIG"}},
			&cli.StringFlag{Name: "port", Usage: "HTTP listen port"},
			&cli.StringFlag{Name: "db-driver", Usage: "sqlite or postgres"},
			&cli.StringFlag{Name: "db-dsn", Usage: "database DSN"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "seed-rules", Usage: "YAML seed rule table"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "run database migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("flickpick-server failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when given, then applies flags set on
// the command line
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := map[string]*string{
		"port":       &cfg.Port,
		"db-driver":  &cfg.DBDriver,
		"db-dsn":     &cfg.DBDSN,
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
		"seed-rules": &cfg.SeedRulesFile,
	}
	for name, dst := range flags {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed", "driver", cfg.DBDriver)
	return nil
}

// newCache picks redis when configured and reachable, otherwise the in-process LRU
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Cache, func()) {
	if cfg.Cache.RedisURL != "" {
		rc, err := catalog.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = rc.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("using redis catalog cache")
				return rc, func() { rc.Close() }
			}
			rc.Close()
		}
		logger.Warn("redis unavailable, using in-memory catalog cache", "error", err)
	}
	return catalog.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL), func() {}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := database.Connect(cfg.DBDriver, cfg.DBDSN, logger); err != nil {
		return err
	}
	db := database.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if err := admin.EnsureDefaultAdmin(db, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	if cfg.UsesDevSecret() {
		logger.Warn("using development JWT secret; set JWT_SECRET in production")
	}
	resolver := auth.NewResolver(db, auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL))

	tmdb := catalog.NewTMDb(catalog.TMDbOptions{
		ReadToken: cfg.TMDB.ReadToken,
		APIKey:    cfg.TMDB.APIKey,
		Region:    cfg.TMDB.Region,
		Timeout:   cfg.TMDB.Timeout,
	}, logger)
	if !tmdb.Configured() {
		logger.Warn("TMDb credentials missing; movie candidates are unavailable")
	}
	cache, closeCache := newCache(c.Context, cfg, logger)
	defer closeCache()
	cat := catalog.NewCached(tmdb, cache, "tmdb:"+tmdb.Region(), logger)

	seeds, err := queue.LoadSeedRules(cfg.SeedRulesFile)
	if err != nil {
		return fmt.Errorf("load seed rules: %w", err)
	}
	builder := queue.NewBuilder(cat, seeds, cfg.TMDB.MaxPages, logger)
	machine := selection.NewMachine(builder, queue.DefaultQueueSize, logger)

	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Options{
		DB:       db,
		Resolver: resolver,
		Machine:  machine,
		Logger:   logger,
		Region:   tmdb.Region(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting flickpick server", "port", cfg.Port, "catalog_configured", tmdb.Configured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
