package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/starswipe/internal/auth"
	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/config"
	"github.com/sakif/starswipe/internal/crypto"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/jobs"
	"github.com/sakif/starswipe/internal/repository/sqlstore"
	"github.com/sakif/starswipe/internal/service"
	"github.com/sakif/starswipe/internal/task"
)

// App owns every long-lived dependency. Both the HTTP server and the
// one-shot job commands are built from it, so the wiring exists once.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store  *sqlstore.DB
	Cache  *cache.Redis
	Tasks  *task.Pool
	Tokens *auth.TokenService
	GitHub *github.Client
	OAuth  *auth.GitHubProvider

	Auth        *service.AuthService
	Swipes      *service.SwipeService
	Feed        *service.FeedService
	Repos       *service.RepositoryService
	Leaderboard *service.LeaderboardService
	Trust       *service.TrustService
	StarSync    *service.StarSyncService
	Users       *service.UserService
	Admin       *service.AdminService

	Runner *jobs.Runner
}

// NewApp opens the store and cache and assembles the services. The task
// pool is started here; Close stops it.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := ensureDataDir(cfg.Database); err != nil {
		return nil, err
	}

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rc, err := cache.NewRedis(cfg.Redis.URL, cfg.Redis.Timeout)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	// The service runs degraded without Redis, so an unreachable cache is
	// a warning at startup, not a failure.
	if err := rc.Ping(ctx); err != nil {
		logger.Warn("redis unreachable at startup, running degraded", slog.String("error", err.Error()))
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		store.Close()
		rc.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	enc, err := crypto.NewTokenEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		store.Close()
		rc.Close()
		return nil, fmt.Errorf("creating token encryptor: %w", err)
	}

	gh := github.NewClient(github.Options{
		BaseURL:           cfg.GitHub.APIURL,
		AppToken:          cfg.GitHub.Token,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	})

	pool := task.NewPool(task.Config{
		Workers:     cfg.Tasks.Workers,
		QueueSize:   cfg.Tasks.QueueSize,
		TaskTimeout: cfg.Tasks.TaskTimeout,
	}, logger)
	pool.Start()

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Cache:  rc,
		Tasks:  pool,
		Tokens: tokens,
		GitHub: gh,
		OAuth:  auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL, gh),
	}

	a.Leaderboard = service.NewLeaderboardService(store, rc, logger)
	a.StarSync = service.NewStarSyncService(store, rc, gh, enc, pool, logger)
	a.Swipes = service.NewSwipeService(store, service.NewVelocityLimiter(rc, logger), a.Leaderboard, a.StarSync, logger)
	a.Feed = service.NewFeedService(store, rc, a.StarSync, logger)
	a.Repos = service.NewRepositoryService(store, rc, gh, logger)
	a.Trust = service.NewTrustService(store, logger)
	a.Users = service.NewUserService(store)
	a.Admin = service.NewAdminService(store, a.Leaderboard, logger)
	a.Auth = service.NewAuthService(store, tokens, enc, logger)

	a.Runner = jobs.NewRunner(rc, cfg.Jobs.LeaseTTL, logger)
	jobs.RegisterAll(a.Runner, jobs.Services{
		Leaderboard: a.Leaderboard,
		Trust:       a.Trust,
		Repos:       a.Repos,
		StarSync:    a.StarSync,
	})

	return a, nil
}

// Close drains queued side effects, then releases the cache and store.
func (a *App) Close() error {
	a.Tasks.Stop()
	return errors.Join(a.Cache.Close(), a.Store.Close())
}

// ensureDataDir creates the parent directory of a file-backed SQLite DSN.
func ensureDataDir(cfg config.DatabaseConfig) error {
	if !strings.EqualFold(cfg.Driver, "sqlite") || cfg.DSN == ":memory:" {
		return nil
	}
	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
