// Package server is the composition root: it wires the store, cache,
// services and handlers together, mounts the routes and runs the HTTP
// server and the background job worker until a shutdown signal arrives.
//
// Keeping the wiring here leaves main.go to parse flags and load config,
// and lets tests build a full router without opening a port.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/starswipe/internal/auth"
	"github.com/sakif/starswipe/internal/handler"
	"github.com/sakif/starswipe/internal/jobs"
	"github.com/sakif/starswipe/internal/middleware"
)

// Server is the HTTP surface over an App.
type Server struct {
	app    *App
	router *chi.Mux
	logger *slog.Logger
}

// New builds the router for app.
func New(app *App) *Server {
	s := &Server{app: app, router: chi.NewRouter(), logger: app.Logger}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts every route.
//
// ROUTES:
//
//	GET    /healthz                         public
//	GET    /auth/github/login               public
//	GET    /auth/github/callback            public
//	POST   /auth/logout                     public
//	GET    /leaderboard/top                 public
//	GET    /leaderboard/rank/{userId}       public
//	GET    /user/{id}                       public
//	POST   /swipe                           session
//	GET    /repository/feed                 session
//	POST   /repository                      session
//	PATCH  /repository/pitch                session
//	POST   /repository/{id}/sync            session
//	GET    /user/me, /user/me/repos         session
//	/admin/...                              session + ADMIN role
//
// Middleware order matters: RequestID must run before Logger so each log
// line carries the id, and Recoverer sits inside Logger so a panic is still
// logged as a 500.
func (s *Server) setupRoutes() {
	cfg := s.app.Config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// The session lives in a cookie, so the frontend origin must be listed
	// explicitly and credentials allowed. A wildcard origin would be
	// rejected by browsers for credentialed requests anyway.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handler.NewHealthHandler(s.app.Store, s.app.Cache)
	authHandler := handler.NewAuthHandler(s.app.OAuth, s.app.Auth, handler.AuthConfig{
		SessionTTL:   s.app.Tokens.TTL(),
		CookieSecure: cfg.Server.CookieSecure,
		FrontendURL:  cfg.Server.FrontendURL,
	}, s.logger)
	swipes := handler.NewSwipeHandler(s.app.Swipes, s.logger)
	repos := handler.NewRepositoryHandler(s.app.Feed, s.app.Repos, s.logger)
	board := handler.NewLeaderboardHandler(s.app.Leaderboard, s.logger)
	users := handler.NewUserHandler(s.app.Users, s.logger)
	admin := handler.NewAdminHandler(s.app.Admin, s.logger)

	s.router.Get("/healthz", health.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Get("/leaderboard/top", board.HandleTop)
	s.router.Get("/leaderboard/rank/{userId}", board.HandleRank)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.app.Tokens))

		r.Post("/swipe", swipes.HandleSwipe)

		r.Get("/repository/feed", repos.HandleFeed)
		r.Post("/repository", repos.HandleSubmit)
		r.Patch("/repository/pitch", repos.HandleUpdatePitch)
		r.Post("/repository/{id}/sync", repos.HandleSync)

		r.Get("/user/me", users.HandleMe)
		r.Get("/user/me/repos", users.HandleMyRepos)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.app.Admin, s.logger))
			r.Post("/users/{id}/block", admin.HandleToggleBlock)
			r.Post("/users/{id}/reset-trust", admin.HandleResetTrust)
			r.Get("/abuse-logs", admin.HandleAbuseLogs)
			r.Get("/flagged-users", admin.HandleFlaggedUsers)
		})
	})

	s.router.Get("/user/{id}", users.HandlePublic)
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
// When withWorker is set the asynq scheduler and job server run alongside.
//
// SHUTDOWN ORDER:
//  1. Stop accepting connections and wait for in-flight requests.
//  2. Stop the job worker so no new job starts.
//  3. App.Close drains the task pool, then closes the cache and store.
//
// The caller owns the App and closes it after Start returns.
func (s *Server) Start(ctx context.Context, withWorker bool) error {
	cfg := s.app.Config

	if withWorker {
		worker, err := jobs.NewWorker(cfg.Redis.URL, cfg.Jobs, s.app.Runner, s.logger)
		if err != nil {
			return fmt.Errorf("creating job worker: %w", err)
		}
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", cfg.Server.Port),
			slog.String("database", cfg.Database.Driver),
			slog.Bool("worker", withWorker),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
