// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ubik80/bookCafe/internal/auth"
	"github.com/ubik80/bookCafe/internal/config"
	"github.com/ubik80/bookCafe/internal/handler"
	"github.com/ubik80/bookCafe/internal/logging"
	"github.com/ubik80/bookCafe/internal/middleware"
	"github.com/ubik80/bookCafe/internal/render"
	"github.com/ubik80/bookCafe/internal/scheduler"
	"github.com/ubik80/bookCafe/internal/service"
	"github.com/ubik80/bookCafe/internal/session"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/ticker"
	"github.com/ubik80/bookCafe/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Book Cafe - shared book catalog\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BOOKCAFE_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BOOKCAFE_DB_PATH           SQLite database path (default: ./data/bookcafe.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BOOKCAFE_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BOOKCAFE_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BOOKCAFE_REDIS_URL        Redis URL for the news ticker (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("bookcafe %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	queries := store.New(db)

	// Upgrade logger to also write WARN and ERROR logs to the events table
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, queries))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	// Seed roles and the Admin grant
	ctx := context.Background()
	if err := store.Seed(ctx, db); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	// Initialize session manager
	sessionManager := session.New(db, cfg.IsDevelopment())
	slog.Info("session manager initialized")

	// Initialize template renderer
	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}

	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: sessionManager,
		IsDev:          cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}
	slog.Info("template renderer initialized")

	// News ticker: Redis when configured, in-memory otherwise
	var news ticker.Broadcaster
	if cfg.UseNewsTicker() {
		opts := ticker.DefaultOptions()
		opts.URL = cfg.RedisURL
		opts.Prefix = cfg.NewsKeyPrefix
		redisNews, err := ticker.NewRedisBroadcaster(opts)
		if err != nil {
			slog.Warn("redis unavailable, news ticker falls back to memory", "error", err)
			news = ticker.NewMemoryBroadcaster()
		} else {
			defer func() {
				if err := redisNews.Close(); err != nil {
					slog.Error("error closing redis connection", "error", err)
				}
			}()
			news = redisNews
			slog.Info("news ticker initialized", "backend", "redis", "url", cfg.RedisURL)
		}
	} else {
		news = ticker.NewMemoryBroadcaster()
		slog.Info("news ticker initialized", "backend", "memory")
	}

	// Start the reconciliation sweep
	sweeper := scheduler.New(db, logger, scheduler.Config{
		Interval:        cfg.SweepInterval(),
		FailedLoginWait: cfg.FailedLoginsWait(),
		InactivityMax:   cfg.InactivityLogout(),
	})
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting sweeper: %w", err)
	}
	defer sweeper.Stop()
	slog.Info("reconciliation sweep started",
		"interval", cfg.SweepInterval(),
		"failed_login_wait", cfg.FailedLoginsWait(),
		"inactivity_logout", cfg.InactivityLogout(),
	)

	// Services and handlers
	authService := auth.NewService(queries, cfg.MaxFailedLoginAttempts)
	eventService := service.NewEventService(queries)

	authHandler := handler.NewAuthHandler(queries, renderer, sessionManager, authService, eventService, news)
	booksHandler := handler.NewBooksHandler(queries, renderer, sessionManager, eventService, news, cfg.MaxCoverBytes)
	newsHandler := handler.NewNewsHandler(news)
	healthHandler := handler.NewHealthHandler(db)

	// Create router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)

	r.Get("/health", healthHandler.Check)

	// News stream bypasses the session middleware so held-open
	// connections do not pin session writes.
	r.Get(handler.RouteNews, newsHandler.Stream)

	csrfMiddleware := middleware.CSRF(middleware.DefaultCSRFConfig(
		[]byte(cfg.SessionSecret), cfg.IsDevelopment(), cfg.ServerAddr()))
	loginProtection := middleware.NewLoginProtection(0.5, 3)

	r.Group(func(r chi.Router) {
		r.Use(sessionManager.LoadAndSave)
		r.Use(csrfMiddleware)

		// Public routes
		r.Get(handler.RouteRegister, authHandler.RegisterForm)
		r.Post(handler.RouteRegister, authHandler.Register)
		r.Get(handler.RouteLogin, authHandler.LoginForm)
		r.With(loginProtection.Middleware()).Post(handler.RouteLogin, authHandler.Login)

		r.Get(handler.RouteRoot, func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, handler.RouteBooks, http.StatusSeeOther)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionManager))
			r.Use(middleware.LoadUser(sessionManager, queries))
			r.Use(middleware.RefreshActivity(queries))

			r.Get(handler.RouteLogout, authHandler.Logout)
			r.Get(handler.RouteBooks, booksHandler.List)
			r.Post(handler.RouteBooks, booksHandler.List)
			r.Get(handler.RouteBookID+"/cover", booksHandler.Cover)

			// Catalog changes are restricted to admins
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Get(handler.RouteBooksAdd, booksHandler.AddForm)
				r.Post(handler.RouteBooksAdd, booksHandler.Add)
				r.Post(handler.RouteBookID+"/delete", booksHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // SSE connections are held open
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
