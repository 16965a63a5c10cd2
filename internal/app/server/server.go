package server

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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/catalog"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/domain/peerreview"
	"evalhub/internal/domain/project"
	"evalhub/internal/platform/cache"
	"evalhub/internal/platform/config"
	"evalhub/internal/platform/db"
	"evalhub/internal/platform/email"
	"evalhub/internal/platform/jobs"
	"evalhub/internal/platform/logging"
	"evalhub/internal/platform/metrics"
	"evalhub/internal/transport/http/api"
	accesshandler "evalhub/internal/transport/http/handlers/access"
	audithandler "evalhub/internal/transport/http/handlers/audit"
	authhandler "evalhub/internal/transport/http/handlers/auth"
	cataloghandler "evalhub/internal/transport/http/handlers/catalog"
	evaluationhandler "evalhub/internal/transport/http/handlers/evaluation"
	notificationshandler "evalhub/internal/transport/http/handlers/notifications"
	peerreviewhandler "evalhub/internal/transport/http/handlers/peerreview"
	projecthandler "evalhub/internal/transport/http/handlers/project"
	"evalhub/internal/transport/http/middleware"
)

const (
	readyTimeout    = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Metrics *metrics.Collector
	Jobs    *jobs.Service

	cache      *cache.Cache
	stopWorker context.CancelFunc
}

// New connects the stores, prepares the schema and assembles the router.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app := &App{Config: cfg, DB: pool, Metrics: metrics.New()}

	if cfg.RedisAddr != "" {
		c, err := cache.New(ctx,
			cache.WithAddress(cfg.RedisAddr),
			cache.WithPassword(cfg.RedisPassword),
			cache.WithDB(cfg.RedisDB),
		)
		if err != nil {
			slog.Warn("redis unavailable, catalog cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			app.cache = c
		}
	}

	workerCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	app.stopWorker = stop
	app.Jobs = jobs.New(pool, cfg.JobQueueSize, app.Metrics)
	app.Jobs.Start(workerCtx)

	app.Router = app.routes()
	return app, nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	pool := a.DB

	authSvc := auth.NewService(auth.NewStore(pool), cfg.JWTSecret, cfg.JWTTTL)
	projectSvc := project.NewService(project.NewStore(pool))
	auditSvc := audit.New(pool)

	catalogSvc := catalog.NewService(catalog.NewStore(pool), catalog.MustAliasTable(catalog.DefaultAliases))
	catalogSvc.Metrics = a.Metrics
	catalogSvc.TTL = cfg.CatalogCacheTTL
	if a.cache != nil {
		catalogSvc.Cache = a.cache
	}

	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg))
	notifySvc.EmailEnabled = cfg.EmailEnabled
	notifySvc.DefaultFrom = cfg.EmailFrom

	evalStore := evaluation.NewStore(pool)
	evalSvc := evaluation.NewService(evalStore, projectSvc, catalogSvc)
	evalSvc.Users = authSvc
	evalSvc.FollowUps = a.Jobs
	evalSvc.Metrics = a.Metrics

	peerSvc := peerreview.NewService(peerreview.NewStore(pool), evalStore, projectSvc)

	var headers middleware.HeaderResolver
	if cfg.DevHeaderAuth {
		slog.Warn("development header authentication enabled")
		headers = authSvc
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, headers))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context(), pool, readyTimeout); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if a.cache != nil {
			if err := a.cache.Ping(r.Context()); err != nil {
				slog.Warn("redis ping failed", "err", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute*5, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.ForcePasswordChange)

		authHandler := authhandler.NewHandler(authSvc, projectSvc, auditSvc)
		authHandler.Memberships = projectSvc
		authHandler.RegisterRoutes(r)
		accesshandler.NewHandler().RegisterRoutes(r)
		cataloghandler.NewHandler(catalogSvc, auditSvc).RegisterRoutes(r)
		projecthandler.NewHandler(projectSvc, auditSvc).RegisterRoutes(r)

		evaluationHandler := evaluationhandler.NewHandler(evalSvc, projectSvc, notifySvc, auditSvc, a.Jobs)
		evaluationHandler.Idempotency = middleware.NewIdempotencyStore(pool)
		evaluationHandler.RegisterRoutes(r)

		peerreviewhandler.NewHandler(peerSvc, notifySvc, auditSvc).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc).RegisterRoutes(r)

		if cfg.MetricsEnabled {
			r.With(middleware.RequireRole(auth.RoleAdmin)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
				api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
			})
		}
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	return router
}

// Close stops the job worker and releases the cache and pool.
func (a *App) Close() {
	if a.stopWorker != nil {
		a.stopWorker()
		a.Jobs.Wait()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func Run() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("evalhub listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
		}
	}
}
