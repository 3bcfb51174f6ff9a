package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/account"
	"github.com/Mizumo-prjkt/openattendance/internal/attendance"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"
	"github.com/Mizumo-prjkt/openattendance/internal/calendar"
	"github.com/Mizumo-prjkt/openattendance/internal/config"
	"github.com/Mizumo-prjkt/openattendance/internal/db"
	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/excuse"
	"github.com/Mizumo-prjkt/openattendance/internal/health"
	"github.com/Mizumo-prjkt/openattendance/internal/logger"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/middleware"
	"github.com/Mizumo-prjkt/openattendance/internal/report"
	"github.com/Mizumo-prjkt/openattendance/internal/schema"
	"github.com/Mizumo-prjkt/openattendance/internal/settings"
	"github.com/Mizumo-prjkt/openattendance/internal/student"
	"github.com/Mizumo-prjkt/openattendance/internal/systemlog"
	"github.com/Mizumo-prjkt/openattendance/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

type App struct {
	config    *config.Config
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
	db        *bun.DB
	redis     *redis.Client
	publisher events.Publisher
	telemetry *telemetry.Telemetry
}

// New loads configuration and builds the application.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slogLogger := logger.NewWithServiceContext(ServiceName, Version, cfg.Env)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)
	slogLogger.Info("config loaded", "env", cfg.Env, "commit", GitCommit, "built", BuildTime)

	return Build(ctx, cfg, slogLogger)
}

// Build wires every component from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, slogLogger *slog.Logger) (*App, error) {
	slogLogger.Info("initializing application")

	tel, err := telemetry.Init(ctx, cfg.Telemetry, ServiceName, Version, cfg.Env, slogLogger)
	if err != nil {
		return nil, err
	}

	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := tel.Metrics.Database.RegisterDB(database.DB, tel.Meter); err != nil {
		slogLogger.Warn("failed to register connection pool metrics", "error", err)
	}

	if err := schema.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	loc, err := cfg.Reporting.Location()
	if err != nil {
		database.Close()
		return nil, err
	}
	cal := calendar.New(loc, calendar.SystemClock)

	app := &App{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    slogLogger,
		db:        database,
		telemetry: tel,
	}

	app.publisher = app.newPublisher(cfg.Events, tel.Metrics)
	revocations := app.newRevocationStore(ctx, cfg.Redis)

	app.router.Use(chimw.RealIP)
	app.router.Use(middleware.RequestID)
	app.router.Use(middleware.RequestLogger(slogLogger))
	app.router.Use(chimw.Recoverer)
	app.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no auth required)
	health.NewHandler(database, slogLogger).RegisterRoutes(app.router)

	m := tel.Metrics

	accountRepo := account.NewRepository(database, m)
	accountService := account.NewService(database, accountRepo)
	if created, err := accountService.EnsureAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to seed admin account: %w", err)
	} else if created {
		slogLogger.Warn("created bootstrap admin account; change its password", "username", cfg.Bootstrap.AdminUsername)
	}

	tokens := auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TTL())
	authService := auth.NewService(account.NewCredentialStore(accountRepo), tokens, revocations, m.Domain, slogLogger)
	authHandler := auth.NewHandler(authService, slogLogger, cfg.Session.CookieSecure)

	studentService := student.NewService(database, student.NewRepository(database, m))
	logRepo := systemlog.NewRepository(database, m)

	excuseService := excuse.NewService(excuse.Deps{
		DB:        database,
		Repo:      excuse.NewRepository(database, m),
		Audit:     logRepo,
		Students:  studentService,
		Publisher: app.publisher,
		Metrics:   m,
		Logger:    slogLogger,
		Calendar:  cal,
	})
	attendanceService := attendance.NewService(database, attendance.NewRepository(database, m), studentService, app.publisher, m, slogLogger, cal)
	reportService := report.NewService(report.NewRepository(database, m), studentService, excuseService, cal, cfg.Reporting, slogLogger)

	accountHandler := account.NewHandler(accountService, slogLogger)
	studentHandler := student.NewHandler(studentService, slogLogger)
	excuseHandler := excuse.NewHandler(excuseService, slogLogger)
	attendanceHandler := attendance.NewHandler(attendanceService, slogLogger)
	reportHandler := report.NewHandler(reportService, slogLogger)
	logHandler := systemlog.NewHandler(systemlog.NewService(logRepo, cal), slogLogger)
	settingsHandler := settings.NewHandler(settings.NewService(settings.NewRepository(database, m), cal), slogLogger)

	app.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(authService, slogLogger))

		authHandler.RegisterStaffLogin(r)

		r.Route("/admin", func(r chi.Router) {
			authHandler.RegisterAdminRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.AdminOnly)
				accountHandler.RegisterRoutes(r)
				studentHandler.RegisterAdminRoutes(r)
				excuseHandler.RegisterAdminRoutes(r)
				reportHandler.RegisterAdminRoutes(r)
				logHandler.RegisterRoutes(r)
				settingsHandler.RegisterRoutes(r)
			})
		})

		r.Route("/client", func(r chi.Router) {
			authHandler.RegisterClientRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.StaffOnly)
				studentHandler.RegisterClientRoutes(r)
				attendanceHandler.RegisterRoutes(r)
				excuseHandler.RegisterClientRoutes(r)
				reportHandler.RegisterClientRoutes(r)
			})
		})
	})

	slogLogger.Info("application initialized successfully")

	return app, nil
}

// newPublisher falls back to the no-op publisher when the broker is unreachable; events are
// best effort and must not keep the server from starting.
func (a *App) newPublisher(cfg config.EventsConfig, m *metrics.Metrics) events.Publisher {
	publisher, err := events.New(cfg, a.logger, m.Messaging)
	if err != nil {
		a.logger.Warn("failed to initialize event publisher", "driver", cfg.Driver, "error", err)
		return events.NoopPublisher{}
	}
	a.logger.Info("event publisher initialized", "driver", cfg.Driver)
	return publisher
}

func (a *App) newRevocationStore(ctx context.Context, cfg config.RedisConfig) auth.RevocationStore {
	if cfg.Addr == "" {
		a.logger.Info("redis disabled, logout will not revoke outstanding tokens")
		return auth.NoopRevocationStore{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("failed to connect to redis", "addr", cfg.Addr, "error", err)
		client.Close()
		return auth.NoopRevocationStore{}
	}

	a.redis = client
	a.logger.Info("redis revocation store initialized", "addr", cfg.Addr)
	return auth.NewRedisRevocationStore(client)
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Run() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	a.logger.Info("server starting", "port", a.config.Server.Port, "version", Version)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the server, then releases the broker, cache, telemetry and database.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx, a.logger); err != nil {
		errs = append(errs, err)
	}
	db.Close(a.db)

	return errors.Join(errs...)
}
