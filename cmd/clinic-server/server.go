package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/config"
	"github.com/clinicsched/clinic/internal/domain/demo"
	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/settings"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/lock"
	"github.com/clinicsched/clinic/internal/platform/metrics"
	"github.com/clinicsched/clinic/internal/platform/middleware"
	"github.com/clinicsched/clinic/internal/platform/validate"
)

const (
	requestTimeout = 30 * time.Second
	// demoLockTTL bounds a redis lock left behind by a crashed reset.
	demoLockTTL = 2 * time.Minute
)

// app holds the services shared by the server and the CLI commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client

	locations  *location.Service
	schedule   *settings.Store
	identity   *identity.Service
	engine     *scheduling.Engine
	scheduling *scheduling.Service
	seeder     *demo.Seeder
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	clinicTZ, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, pool: pool}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}

	tx := db.NewTransactor(pool, pgx.ReadCommitted)

	appointmentRepo := scheduling.NewAppointmentRepoPG(pool)
	locationRepo := location.NewLocationRepoPG(pool)
	businessRepo := location.NewBusinessSettingsRepoPG(pool)
	settingsRepo := settings.NewRepoPG(pool)

	a.locations = location.NewService(locationRepo, businessRepo, appointmentRepo, tx, logger)

	seed := settings.DefaultTypes()
	if cfg.AppointmentTypesFile != "" {
		seed, err = settings.LoadTypesFile(cfg.AppointmentTypesFile)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.schedule = settings.NewStore(settingsRepo, seed, logger)
	if err := a.schedule.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}

	a.identity = identity.NewService(
		identity.NewPatientRepoPG(pool),
		identity.NewProviderRepoPG(pool),
		identity.NewUserRepoPG(pool),
		tx, logger,
	)

	a.engine = scheduling.NewEngine(a.locations, a.schedule, appointmentRepo, clinicTZ, logger)
	a.scheduling = scheduling.NewService(a.engine, appointmentRepo, tx, logger)

	var locker lock.Locker = lock.PGLocker{}
	if a.redis != nil {
		locker = lock.NewRedisLocker(a.redis, demoLockTTL)
	}
	a.seeder = demo.NewSeeder(demo.SeederDeps{
		Tx:           tx,
		Locker:       locker,
		Appointments: appointmentRepo,
		Locations:    locationRepo,
		Business:     businessRepo,
		Schedule:     settingsRepo,
		People:       a.identity,
		Reloader:     a.schedule,
		Logger:       logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}

func (a *app) revocations() auth.RevocationStore {
	if a.redis != nil {
		return auth.NewRedisRevocations(a.redis)
	}
	return auth.NewMemoryRevocations()
}

// newEcho builds the HTTP server with every route mounted.
func (a *app) newEcho() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	if cfg.MetricsEnabled {
		metrics.Register()
		e.Use(middleware.Metrics())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(db.PoolChecker{Pool: a.pool}))
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           3 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	key := []byte(cfg.JWTSigningKey)
	revocations := a.revocations()
	authHandler := auth.NewHandler(a.identity, a.identity, auth.NewTokenIssuer(key, cfg.JWTTTL), revocations, key, a.logger)

	public := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	authHandler.RegisterPublic(public)

	jwtCfg := auth.JWTConfig{SigningKey: key, Revocations: revocations}
	authn := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authn = auth.DevAuthMiddleware(jwtCfg)
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), authn)

	authHandler.RegisterRoutes(api)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	location.NewHandler(a.locations).RegisterRoutes(api)
	settings.NewHandler(a.schedule, a.locations).RegisterRoutes(api)
	identity.NewHandler(a.identity).RegisterRoutes(api)
	demo.NewHandler(a.seeder, a.engine.Today, cfg.DemoEnabled).RegisterRoutes(api)

	return e
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()
	logger.Info().Str("timezone", cfg.TimeZone).Bool("demo", cfg.DemoEnabled).Msg("connected to database")

	e := a.newEcho()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
