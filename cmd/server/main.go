package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablebook/internal/api"
	"tablebook/internal/cache"
	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/models"
	"tablebook/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Getenv("TABLEBOOK_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid time zone")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()
	db.UseLocation(loc)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	var availabilityCache service.AvailabilityCache
	if c := cache.NewAvailabilityCache(rdb, cfg.CacheTTL()); c.Enabled() {
		availabilityCache = c
	}

	bus := events.NewEventBus(logger)
	bus.SubscribeAll(logEvent(logger),
		events.ReservationCreated,
		events.ReservationStatusChanged,
		events.ReservationTablesChanged,
		events.ConfigReloaded,
	)

	svc := service.NewBookingService(db, availabilityCache, bus, service.Config{
		Location:   loc,
		MaxAdvance: cfg.MaxAdvance(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first call happens synchronously inside WatchRestaurant.
	err = config.WatchRestaurant(ctx, cfg.Restaurant.ConfigPath, cfg.WatchInterval(), logger, func(rc *config.RestaurantConfig) {
		if err := db.SyncFromConfig(ctx, rc, loc); err != nil {
			metrics.IncConfigReload(false)
			logger.Error().Err(err).Msg("Failed to store restaurant config")
			return
		}
		if err := svc.Reload(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to reload booking engine")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("load restaurant config")
	}
	if !svc.Ready() {
		logger.Fatal().Msg("booking engine did not start")
	}

	httpServer := api.NewHTTPServer(api.Config{
		Address:       cfg.Server.Address,
		ReadTimeout:   time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:  time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		StaffAPIKey:   cfg.API.StaffAPIKey,
		RatePerSecond: cfg.API.RatePerSecond,
		RateBurst:     cfg.API.RateBurst,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Location:      loc,
	}, svc, logger)

	backups := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, logger)

	if cfg.API.StaffAPIKey == "" {
		logger.Warn().Msg("api.staff_api_key is empty, staff endpoints are disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error { return backups.Start(gctx) })

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	g.Go(func() error {
		return serve(gctx, cfg.Monitoring.HealthCheckPort, healthMux(gctx, db, rdb, svc))
	})

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error { return serve(gctx, cfg.Monitoring.PrometheusPort, mux) })
	}

	logger.Info().Str("addr", cfg.Server.Address).Str("timezone", loc.String()).Msg("Tablebook started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("Tablebook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func logEvent(logger zerolog.Logger) events.EventHandler {
	log := logger.With().Str("component", "audit").Logger()
	return func(e events.Event) error {
		entry := log.Info().Str("type", e.Type)
		if !e.Date.IsZero() {
			entry = entry.Str("date", e.Date.Format(models.DateLayout))
		}
		if e.Type != events.ConfigReloaded {
			p, err := events.DecodeReservation(e)
			if err != nil {
				return err
			}
			entry = entry.Int64("reservation_id", p.ID).Str("reference", p.Reference)
		}
		entry.Msg("Event")
		return nil
	}
}

func healthMux(ctx context.Context, db *database.DB, rdb *redis.Client, svc *service.BookingService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if !svc.Ready() {
			http.Error(w, "engine not ready", http.StatusServiceUnavailable)
			return
		}
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

func serve(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
