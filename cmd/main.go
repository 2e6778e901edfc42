package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/fight-train/brackets"
	"github.com/Dosada05/fight-train/combat"
	"github.com/Dosada05/fight-train/config"
	"github.com/Dosada05/fight-train/db"
	"github.com/Dosada05/fight-train/handlers"
	"github.com/Dosada05/fight-train/middleware"
	"github.com/Dosada05/fight-train/repositories"
	"github.com/Dosada05/fight-train/routes"
	"github.com/Dosada05/fight-train/services"
	"github.com/Dosada05/fight-train/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", slog.String("level", cfg.LogLevel))
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Int("car_count", cfg.Rules.CarCount),
		slog.Bool("postgres", cfg.DatabaseURL != ""),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	hub := brackets.NewHub(logger)
	var (
		publisher brackets.Publisher = hub
		relay     *brackets.RedisRelay
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", slog.Any("error", err))
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		relay = brackets.NewRedisRelay(redisClient, hub, logger)
		publisher = relay
		logger.Info("redis relay enabled", slog.String("addr", cfg.RedisAddr))
	}

	var uploader storage.FileUploader
	if cfg.ArchiveEnabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
			Endpoint:        cfg.R2Endpoint,
		})
		if err != nil {
			return fmt.Errorf("initialize verdict archive: %w", err)
		}
		logger.Info("verdict archive enabled", slog.String("bucket", cfg.R2BucketName))
	}
	archive := services.NewVerdictArchive(uploader, logger)
	defer archive.Wait()

	rng, err := combat.NewSource()
	if err != nil {
		return fmt.Errorf("seed fight randomness: %w", err)
	}
	trains := services.NewTrainService(
		store,
		combat.NewResolver(rng, cfg.Rules),
		cfg.Rules,
		services.NewNotifier(publisher, metrics, logger),
		archive,
		metrics,
		logger,
	)
	roster := services.NewRoster(store, logger)

	sweeper, err := services.NewFightSweeper(trains, cfg.SweepInterval, logger)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	opts := routes.Options{AllowedOrigins: cfg.CORSAllowedOrigins}
	if cfg.MetricsEnabled {
		opts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	routes.SetupRoutes(router,
		middleware.NewAuthenticator(cfg.JWTSecretKey, logger),
		handlers.NewTrainHandler(trains, roster),
		handlers.NewCompetitorHandler(roster),
		handlers.NewWebSocketHandler(hub, trains, cfg.CORSAllowedOrigins, logger),
		opts,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	sweeper.Start()
	err = g.Wait()
	if shutdownErr := sweeper.Shutdown(); shutdownErr != nil {
		logger.Error("failed to stop sweeper", slog.Any("error", shutdownErr))
	}
	return err
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, state is kept in memory")
		return repositories.NewMemoryStore(), func() {}, nil
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	closeDB := func(conn *sql.DB) {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}
	if err := db.Migrate(ctx, dbConn); err != nil {
		closeDB(dbConn)
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("database connection established")
	return repositories.NewPostgresStore(dbConn), func() { closeDB(dbConn) }, nil
}
