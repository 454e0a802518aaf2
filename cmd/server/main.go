package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/handler"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/makkenzo/keybind/internal/storage"
	"github.com/makkenzo/keybind/internal/storage/redis"
	"github.com/makkenzo/keybind/internal/worker"
	"github.com/makkenzo/keybind/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(appCtx, cfg, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open license store: %v", err)
	}
	defer backend.Close()

	// The worker needs Redis even when licenses live elsewhere.
	redisClient := backend.Redis
	if cfg.Worker.Enabled && redisClient == nil {
		redisClient, err = redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func(c *goredis.Client) { _ = c.Close() }(redisClient)
	}

	licenseService := service.NewLicenseService(backend.Store, &cfg.License, appLogger)
	authService := service.NewAuthService(&cfg.Admin, appLogger)

	router := handler.NewRouter(handler.RouterDeps{
		Config:         &cfg.Server,
		LicenseService: licenseService,
		AuthService:    authService,
		Redis:          redisClient,
		Logger:         appLogger,
	})

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if cfg.Worker.Enabled {
		g.Go(func() error {
			if err := worker.RunWorkers(groupCtx, cfg, licenseService, appLogger); err != nil {
				appLogger.Error("Asynq worker failed", zap.Error(err))
				return fmt.Errorf("asynq worker error: %w", err)
			}
			sugarLogger.Info("Asynq workers finished gracefully.")
			return nil
		})
	} else {
		sugarLogger.Info("Background worker disabled; stats gauges refresh only on /admin/stats")
	}

	sugarLogger.Infow("Application started",
		"store", backend.Name,
		"bind_mode", cfg.License.BindMode,
	)

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
	} else {
		sugarLogger.Info("Application shutdown successfully.")
	}
}
