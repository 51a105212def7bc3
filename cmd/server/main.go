package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	httpRouter "savings-rate-service/internal/adapter/http"
	"savings-rate-service/internal/app"
	"savings-rate-service/internal/config"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/internal/metrics"
	"savings-rate-service/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger("error").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting savings rate service", "store", cfg.Store.Backend)

	appMetrics := metrics.NewMetrics()

	deps, err := app.Setup(cfg, log, appMetrics)
	if err != nil {
		log.Error("Failed to initialise dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	handler := httpRouter.NewHandler(deps.Acquirer, log, appMetrics)
	router := httpRouter.NewRouter(handler, log, appMetrics, prometheus.DefaultGatherer)
	routes := router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancelInspect := context.WithCancel(context.Background())
	if cfg.Server.FetchOnStartup {
		go func() {
			sample := deps.Acquirer.Fetch(ctx)
			log.Info("Initial exchange rate", "rate", sample.Rate, "source", sample.Source)
		}()
	}
	go inspectRates(ctx, deps.Acquirer, appMetrics, cfg.Server.InspectInterval, log)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	cancelInspect()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

// inspectRates periodically publishes quota and cache health as gauges.
// It never fetches.
func inspectRates(ctx context.Context, acquirer ports.RateAcquirer, recorder ports.Recorder, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info := acquirer.Inspect(ctx)
		recorder.SetQuotaRemaining(info.RemainingQuota)
		if info.CacheAge != nil {
			recorder.SetCacheAge(*info.CacheAge, true)
		} else {
			recorder.SetCacheAge(0, false)
		}
		if info.RemainingQuota < 10 {
			log.Warn("Remote quota running low", "remaining", info.RemainingQuota)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info("Stopping rate inspector goroutine")
			return
		}
	}
}
