package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"otapush/internal/api"
	"otapush/internal/config"
	"otapush/internal/logger"
	"otapush/internal/models"
	"otapush/internal/observability"
	"otapush/internal/ratelimit"
	"otapush/internal/storage"
	"otapush/internal/update"
	"otapush/internal/version"
	"otapush/internal/versioning"
	"syscall"
	"time"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	storageInstance, err := storage.NewFactory(log).Create(startCtx, cfg.Storage)
	cancelStart()
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err, "type", cfg.Storage.Type)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	serviceOpts := []update.Option{update.WithLogger(log)}
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented

		decisions, err := observability.NewDecisionCounter()
		if err != nil {
			slog.Error("Failed to create decision counter", "error", err)
			os.Exit(1)
		}
		serviceOpts = append(serviceOpts, update.WithDecisionRecorder(decisions))
	}

	updateService := update.NewService(activeStorage, versioning.Kind(cfg.Versioning.Strategy), serviceOpts...)

	handlers := api.NewHandlers(updateService,
		api.WithStorage(activeStorage),
		api.WithLogger(log),
		api.WithVersion(version.GetInfo()),
	)

	router := api.SetupRoutes(handlers, cfg, routeOptions(cfg)...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider, log)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"storage", cfg.Storage.Type,
			"versioning", cfg.Versioning.Strategy,
			"auth", cfg.Security.EnableAuth,
		)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// routeOptions turns the optional HTTP features on from config.
func routeOptions(cfg *models.Config) []api.RouteOption {
	var opts []api.RouteOption
	if cfg.Observability.Tracing.Enabled {
		opts = append(opts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	if limiter := ratelimit.New(cfg.Security.RateLimit); limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	// Locally uploaded bundles are served by the same process.
	if cfg.Upload.Type == models.UploadTypeLocal {
		opts = append(opts, api.WithStaticFiles(cfg.Upload.Path))
	}
	return opts
}
