package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"otapush/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves Prometheus metrics on their own port so scrapes never
// compete with device traffic.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer serves provider's registry at cfg.Path on cfg.Port.
func NewMetricsServer(cfg models.MetricsConfig, provider *Provider, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	if provider != nil && provider.registry != nil {
		mux.Handle(cfg.Path, promhttp.HandlerFor(provider.registry, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
		}))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Handler exposes the metrics mux for tests.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.server.Addr)
	if err != nil {
		return err
	}
	return ms.Serve(ln)
}

// Serve serves metrics on ln.
func (ms *MetricsServer) Serve(ln net.Listener) error {
	ms.logger.Info("starting metrics server", "addr", ln.Addr().String())
	return ms.server.Serve(ln)
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
