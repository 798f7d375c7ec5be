package api

import (
	"net/http"
	"otapush/internal/models"
	"otapush/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type routeConfig struct {
	middleware []mux.MiddlewareFunc
	limiter    ratelimit.Limiter
	staticDir  string
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeConfig)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(c *routeConfig) {
		c.middleware = append(c.middleware, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/api/v1/health"
			}),
		))
	}
}

// WithRateLimiter throttles every /api/v1 route with limiter. Callers with a
// valid API key get their own bucket.
func WithRateLimiter(limiter ratelimit.Limiter) RouteOption {
	return func(c *routeConfig) { c.limiter = limiter }
}

// WithStaticFiles serves dir under /static/ so locally uploaded bundles can be
// downloaded from the same server.
func WithStaticFiles(dir string) RouteOption {
	return func(c *routeConfig) { c.staticDir = dir }
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	var rc routeConfig
	for _, opt := range opts {
		opt(&rc)
	}

	router := mux.NewRouter()
	for _, mw := range rc.middleware {
		router.Use(mw)
	}
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(handlers.logger))
	router.Use(recoveryMiddleware(handlers.logger))

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	if rc.limiter != nil {
		api.Use(ratelimit.Middleware(rc.limiter, rateLimitKey(config.Security.APIKeys), handlers.logger))
	}

	api.HandleFunc("/update_check/{platform}/{identifier}", handlers.UpdateCheck).Methods("POST")

	readAPI := api.PathPrefix("/histories").Subrouter()
	writeAPI := api.PathPrefix("/histories").Subrouter()
	if config.Security.EnableAuth {
		readAPI.Use(authMiddleware(config.Security.APIKeys, PermissionRead, handlers.logger))
		writeAPI.Use(authMiddleware(config.Security.APIKeys, PermissionWrite, handlers.logger))
	}

	readAPI.HandleFunc("/{platform}/{identifier}", handlers.ListHistories).Methods("GET")
	readAPI.HandleFunc("/{platform}/{identifier}/{binary_version}", handlers.ShowHistory).Methods("GET")

	writeAPI.HandleFunc("/{platform}/{identifier}/{binary_version}", handlers.CreateHistory).Methods("POST")
	writeAPI.HandleFunc("/{platform}/{identifier}/{binary_version}/releases", handlers.Release).Methods("POST")
	writeAPI.HandleFunc("/{platform}/{identifier}/{binary_version}/releases/{app_version}", handlers.UpdateRelease).Methods("PATCH")

	if rc.staticDir != "" {
		router.PathPrefix("/static/").
			Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(rc.staticDir)))).
			Methods("GET", "HEAD")
	}

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMiddlewareError(w, http.StatusMethodNotAllowed, "Method not allowed", models.ErrorCodeInvalidRequest)
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMiddlewareError(w, http.StatusNotFound, "Not found", models.ErrorCodeNotFound)
	})

	handlers.logger.Debug("routes configured",
		"auth", config.Security.EnableAuth,
		"rate_limited", rc.limiter != nil,
		"static", rc.staticDir != "",
	)
	return router
}
