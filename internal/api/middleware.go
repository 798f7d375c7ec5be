package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"otapush/internal/models"
	"otapush/internal/ratelimit"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Permission names the access level a route requires.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const (
	apiKeyContextKey contextKey = iota
	requestIDContextKey
)

// APIKeyFromContext returns the key that authenticated the request, if any.
func APIKeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key, ok
}

// RequestIDFromContext returns the ID assigned by requestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func apiKeyName(ctx context.Context) string {
	key, ok := APIKeyFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	if key.Name != "" {
		return key.Name
	}
	return "unnamed-key"
}

func writeMiddlewareError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// matchKey returns the configured key whose digest matches token. Every
// enabled key is compared so the time taken does not depend on which matched.
func matchKey(keys []models.APIKey, token string) *models.APIKey {
	var found *models.APIKey
	for i := range keys {
		if keys[i].Enabled && keys[i].Matches(token) && found == nil {
			found = &keys[i]
		}
	}
	return found
}

// authMiddleware rejects requests that do not carry an enabled key with the
// required permission.
func authMiddleware(keys []models.APIKey, required Permission, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "Authorization required", models.ErrorCodeUnauthorized)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid authorization format", models.ErrorCodeUnauthorized)
				return
			}

			key := matchKey(keys, token)
			if key == nil {
				logger.WarnContext(r.Context(), "rejected api key",
					"path", r.URL.Path,
					"remote_addr", ratelimit.ClientIP(r),
				)
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid API key", models.ErrorCodeUnauthorized)
				return
			}
			if !key.HasPermission(string(required)) {
				writeMiddlewareError(w, http.StatusForbidden, "Insufficient permissions for this operation", models.ErrorCodeForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitKey charges authenticated callers to their key and everyone else
// to their IP.
func rateLimitKey(keys []models.APIKey) ratelimit.KeyFunc {
	return func(r *http.Request) string {
		if token, ok := bearerToken(r); ok {
			if key := matchKey(keys, token); key != nil {
				return "key:" + key.Name
			}
		}
		return "ip:" + ratelimit.ClientIP(r)
	}
}

// requestIDMiddleware reuses a sane inbound X-Request-ID or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if r.URL.Path == "/health" || r.URL.Path == "/api/v1/health" {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"remote_addr", ratelimit.ClientIP(r),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "Panic recovered", "error", err, "path", r.URL.Path)
					writeMiddlewareError(w, http.StatusInternalServerError, "Internal server error", models.ErrorCodeInternalError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
