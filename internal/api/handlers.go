package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"otapush/internal/history"
	"otapush/internal/models"
	"otapush/internal/storage"
	"otapush/internal/update"
	"otapush/internal/version"
	"time"

	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies; every payload this API accepts is tiny.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the otapush API
type Handlers struct {
	updateService update.ServiceInterface
	storage       storage.Storage
	logger        *slog.Logger
	version       version.Info
	started       time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithStorage enables the storage component of the health check.
func WithStorage(s storage.Storage) HandlerOption {
	return func(h *Handlers) { h.storage = s }
}

// WithLogger sets the logger used for request and error logging.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handlers) { h.logger = logger }
}

// WithVersion sets the build info reported by the health check.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(updateService update.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		updateService: updateService,
		logger:        slog.Default(),
		version:       version.GetInfo(),
		started:       time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func historyKey(r *http.Request) models.HistoryKey {
	vars := mux.Vars(r)
	return models.NewHistoryKey(vars["binary_version"], vars["platform"], vars["identifier"])
}

// UpdateCheck answers a device asking whether it should update.
// POST /api/v1/update_check/{platform}/{identifier}
func (h *Handlers) UpdateCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.UpdateCheckRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.updateService.CheckForUpdate(r.Context(), vars["platform"], vars["identifier"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.UpdateCheckEnvelope{UpdateInfo: *resp})
}

// ListHistories lists the binary versions with a release history.
// GET /api/v1/histories/{platform}/{identifier}
func (h *Handlers) ListHistories(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	versions, err := h.updateService.ListHistories(r.Context(), vars["platform"], vars["identifier"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if versions == nil {
		versions = []string{}
	}

	key := models.NewHistoryKey("", vars["platform"], vars["identifier"])
	h.writeJSONResponse(w, http.StatusOK, models.HistoryListResponse{
		Platform:       key.Platform,
		Identifier:     key.Identifier,
		BinaryVersions: versions,
	})
}

// ShowHistory returns one release history.
// GET /api/v1/histories/{platform}/{identifier}/{binary_version}
func (h *Handlers) ShowHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.updateService.ShowHistory(r.Context(), historyKey(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.NewHistoryResponse(rec))
}

// CreateHistory starts an empty release history for a binary version.
// POST /api/v1/histories/{platform}/{identifier}/{binary_version}
// Requires 'write' permission when auth is enabled
func (h *Handlers) CreateHistory(w http.ResponseWriter, r *http.Request) {
	key := historyKey(r)

	rec, err := h.updateService.CreateHistory(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "release history created via api",
		"history", rec.Key.String(),
		"api_key", apiKeyName(r.Context()),
	)
	h.writeJSONResponse(w, http.StatusCreated, models.NewHistoryResponse(rec))
}

// Release publishes a new release into a history.
// POST /api/v1/histories/{platform}/{identifier}/{binary_version}/releases
// Requires 'write' permission when auth is enabled
func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	var req models.ReleaseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeServiceError(w, r, update.NewValidationError("invalid release request", err))
		return
	}

	rec, err := h.updateService.Release(r.Context(), historyKey(r), req.AppVersion, req.ReleaseInfo())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "release published via api",
		"history", rec.Key.String(),
		"app_version", req.AppVersion,
		"api_key", apiKeyName(r.Context()),
	)
	h.writeJSONResponse(w, http.StatusCreated, models.NewHistoryResponse(rec))
}

// UpdateRelease changes the flags on a published release.
// PATCH /api/v1/histories/{platform}/{identifier}/{binary_version}/releases/{app_version}
// Requires 'write' permission when auth is enabled
func (h *Handlers) UpdateRelease(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateReleaseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeServiceError(w, r, update.NewValidationError("invalid update request", err))
		return
	}

	appVersion := mux.Vars(r)["app_version"]
	rec, err := h.updateService.UpdateRelease(r.Context(), historyKey(r), appVersion, history.Update{
		Mandatory: req.Mandatory,
		Enabled:   req.Enabled,
		Rollout:   req.Rollout,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "release updated via api",
		"history", rec.Key.String(),
		"app_version", appVersion,
		"api_key", apiKeyName(r.Context()),
	)
	h.writeJSONResponse(w, http.StatusOK, models.NewHistoryResponse(rec))
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.started).Round(time.Second).String()

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "storage health check failed", "error", err)
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			response.Status = models.StatusUnhealthy
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// decodeBody reads a JSON body into dst. On failure it writes a 400 and
// returns false.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body", nil)
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; all that is left is to log.
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string, details map[string]string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.Details = details
	errorResp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceError maps err onto its HTTP status. Anything that is not a
// *update.ServiceError is reported as a 500 without leaking its text.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *update.ServiceError
	if !errors.As(err, &se) {
		h.logger.ErrorContext(r.Context(), "unexpected handler error", "error", err, "path", r.URL.Path)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error", nil)
		return
	}

	var details map[string]string
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		details = verr.Fields
	}

	message := se.Error()
	if se.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		message = se.Message
	}
	h.writeErrorResponse(w, r, se.StatusCode, se.Code, message, details)
}
