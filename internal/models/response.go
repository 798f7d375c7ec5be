// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - The device check response keeps the field names update clients already parse
// - Errors share one envelope with a machine-readable code
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// UpdateCheckResponse tells a device what to do after a check.
//
// Client Usage:
// - ShouldRunBinaryVersion: discard installed OTA content and run the binary's code
// - IsAvailable: download and install the package at DownloadURL
// - IsMandatory: install without letting the user defer
// - UpdateAppVersion: no history exists for this binary; a store update is needed
type UpdateCheckResponse struct {
	DownloadURL            string `json:"download_url"`
	Description            string `json:"description"`
	IsAvailable            bool   `json:"is_available"`
	IsDisabled             bool   `json:"is_disabled"`
	TargetBinaryRange      string `json:"target_binary_range"`
	Label                  string `json:"label"`
	PackageHash            string `json:"package_hash"`
	PackageSize            int64  `json:"package_size"`
	ShouldRunBinaryVersion bool   `json:"should_run_binary_version"`
	UpdateAppVersion       bool   `json:"update_app_version"`
	IsMandatory            bool   `json:"is_mandatory"`
}

// UpdateCheckEnvelope wraps the check response the way update clients expect.
type UpdateCheckEnvelope struct {
	UpdateInfo UpdateCheckResponse `json:"update_info"`
}

// NewNoUpdateResponse returns the response for a device that is up to date.
func NewNoUpdateResponse(appVersion string) UpdateCheckResponse {
	return UpdateCheckResponse{TargetBinaryRange: appVersion}
}

// SetTarget fills the package fields from a release.
func (r *UpdateCheckResponse) SetTarget(version string, info ReleaseInfo) {
	r.Label = version
	r.DownloadURL = info.DownloadURL
	r.PackageHash = info.PackageHash
	r.IsDisabled = !info.Enabled
}

// HistoryResponse is a release history with its storage identity.
type HistoryResponse struct {
	BinaryVersion string         `json:"binary_version" yaml:"binary_version"`
	Platform      string         `json:"platform" yaml:"platform"`
	Identifier    string         `json:"identifier" yaml:"identifier"`
	Revision      int64          `json:"revision" yaml:"revision"`
	History       ReleaseHistory `json:"history" yaml:"history"`
}

// NewHistoryResponse builds the response for a stored record.
func NewHistoryResponse(rec *HistoryRecord) *HistoryResponse {
	return &HistoryResponse{
		BinaryVersion: rec.Key.BinaryVersion,
		Platform:      rec.Key.Platform,
		Identifier:    rec.Key.Identifier,
		Revision:      rec.Revision,
		History:       rec.History,
	}
}

// HistoryListResponse lists the binary versions with a history.
type HistoryListResponse struct {
	Platform       string   `json:"platform" yaml:"platform"`
	Identifier     string   `json:"identifier" yaml:"identifier"`
	BinaryVersions []string `json:"binary_versions" yaml:"binary_versions"`
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      string            `json:"code"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeHistoryNotFound    = "HISTORY_NOT_FOUND"   // 404: No history for the binary version
	ErrorCodeReleaseNotFound    = "RELEASE_NOT_FOUND"   // 404: Version not in history
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 422: Input validation failed
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeForbidden          = "FORBIDDEN"           // 403: Permission denied
	ErrorCodeConflict           = "CONFLICT"            // 409: Resource conflict
	ErrorCodeDuplicateRelease   = "DUPLICATE_RELEASE"   // 409: Version already released
	ErrorCodeNoReleaseFound     = "NO_RELEASE_FOUND"    // 404: No enabled release
	ErrorCodeRateLimited        = "RATE_LIMITED"        // 429: Too many requests
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
