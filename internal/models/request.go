// Package models - API request types and input validation.
// This file defines the incoming device and publisher request bodies.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Struct tags carry the rules; go-playground/validator enforces them
// - Normalize after validation so handlers see trimmed values
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// UpdateCheckRequest is sent by a device asking whether to update.
//
// Field Semantics:
// - AppVersion: the binary version the device was installed with
// - Label: the OTA release the device is running; empty on a pure binary install
// - ClientUniqueID: stable device identifier used for staged rollout buckets
// - IsCompanion: companion apps never get binary update prompts
// - PackageHash: hash of the running package, echoed for diagnostics
type UpdateCheckRequest struct {
	AppVersion     string `json:"app_version" validate:"required,max=64"`
	ClientUniqueID string `json:"client_unique_id,omitempty" validate:"max=256"`
	IsCompanion    bool   `json:"is_companion,omitempty"`
	Label          string `json:"label,omitempty" validate:"max=64"`
	PackageHash    string `json:"package_hash,omitempty" validate:"max=128"`
}

// Validate checks the request against its struct rules.
func (r *UpdateCheckRequest) Validate() error {
	return validationError(Validator().Struct(r))
}

// Normalize trims whitespace from string fields.
func (r *UpdateCheckRequest) Normalize() {
	r.AppVersion = strings.TrimSpace(r.AppVersion)
	r.ClientUniqueID = strings.TrimSpace(r.ClientUniqueID)
	r.Label = strings.TrimSpace(r.Label)
	r.PackageHash = strings.TrimSpace(r.PackageHash)
}

// ReleaseRequest publishes a new release into an existing history.
type ReleaseRequest struct {
	AppVersion  string   `json:"app_version" validate:"required,max=64"`
	DownloadURL string   `json:"download_url" validate:"required,url"`
	PackageHash string   `json:"package_hash" validate:"required,hexadecimal,len=64"`
	Mandatory   bool     `json:"mandatory"`
	Enabled     *bool    `json:"enabled,omitempty"`
	Rollout     *float64 `json:"rollout,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Validate checks the request against its struct rules.
func (r *ReleaseRequest) Validate() error {
	return validationError(Validator().Struct(r))
}

// ReleaseInfo converts the request into the stored record. Releases are enabled
// unless the request says otherwise.
func (r *ReleaseRequest) ReleaseInfo() ReleaseInfo {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	info := ReleaseInfo{
		Enabled:     enabled,
		Mandatory:   r.Mandatory,
		DownloadURL: r.DownloadURL,
		PackageHash: r.PackageHash,
	}
	if r.Rollout != nil {
		rollout := *r.Rollout
		info.Rollout = &rollout
	}
	return info
}

// UpdateReleaseRequest changes flags on a published release.
type UpdateReleaseRequest struct {
	Mandatory *bool    `json:"mandatory,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Rollout   *float64 `json:"rollout,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Validate checks the request against its struct rules.
func (r *UpdateReleaseRequest) Validate() error {
	return validationError(Validator().Struct(r))
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s failed on %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validationError converts validator field errors into a *ValidationError.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe.Field())] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// fieldName converts a Go field name such as AppVersion to app_version.
func fieldName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(name[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
