package update

import (
	"errors"
	"fmt"
	"net/http"
	"otapush/internal/history"
	"otapush/internal/models"
	"otapush/internal/storage"
	"otapush/internal/versioning"
)

// ServiceError represents errors from the update service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewHistoryNotFoundError(key models.HistoryKey, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeHistoryNotFound,
		Message:    fmt.Sprintf("no release history for %s", key),
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewConflictError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        err,
	}
}

func NewNotFoundError(code, message string, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

// classify maps a domain error onto a ServiceError. Errors that are already
// a *ServiceError pass through unchanged.
func classify(key models.HistoryKey, message string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewHistoryNotFoundError(key, err)
	case errors.Is(err, history.ErrReleaseNotFound):
		return NewNotFoundError(models.ErrorCodeReleaseNotFound, message, err)
	case errors.Is(err, versioning.ErrNoReleaseFound):
		return NewNotFoundError(models.ErrorCodeNoReleaseFound, message, err)
	case errors.Is(err, history.ErrDuplicateRelease):
		return &ServiceError{Code: models.ErrorCodeDuplicateRelease, Message: message, StatusCode: http.StatusConflict, Err: err}
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, storage.ErrConflict):
		return NewConflictError(message, err)
	case errors.Is(err, history.ErrNoChanges):
		return NewInvalidRequestError(message, err)
	case errors.Is(err, history.ErrInvalidRollout), errors.Is(err, versioning.ErrInvalidArgument):
		return NewValidationError(message, err)
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return NewValidationError(message, err)
	}
	return NewInternalError(message, err)
}
