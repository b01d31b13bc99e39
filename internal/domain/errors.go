package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation error")
	ErrCostLimitExceeded = errors.New("daily cost limit exceeded")
	ErrUploadAuth        = errors.New("upload authorization failed")
	ErrProviderTimeout   = errors.New("provider timeout")
	ErrProviderFailure   = errors.New("provider failure")
	ErrStorageFailure    = errors.New("storage failure")
)

// FailureCategory is the stable, client-safe label stored in error_message and
// returned from the status API. Raw provider errors never leave the worker.
type FailureCategory string

const (
	CategoryValidation      FailureCategory = "validation_error"
	CategoryUploadAuth      FailureCategory = "upload_auth_error"
	CategoryProviderTimeout FailureCategory = "provider_timeout"
	CategoryProviderError   FailureCategory = "provider_error"
	CategoryStorageError    FailureCategory = "storage_error"
	CategoryConflict        FailureCategory = "conflict"
	CategoryCostLimit       FailureCategory = "cost_limit_exceeded"
)

// Categorize maps a worker-side error to its client-safe failure category.
func Categorize(err error) FailureCategory {
	switch {
	case errors.Is(err, ErrProviderTimeout):
		return CategoryProviderTimeout
	case errors.Is(err, ErrProviderFailure):
		return CategoryProviderError
	case errors.Is(err, ErrStorageFailure):
		return CategoryStorageError
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	default:
		return CategoryProviderError
	}
}
