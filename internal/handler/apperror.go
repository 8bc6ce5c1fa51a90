package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrDuplicateEntry      = &AppError{http.StatusConflict, "DUPLICATE_ENTRY", "Ledger entry already exists"}
	ErrUnresolvableAccount = &AppError{http.StatusUnprocessableEntity, "UNRESOLVABLE_ACCOUNT", "Movement cannot be attributed to a card"}
	ErrProviderUnavailable = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Provider fetch failed"}
	ErrVersionConflict     = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrInvalidProvider     = &AppError{http.StatusBadRequest, "INVALID_PROVIDER", "Unknown provider"}
	ErrInvalidWindow       = &AppError{http.StatusBadRequest, "INVALID_WINDOW", "Invalid or missing time window"}
)
