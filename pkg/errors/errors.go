package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Is matches AppErrors by code so sentinel comparisons survive WithInternal copies.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e != nil && appErr != nil && e.Code == appErr.Code
}

// Common errors exposed to the rest of the application. The messages are
// fixed generic strings; cryptographic failures must never leak plaintext,
// key material, or the process secret to callers.
var (
	ErrConfig = &AppError{
		Code:       "CONFIG_ERROR",
		Message:    "Invalid or missing configuration",
		StatusCode: http.StatusInternalServerError,
	}

	ErrKeyNotFound = &AppError{
		Code:       "KEY_NOT_FOUND",
		Message:    "Encryption key not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidCiphertext = &AppError{
		Code:       "INVALID_CIPHERTEXT",
		Message:    "Ciphertext is malformed or corrupted",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrDecryptionFailed = &AppError{
		Code:       "DECRYPTION_FAILED",
		Message:    "Unable to decrypt value",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrKeyCreationFailed = &AppError{
		Code:       "KEY_CREATION_FAILED",
		Message:    "Unable to create encryption key",
		StatusCode: http.StatusInternalServerError,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
