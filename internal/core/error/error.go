package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a Redis key does not exist.
	RedisNotFoundMessage = "redis key not found"
	// RedisTimeoutMessage is used when a session store call hits its deadline.
	RedisTimeoutMessage = "redis operation timed out"
	// DatabaseErrorMessage describes relational store failures.
	DatabaseErrorMessage = "database operation failed"
	// NotFoundMessage is used when a requested record does not exist.
	NotFoundMessage = "record not found"
	// LLMErrorMessage describes failures of the language model provider.
	LLMErrorMessage = "llm request failed"
	// InvalidInputMessage is returned for malformed client payloads.
	InvalidInputMessage = "invalid input"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NotFound builds a 404 AppError around err.
func NotFound(err error) *AppError {
	return New(err, http.StatusNotFound, NotFoundMessage)
}

// WrapLLM wraps a provider failure with a consistent status code and message.
func WrapLLM(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, LLMErrorMessage)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return StatusOf(err) == http.StatusNotFound
}
