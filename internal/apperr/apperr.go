// Package apperr defines the error taxonomy shared by the publish pipeline and
// the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Coded is implemented by every error type in this package.
type Coded interface {
	error
	ErrCode() string
	StatusCode() int
}

// ValidationError rejects malformed rule or occurrence input before persistence.
type ValidationError string

func (err ValidationError) Error() string   { return string(err) }
func (err ValidationError) ErrCode() string { return "VALIDATION_ERROR" }
func (err ValidationError) StatusCode() int { return http.StatusBadRequest }

// NotFoundError is returned when a requested row does not exist.
type NotFoundError string

func (err NotFoundError) Error() string   { return string(err) }
func (err NotFoundError) ErrCode() string { return "NOT_FOUND_ERROR" }
func (err NotFoundError) StatusCode() int { return http.StatusNotFound }

// AuthError means the provider token is expired, revoked or otherwise invalid.
// It is surfaced as a reconnect prompt and never retried silently.
type AuthError string

func (err AuthError) Error() string   { return string(err) }
func (err AuthError) ErrCode() string { return "AUTH_ERROR" }
func (err AuthError) StatusCode() int { return http.StatusUnauthorized }

// TransientProviderError covers network failures and rate limits. Retry is
// manual via publish-now.
type TransientProviderError string

func (err TransientProviderError) Error() string   { return string(err) }
func (err TransientProviderError) ErrCode() string { return "TRANSIENT_PROVIDER_ERROR" }
func (err TransientProviderError) StatusCode() int { return http.StatusBadGateway }

// PermanentProviderError means the provider rejected the content.
type PermanentProviderError string

func (err PermanentProviderError) Error() string   { return string(err) }
func (err PermanentProviderError) ErrCode() string { return "PERMANENT_PROVIDER_ERROR" }
func (err PermanentProviderError) StatusCode() int { return http.StatusUnprocessableEntity }

// InternalError wraps unexpected failures.
type InternalError string

func (err InternalError) Error() string   { return string(err) }
func (err InternalError) ErrCode() string { return "INTERNAL_ERROR" }
func (err InternalError) StatusCode() int { return http.StatusInternalServerError }

// StatusCode maps any error to an HTTP status. Errors outside the taxonomy
// are treated as internal.
func StatusCode(err error) int {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return http.StatusInternalServerError
}

// Code returns the taxonomy code for err, or INTERNAL_ERROR.
func Code(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrCode()
	}
	return InternalError("").ErrCode()
}
