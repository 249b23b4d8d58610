/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storeforge/storefront/internal/types"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Tenant resolution errors
	ErrStoreNotFound  ErrorCode = "STORE_NOT_FOUND"
	ErrStoreNotActive ErrorCode = "STORE_NOT_ACTIVE"

	// Rendering errors
	ErrTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrRenderError      ErrorCode = "RENDER_ERROR"
	ErrDataError        ErrorCode = "DATA_ERROR"

	// Request validation errors
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Authentication and authorization errors
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"

	// Rate limiting errors
	ErrRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// System errors
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout            ErrorCode = "TIMEOUT"
)

// StorefrontError represents a structured storefront error
type StorefrontError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"` // Internal cause, not exposed in JSON
}

// Error implements the error interface
func (e *StorefrontError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *StorefrontError) Unwrap() error {
	return e.Cause
}

// ToErrorResponse converts StorefrontError to types.ErrorResponse
func (e *StorefrontError) ToErrorResponse() types.ErrorResponse {
	return types.ErrorResponse{
		Error: types.ErrorDetail{
			Code:      string(e.Code),
			Message:   e.Message,
			Details:   e.Details,
			Timestamp: e.Timestamp,
			RequestID: e.RequestID,
		},
	}
}

// New creates a new StorefrontError
func New(code ErrorCode, message string) *StorefrontError {
	return &StorefrontError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates a new StorefrontError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *StorefrontError {
	return &StorefrontError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}
}

// Wrap creates a new StorefrontError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *StorefrontError {
	return &StorefrontError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// Wrapf creates a new StorefrontError wrapping an existing error with formatted message
func Wrapf(code ErrorCode, cause error, format string, args ...interface{}) *StorefrontError {
	return &StorefrontError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// WithDetails adds details to a StorefrontError
func (e *StorefrontError) WithDetails(details map[string]interface{}) *StorefrontError {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to a StorefrontError
func (e *StorefrontError) WithRequestID(requestID string) *StorefrontError {
	e.RequestID = requestID
	return e
}

// IsRetryable determines if an error is retryable
func (e *StorefrontError) IsRetryable() bool {
	switch e.Code {
	case ErrTimeout, ErrServiceUnavailable, ErrRateLimitExceeded:
		return true
	case ErrDataError:
		if e.Cause != nil {
			causeStr := e.Cause.Error()
			for _, s := range []string{"timeout", "connection refused", "connection reset"} {
				if strings.Contains(causeStr, s) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// IsTerminal reports whether the error ends the request instead of degrading
// to a fallback page
func (e *StorefrontError) IsTerminal() bool {
	switch e.Code {
	case ErrStoreNotFound, ErrStoreNotActive, ErrTemplateNotFound:
		return true
	default:
		return false
	}
}

// GetHTTPStatus returns the appropriate HTTP status code for the error
func (e *StorefrontError) GetHTTPStatus() int {
	switch e.Code {
	case ErrInvalidRequest:
		return 400 // Bad Request

	case ErrUnauthorized:
		return 401 // Unauthorized

	case ErrStoreNotActive:
		return 402 // Payment Required

	case ErrForbidden:
		return 403 // Forbidden

	case ErrStoreNotFound, ErrTemplateNotFound:
		return 404 // Not Found

	case ErrValidationFailed:
		return 422 // Unprocessable Entity

	case ErrRateLimitExceeded:
		return 429 // Too Many Requests

	case ErrRenderError, ErrDataError, ErrInternalError:
		return 500 // Internal Server Error

	case ErrServiceUnavailable:
		return 503 // Service Unavailable

	case ErrTimeout:
		return 504 // Gateway Timeout

	default:
		return 500 // Default to Internal Server Error
	}
}

// Common error constructors for convenience

// NewStoreNotFoundError creates a store not found error
func NewStoreNotFoundError(domain string) *StorefrontError {
	return Newf(ErrStoreNotFound, "no store found for domain %s", domain).
		WithDetails(map[string]interface{}{"domain": domain})
}

// NewStoreNotActiveError creates a store not active error
func NewStoreNotActiveError(storeID string) *StorefrontError {
	return Newf(ErrStoreNotActive, "store %s is not active", storeID).
		WithDetails(map[string]interface{}{"store_id": storeID})
}

// NewTemplateNotFoundError creates a template not found error
func NewTemplateNotFoundError(template string) *StorefrontError {
	return Newf(ErrTemplateNotFound, "template %s not found", template).
		WithDetails(map[string]interface{}{"template": template})
}

// NewRenderError creates a render error
func NewRenderError(message string, cause error) *StorefrontError {
	return Wrap(ErrRenderError, message, cause)
}

// NewDataError creates a data access error
func NewDataError(message string, cause error) *StorefrontError {
	return Wrap(ErrDataError, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, details map[string]interface{}) *StorefrontError {
	return New(ErrValidationFailed, message).WithDetails(details)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *StorefrontError {
	return Wrap(ErrInternalError, message, cause)
}

// IsStorefrontError checks if an error is a StorefrontError
func IsStorefrontError(err error) bool {
	_, ok := AsStorefrontError(err)
	return ok
}

// AsStorefrontError converts an error to StorefrontError if possible
func AsStorefrontError(err error) (*StorefrontError, bool) {
	var sfErr *StorefrontError
	if errors.As(err, &sfErr) {
		return sfErr, true
	}
	return nil, false
}

// HasCode reports whether err is a StorefrontError with the given code
func HasCode(err error, code ErrorCode) bool {
	sfErr, ok := AsStorefrontError(err)
	return ok && sfErr.Code == code
}
