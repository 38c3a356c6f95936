package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries an HTTP status and a machine-readable error code
// alongside the wrapped cause. Handlers return these and the fiber error
// handler turns them into the standard response envelope.
type AppError struct {
	StatusCode int         `json:"-"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, ErrorCode: ErrCodeBadRequest, Message: message, Err: err}
}

func NewValidationError(err error, errorCode, message string) *AppError {
	return &AppError{StatusCode: http.StatusUnprocessableEntity, ErrorCode: errorCode, Message: message, Err: err}
}

func NewFileTooLargeError(maxMB int) *AppError {
	return &AppError{
		StatusCode: http.StatusRequestEntityTooLarge,
		ErrorCode:  ErrCodeFileTooLarge,
		Message:    fmt.Sprintf("File exceeds the %dMB limit", maxMB),
	}
}

// NewUnlockError covers every denial from the unlock service. Payment
// required for eligibility failures, bad request for malformed tokens.
func NewUnlockError(errorCode, message string) *AppError {
	status := http.StatusPaymentRequired
	if errorCode == ErrCodeInvalidUnlockToken || errorCode == ErrCodeInvalidUnlockMethod {
		status = http.StatusBadRequest
	}
	return &AppError{StatusCode: status, ErrorCode: errorCode, Message: message}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{StatusCode: http.StatusTooManyRequests, ErrorCode: ErrCodeRateLimited, Message: message}
}

func NewNotFoundError(errorCode, message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, ErrorCode: errorCode, Message: message}
}

func NewServiceUnavailableError(err error, errorCode, message string) *AppError {
	return &AppError{StatusCode: http.StatusServiceUnavailable, ErrorCode: errorCode, Message: message, Err: err}
}

func NewInternalError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, ErrorCode: ErrCodeInternal, Message: message, Err: err}
}
