package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout        = "SCRAPE_TIMEOUT"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeAuthentication = "AUTHENTICATION_REQUIRED"
	ErrCodeLoginRequired  = "LOGIN_REQUIRED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewAuthenticationError reports that no valid session could be established.
func NewAuthenticationError(message string, err error) *ScrapeError {
	return NewScrapeError(ErrCodeAuthentication, message, err)
}

// NewNavigationError reports that a required page transition failed.
func NewNavigationError(message string, err error) *ScrapeError {
	return NewScrapeError(ErrCodeNavigation, message, err)
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// HasCode reports whether err wraps a ScrapeError with the given code.
func HasCode(err error, code string) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Code == code
}
