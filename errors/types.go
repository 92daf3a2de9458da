package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Session errors
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeRefreshFailed    ErrorCode = "REFRESH_FAILED"

	// Server and network errors
	ErrCodeServerRejected     ErrorCode = "SERVER_REJECTED"
	ErrCodeServerError        ErrorCode = "SERVER_ERROR"
	ErrCodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"

	// Realtime errors
	ErrCodeConnectTimeout     ErrorCode = "CONNECT_TIMEOUT"
	ErrCodeConnectFailed      ErrorCode = "CONNECT_FAILED"
	ErrCodeDataTimeout        ErrorCode = "DATA_TIMEOUT"
	ErrCodeDisconnected       ErrorCode = "DISCONNECTED"
	ErrCodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"

	// Threshold errors
	ErrCodeThresholdOutOfRange ErrorCode = "THRESHOLD_OUT_OF_RANGE"
	ErrCodeThresholdOutOfOrder ErrorCode = "THRESHOLD_OUT_OF_ORDER"

	// General errors
	ErrCodeStoreFailed  ErrorCode = "STORE_FAILED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// TetherError represents a structured error with context
type TetherError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TetherError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TetherError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *TetherError) WithDetail(key string, value interface{}) *TetherError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *TetherError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new TetherError
func New(code ErrorCode, message string) *TetherError {
	return &TetherError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TetherError
func Wrap(err error, code ErrorCode, message string) *TetherError {
	return &TetherError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// As returns the outermost TetherError in the chain, if any.
func As(err error) (*TetherError, bool) {
	for err != nil {
		if te, ok := err.(*TetherError); ok {
			return te, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// Is checks if any TetherError in the chain carries code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if te, ok := err.(*TetherError); ok && te.Code == code {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	te, ok := As(err)
	if !ok {
		return ""
	}
	return te.Code
}

// Status returns the HTTP status recorded on a server error, or 0.
func Status(err error) int {
	te, ok := As(err)
	if !ok || te.Details == nil {
		return 0
	}
	status, _ := te.Details["status"].(int)
	return status
}
