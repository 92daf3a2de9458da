package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *TetherError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *TetherError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// NotAuthenticated is returned when an operation needs a stored session and none exists.
func NotAuthenticated(op string) *TetherError {
	return New(ErrCodeNotAuthenticated, fmt.Sprintf("%s requires a logged in session", op)).
		WithDetail("operation", op)
}

// FromStatus classifies a non-2xx HTTP response. 401 is kept distinct from other
// client errors because the gateway reacts to it.
func FromStatus(method, path string, status int, message string) *TetherError {
	if message == "" {
		message = http.StatusText(status)
	}
	var code ErrorCode
	switch {
	case status == http.StatusUnauthorized:
		code = ErrCodeUnauthorized
	case status >= 500:
		code = ErrCodeServerError
	default:
		code = ErrCodeServerRejected
	}
	return New(code, fmt.Sprintf("%s %s: %s", method, path, message)).
		WithDetail("status", status).
		WithDetail("path", path)
}

// NetworkUnreachable wraps a transport failure where no response was received.
func NetworkUnreachable(method, path string, err error) *TetherError {
	return Wrap(err, ErrCodeNetworkUnreachable, fmt.Sprintf("%s %s: server unreachable", method, path)).
		WithDetail("path", path)
}

// ConnectTimeout reports a realtime connection that did not complete in time.
func ConnectTimeout(role string, timeout time.Duration) *TetherError {
	return New(ErrCodeConnectTimeout,
		fmt.Sprintf("%s realtime connection not established within %s", role, timeout)).
		WithDetail("role", role).
		WithDetail("timeout", timeout.String())
}

// ConnectFailed reports a realtime dial that failed before the timeout.
func ConnectFailed(role string, err error) *TetherError {
	return Wrap(err, ErrCodeConnectFailed, fmt.Sprintf("%s realtime connection failed", role)).
		WithDetail("role", role)
}

// DataTimeout reports a connected channel that delivered no snapshot in time.
func DataTimeout(role string, timeout time.Duration) *TetherError {
	return New(ErrCodeDataTimeout,
		fmt.Sprintf("no %s location data received within %s", role, timeout)).
		WithDetail("role", role).
		WithDetail("timeout", timeout.String())
}

// Disconnected reports an unexpected loss of the realtime transport.
func Disconnected(role string, err error) *TetherError {
	return Wrap(err, ErrCodeDisconnected, fmt.Sprintf("%s realtime connection lost", role)).
		WithDetail("role", role)
}

// ReconnectExhausted is returned once the reconnect budget is spent.
func ReconnectExhausted(role string, attempts int, last error) *TetherError {
	return Wrap(last, ErrCodeReconnectExhausted,
		fmt.Sprintf("gave up reconnecting %s channel after %d attempts", role, attempts)).
		WithDetail("role", role).
		WithDetail("attempts", attempts)
}

// ThresholdOutOfRange reports a threshold outside [0, max].
func ThresholdOutOfRange(name string, value, max float64) *TetherError {
	return New(ErrCodeThresholdOutOfRange,
		fmt.Sprintf("%s threshold %g must be between 0 and %g", name, value, max)).
		WithDetail("threshold", name).
		WithDetail("value", value)
}

// ThresholdOutOfOrder reports thresholds that are not strictly increasing.
func ThresholdOutOfOrder(safe, warning, danger float64) *TetherError {
	return New(ErrCodeThresholdOutOfOrder,
		fmt.Sprintf("thresholds must satisfy safe < warning < danger (got %g, %g, %g)", safe, warning, danger)).
		WithDetail("safe", safe).
		WithDetail("warning", warning).
		WithDetail("danger", danger)
}

// StoreFailed wraps a credential store I/O failure.
func StoreFailed(op string, err error) *TetherError {
	return Wrap(err, ErrCodeStoreFailed, fmt.Sprintf("credential store %s failed", op)).
		WithDetail("operation", op)
}

// InvalidInput reports a caller supplied value that was rejected locally.
func InvalidInput(field, reason string) *TetherError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason)).
		WithDetail("field", field)
}
