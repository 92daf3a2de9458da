package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/tether/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints an actionable message for err and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out
	if out == nil {
		out = os.Stderr
	}
	te, _ := errors.As(err)
	detail := func(key string) interface{} {
		if te == nil || te.Details == nil {
			return ""
		}
		return te.Details[key]
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "❌ Configuration file %v not found.\n", detail("path"))

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(out, "❌ %v\n", err)
		fmt.Fprintf(out, "Run 'tether config schema' to see the accepted settings.\n")

	case errors.ErrCodeNotAuthenticated, errors.ErrCodeRefreshFailed:
		fmt.Fprintf(out, "❌ Not logged in or the session has expired.\n")
		fmt.Fprintf(out, "Run 'tether login --role host|member' to sign in.\n")

	case errors.ErrCodeUnauthorized:
		fmt.Fprintf(out, "❌ The server rejected the credentials: %v\n", err)

	case errors.ErrCodeServerRejected:
		fmt.Fprintf(out, "❌ Request rejected (HTTP %v): %v\n", detail("status"), err)

	case errors.ErrCodeServerError:
		fmt.Fprintf(out, "❌ The server failed to handle the request (HTTP %v). Try again later.\n", detail("status"))

	case errors.ErrCodeNetworkUnreachable:
		fmt.Fprintf(out, "❌ Could not reach the server. Check server.base_url and your connection.\n")

	case errors.ErrCodeConnectTimeout:
		fmt.Fprintf(out, "❌ Realtime connection for %v not established within %v.\n", detail("role"), detail("timeout"))

	case errors.ErrCodeReconnectExhausted:
		fmt.Fprintf(out, "❌ Lost the realtime connection and gave up after %v attempts.\n", detail("attempts"))

	case errors.ErrCodeThresholdOutOfRange, errors.ErrCodeThresholdOutOfOrder:
		fmt.Fprintf(out, "❌ Invalid thresholds: %v\n", err)
		fmt.Fprintf(out, "Thresholds must satisfy 0 <= safe < warning < danger <= 2000.\n")

	default:
		fmt.Fprintf(out, "❌ Error: %v\n", err)
	}

	if h.Verbose && te != nil {
		fmt.Fprintf(out, "\nError details:\n%s\n", te.ToJSON())
	}
	return err
}
