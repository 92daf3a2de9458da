package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestTetherError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeInvalidInput, "bad value")
	if err.Code != ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeStoreFailed, "write failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeStoreFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeInvalidInput) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("field", "name").WithDetail("len", 0)
	if detailed.Details["field"] != "name" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := ConnectTimeout("host", 8*time.Second)
	outer := fmt.Errorf("watch: %w", inner)

	if !Is(outer, ErrCodeConnectTimeout) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != ErrCodeConnectTimeout {
		t.Errorf("expected %s, got %s", ErrCodeConnectTimeout, GetCode(outer))
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("GetCode should be empty for foreign errors")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusUnauthorized, ErrCodeUnauthorized},
		{http.StatusBadRequest, ErrCodeServerRejected},
		{http.StatusNotFound, ErrCodeServerRejected},
		{http.StatusInternalServerError, ErrCodeServerError},
		{http.StatusBadGateway, ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatus("POST", "/host/name", tt.status, "")
			if err.Code != tt.code {
				t.Errorf("status %d: expected %s, got %s", tt.status, tt.code, err.Code)
			}
			if Status(err) != tt.status {
				t.Errorf("expected recorded status %d, got %d", tt.status, Status(err))
			}
		})
	}
}

func TestTimeoutsAreDistinct(t *testing.T) {
	connect := ConnectTimeout("member", 5*time.Second)
	data := DataTimeout("member", 10*time.Second)

	if connect.Code == data.Code {
		t.Fatal("connect and data timeouts must carry different codes")
	}
	if connect.Details["timeout"] != "5s" {
		t.Errorf("unexpected timeout detail: %v", connect.Details["timeout"])
	}
}

func TestThresholdConstructors(t *testing.T) {
	err := ThresholdOutOfRange("safe", -1, 2000)
	if err.Code != ErrCodeThresholdOutOfRange {
		t.Errorf("expected code %s, got %s", ErrCodeThresholdOutOfRange, err.Code)
	}
	if err.Details["threshold"] != "safe" {
		t.Error("ThresholdOutOfRange should include threshold detail")
	}

	err = ThresholdOutOfOrder(300, 200, 100)
	if err.Code != ErrCodeThresholdOutOfOrder {
		t.Errorf("expected code %s, got %s", ErrCodeThresholdOutOfOrder, err.Code)
	}
}

func TestIsWalksWholeChain(t *testing.T) {
	inner := ThresholdOutOfOrder(3, 2, 1)
	outer := Wrap(inner, ErrCodeConfigValidation, "invalid thresholds")

	if !Is(outer, ErrCodeConfigValidation) || !Is(outer, ErrCodeThresholdOutOfOrder) {
		t.Error("Is should match every code in the chain")
	}
	if GetCode(outer) != ErrCodeConfigValidation {
		t.Errorf("GetCode should report the outermost code, got %s", GetCode(outer))
	}
}
