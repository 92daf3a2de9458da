package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	// Test creating a logger
	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	// Verify it's a logrus.Entry with the component field
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
}

func TestLoggerOutput(t *testing.T) {
	// Create a buffer to capture output
	var buf bytes.Buffer
	
	// Create a new logger and redirect output to buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})
	
	entry := logger.WithField("component", "test")
	entry.Info("Test message")
	
	output := buf.String()
	
	// Check that output contains expected elements
	if !strings.Contains(output, "[INFO]") {
		t.Errorf("Expected output to contain [INFO], got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("Expected output to contain [test], got: %s", output)
	}
	if !strings.Contains(output, "Test message") {
		t.Errorf("Expected output to contain 'Test message', got: %s", output)
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name   string
		config FormatConfig
		entry  *logrus.Entry
		want   []string // Parts that should be in the output
		notWant []string // Parts that should NOT be in the output
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "test-component",
					"key1":      "value1",
				},
			},
			want:    []string{"[INFO]", "[test-component]", "test message", "key1=value1"},
			notWant: []string{},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "warning message",
				Data: logrus.Fields{
					"component": "test-component",
				},
			},
			want:    []string{"[WARN]", "warning message"},
			notWant: []string{"[test-component]"},
		},
		{
			name:   "caller information with function name",
			config: FormatConfig{},
			entry: func() *logrus.Entry {
				logger := logrus.New()
				logger.SetReportCaller(true)
				entry := &logrus.Entry{
					Logger:  logger,
					Level:   logrus.InfoLevel,
					Message: "test message with caller",
					Data: logrus.Fields{
						"component": "test-component",
					},
					Caller: &runtime.Frame{
						File:     "/path/to/file.go",
						Line:     42,
						Function: "github.com/example/package.TestFunction",
					},
				}
				return entry
			}(),
			want:    []string{"[INFO]", "[test-component]", "test message with caller", "[file.go:42 package.TestFunction]"},
			notWant: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{Config: tt.config}
			
			// Set a fixed time for consistent testing
			tt.entry.Time = tt.entry.Time.UTC()
			
			output, err := formatter.Format(tt.entry)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			
			outputStr := string(output)
			
			// Check for expected parts
			for _, want := range tt.want {
				if !strings.Contains(outputStr, want) {
					t.Errorf("Expected output to contain '%s', got: %s", want, outputStr)
				}
			}
			
			// Check for parts that should NOT be present
			for _, notWant := range tt.notWant {
				if strings.Contains(outputStr, notWant) {
					t.Errorf("Expected output NOT to contain '%s', got: %s", notWant, outputStr)
				}
			}
		})
	}
}

func TestLogLevels(t *testing.T) {
	// Test that log level filtering works
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.WarnLevel)
	
	entry := logger.WithField("component", "test")
	
	// These should not appear
	entry.Debug("debug message")
	entry.Info("info message")
	
	// These should appear
	entry.Warn("warn message")
	entry.Error("error message")
	
	output := buf.String()
	
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should not appear at Warn level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should not appear at Warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should appear at Warn level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should appear at Warn level")
	}
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("TETHER_LOG_LEVEL", "debug")
	t.Setenv("TETHER_LOG_CALLER", "true")
	Reset()
	defer Reset()

	logger := NewLogger("env-test")

	if logger.Logger.Level != logrus.DebugLevel {
		t.Errorf("Expected debug level from env var, got %v", logger.Logger.Level)
	}
	if !logger.Logger.ReportCaller {
		t.Error("Expected caller reporting to be enabled from env var")
	}
	if NewLogger("env-test") != logger {
		t.Error("Expected the cached logger to be returned for the same component")
	}
}

func TestConfiguredPresets(t *testing.T) {
	t.Setenv("TETHER_LOG_LEVEL", "")

	entry := newConfiguredLogger("json-test", Config{Level: "warn", Format: FormatConfig{Preset: "json"}})
	if _, ok := entry.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", entry.Logger.Formatter)
	}
	if entry.Logger.Level != logrus.WarnLevel {
		t.Errorf("Expected warn level from config, got %v", entry.Logger.Level)
	}

	entry = newConfiguredLogger("simple-test", Config{Format: FormatConfig{Preset: "simple"}})
	f, ok := entry.Logger.Formatter.(*TextFormatter)
	if !ok || !f.Config.DisableTimestamp || !f.Config.DisableComponent {
		t.Errorf("Expected simple text formatter, got %#v", entry.Logger.Formatter)
	}
}

func TestStderrModes(t *testing.T) {
	t.Setenv("TETHER_LOG_LEVEL", "")
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	defer SetGlobalOutput(os.Stderr)

	entry := newConfiguredLogger("always", Config{Format: FormatConfig{StructuredToStderr: "always"}})
	entry.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected structured log on the global output, got: %q", buf.String())
	}

	buf.Reset()
	entry = newConfiguredLogger("never", Config{Format: FormatConfig{StructuredToStderr: "never"}})
	entry.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected no output in never mode, got: %q", buf.String())
	}
}

func TestFileSink(t *testing.T) {
	t.Setenv("TETHER_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "logs", "tether.log")

	entry := newConfiguredLogger("file-test", Config{
		File:   FileSinkConfig{Enabled: true, Path: path},
		Format: FormatConfig{StructuredToStderr: "never"},
	})
	entry.WithField("role", "host").Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "written to file") || !strings.Contains(string(data), "role=host") {
		t.Errorf("Unexpected log file contents: %s", data)
	}
}

func TestPrettySeverity(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Severity(3, "departed", "kid is 420m away")
	p.Severity(42, "clamped", "still printed")
	p.Field("role", "host")

	out := buf.String()
	for _, want := range []string{"departed", "kid is 420m away", "clamped", "role", "host"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected pretty output to contain %q, got: %s", want, out)
		}
	}
}
