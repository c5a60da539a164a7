package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger.Info().Str("job_id", "job-1").Msg("chunk submitted")

	output := buf.String()
	if !strings.Contains(output, "chunk submitted") {
		t.Errorf("Expected output to contain message, got %q", output)
	}
	if !strings.Contains(output, "job-1") {
		t.Errorf("Expected output to contain structured field, got %q", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"warning", zerolog.WarnLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("batch-manager")
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "batch-manager") {
		t.Errorf("Expected output to contain component name, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelWarn,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("test")
	logger.Debug().Msg("should be filtered")
	logger.Info().Msg("should be filtered")
	logger.Warn().Msg("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Errorf("Expected debug/info to be filtered at warn level, got %q", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("Expected warn message to appear, got %q", output)
	}
}
