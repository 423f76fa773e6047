// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"warning", "warning", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"fatal", "fatal", zerolog.FatalLevel},
		{"panic", "panic", zerolog.PanicLevel},
		{"invalid defaults to info", "bogus", zerolog.InfoLevel},
		{"uppercase", "DEBUG", zerolog.DebugLevel},
		{"mixed case", "InFo", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if level != tt.expected {
				t.Errorf("parseLogLevel(%s) = %v, want %v", tt.level, level, tt.expected)
			}
			_ = err
		})
	}
}

func TestInitializeFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json format", "json"},
		{"console format", "console"},
		{"empty format defaults to console", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Initialize("info", tt.format)
			if Get() == nil {
				t.Fatal("Get() returned nil logger")
			}
		})
	}
}

func TestJSONFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	Initialize("info", "json")
	SetOutput(&buf)

	Info().Str("pump", "on").Msg("state change")

	output := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("json format should emit JSON objects, got: %s", output)
	}
	if !strings.Contains(output, `"pump":"on"`) {
		t.Errorf("output should contain structured field, got: %s", output)
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	Initialize("debug", "json")
	SetOutput(&buf)

	tests := []struct {
		name    string
		logFunc func() *zerolog.Event
		message string
	}{
		{"debug", Debug, "debug message"},
		{"info", Info, "info message"},
		{"warn", Warn, "warn message"},
		{"error", Error, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			event := tt.logFunc()
			if event == nil {
				t.Errorf("%s() returned nil event", tt.name)
				return
			}
			event.Msg(tt.message)

			if !strings.Contains(buf.String(), tt.message) {
				t.Errorf("%s() output should contain %q, got %q", tt.name, tt.message, buf.String())
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name        string
		configLevel string
		logLevel    string
		shouldLog   bool
	}{
		{"info logs at info level", "info", "info", true},
		{"debug filtered at info level", "info", "debug", false},
		{"error logs at info level", "info", "error", true},
		{"warn logs at info level", "info", "warn", true},
		{"debug logs at debug level", "debug", "debug", true},
		{"info filtered at error level", "error", "info", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Initialize(tt.configLevel, "json")
			SetOutput(&buf)

			message := "filter check message"

			switch tt.logLevel {
			case "debug":
				Debug().Msg(message)
			case "info":
				Info().Msg(message)
			case "warn":
				Warn().Msg(message)
			case "error":
				Error().Msg(message)
			}

			hasMessage := strings.Contains(buf.String(), message)
			if tt.shouldLog && !hasMessage {
				t.Errorf("expected message at %s level with config %s", tt.logLevel, tt.configLevel)
			}
			if !tt.shouldLog && hasMessage {
				t.Errorf("expected no message at %s level with config %s", tt.logLevel, tt.configLevel)
			}
		})
	}
}

func TestWith(t *testing.T) {
	Initialize("info", "json")

	child := With().Str("component", "controller").Logger()

	var buf bytes.Buffer
	child = child.Output(&buf)
	child.Info().Msg("test message")

	if !strings.Contains(buf.String(), "controller") {
		t.Error("child logger should carry the added field")
	}
}

func TestMultipleInitializations(t *testing.T) {
	Initialize("debug", "console")
	Initialize("info", "json")
	Initialize("error", "console")

	if Get() == nil {
		t.Error("logger should be initialized after multiple Initialize() calls")
	}
}
