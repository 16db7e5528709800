package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": LevelTrace,
		"TRACE": LevelTrace,
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if got := ParseLogLevel("unknown"); got != LevelInfo {
		t.Fatalf("ParseLogLevel default = %v, want %v", got, LevelInfo)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, &buf)
	logger.Infof("hidden %d", 1)
	logger.Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestNamedLoggerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelDebug, &buf).Named("dispatch")
	logger.Debugf("queued %s", "stop")

	if !strings.Contains(buf.String(), "[DEBUG] dispatch: queued stop") {
		t.Fatalf("expected component prefix, got %q", buf.String())
	}
	if !logger.Enabled(LevelDebug) || logger.Enabled(LevelTrace) {
		t.Fatalf("unexpected Enabled results for level %v", logger.Level())
	}
}
