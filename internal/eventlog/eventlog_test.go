package eventlog

import (
	"context"
	"testing"
)

func TestEventTypeConstants(t *testing.T) {
	// Event types are stored as text; renaming one breaks existing rows
	expectedEvents := map[EventType]string{
		EventCacheHit:        "cache_hit",
		EventSynthesized:     "synthesized",
		EventSynthesisFailed: "synthesis_failed",
		EventFallbackAttempt: "fallback_attempt",
		EventFallbackSilent:  "fallback_silent",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLoggerNew(t *testing.T) {
	// Test that New returns a non-nil logger even with nil DB
	logger := New(nil)
	if logger == nil {
		t.Fatal("New(nil) should return a non-nil logger")
	}
	if logger.Enabled() {
		t.Error("logger without DB should report disabled")
	}
}

func TestNilLoggerIsDisabled(t *testing.T) {
	var logger *Logger
	if logger.Enabled() {
		t.Error("nil logger should report disabled")
	}
	// Should not panic
	logger.LogAsync("req-1", EventCacheHit, nil)
}

func TestLoggerLogAsyncWithNilDB(t *testing.T) {
	logger := New(nil)

	// Should not panic
	logger.LogAsync("test-request-id", EventSynthesized, map[string]any{
		"text":     "あ",
		"speaker":  "ずんだもん",
		"bytes":    1024,
		"duration": int64(120),
	})
}

func TestLoggerLogAsyncWithEmptyRequestID(t *testing.T) {
	logger := New(nil)

	// Should not panic - silently skips
	logger.LogAsync("", EventSynthesisFailed, map[string]any{
		"error": "connection refused",
	})
}

func TestLoggerLogWithNilDB(t *testing.T) {
	logger := New(nil)

	err := logger.Log(context.Background(), "test-request-id", EventCacheHit, map[string]any{
		"text": "い",
	})

	if err != nil {
		t.Errorf("Log with nil DB should return nil error, got %v", err)
	}
}

func TestLoggerLogWithEmptyRequestID(t *testing.T) {
	logger := New(nil)

	err := logger.Log(context.Background(), "", EventFallbackAttempt, map[string]any{
		"backend": "voicevox",
	})

	if err != nil {
		t.Errorf("Log with empty request ID should return nil error, got %v", err)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID(empty ctx) = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "abc-123")
	if got := RequestID(ctx); got != "abc-123" {
		t.Errorf("RequestID() = %q, want %q", got, "abc-123")
	}
}
