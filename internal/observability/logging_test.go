package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"openai key", "failed with key sk-" + strings.Repeat("a", 48)},
		{"anthropic key", "auth sk-ant-" + strings.Repeat("b", 95)},
		{"api key assignment", "api_key=abcdef1234567890abcdef"},
		{"bearer token", "Authorization: bearer abcdef1234567890xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LogConfig{Format: "json", Output: &buf})

			logger.Info(context.Background(), tt.msg)

			out := buf.String()
			if !strings.Contains(out, "[REDACTED]") {
				t.Errorf("output not redacted: %s", out)
			}
		})
	}
}

func TestLoggerRedactsErrorValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	err := errors.New("request failed: api_key=verysecretvalue1234")
	logger.Error(context.Background(), "call failed", "error", err)

	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("error value not redacted: %s", buf.String())
	}
}

func TestLoggerExtractsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := AddRequestID(context.Background(), "req-123")
	ctx = AddConversationID(ctx, "conv-456")
	logger.Info(ctx, "working")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", record["request_id"])
	}
	if record["conversation_id"] != "conv-456" {
		t.Errorf("conversation_id = %v, want conv-456", record["conversation_id"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "also hidden")
	if buf.Len() != 0 {
		t.Errorf("sub-warn records written: %s", buf.String())
	}

	logger.Warn(context.Background(), "visible")
	if buf.Len() == 0 {
		t.Error("warn record suppressed")
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	logger.Info(context.Background(), "config loaded", "config", map[string]any{
		"api_key": "should-not-appear",
		"model":   "gpt-4o-mini",
	})

	out := buf.String()
	if strings.Contains(out, "should-not-appear") {
		t.Errorf("sensitive map value leaked: %s", out)
	}
	if !strings.Contains(out, "gpt-4o-mini") {
		t.Errorf("benign map value dropped: %s", out)
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetConversationID(ctx) != "" {
		t.Error("empty context returned IDs")
	}

	ctx = AddRequestID(ctx, "r1")
	ctx = AddConversationID(ctx, "c1")
	if GetRequestID(ctx) != "r1" {
		t.Errorf("GetRequestID = %q", GetRequestID(ctx))
	}
	if GetConversationID(ctx) != "c1" {
		t.Errorf("GetConversationID = %q", GetConversationID(ctx))
	}
}
