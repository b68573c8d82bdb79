package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNew_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "pawnledger", "info", "production")

	logger.Debug("hidden")
	logger.Info("payment recorded", "item_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "payment recorded", entry["msg"])
	assert.Equal(t, "pawnledger", entry["service"])
	assert.Equal(t, "abc", entry["item_id"])
}

func TestNew_TextInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "pawnledger", "debug", "development").Debug("starting")
	assert.Contains(t, buf.String(), "msg=starting")
	assert.Contains(t, buf.String(), "service=pawnledger")
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	l := New(&buf, "pawnledger", "info", "production")
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
