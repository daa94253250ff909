package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Lejs5034/LegionOfBrothers-sub000/config"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	ctx := WithTraceID(context.Background(), "trace-1")
	l.InfoContext(ctx, "message sent", zap.String("channel_id", "c1"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "message sent", entry["message"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "c1", entry["channel_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLogger_FileRequiresPath(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithContext(context.Background()).Info("no trace")
	l.WarnContext(WithTraceID(context.Background(), "abc"), "with trace")
	l.Named("chat").WithFields(zap.Int("n", 1)).Debug("fields")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Empty(t, entries[0].ContextMap()["trace_id"])
	assert.Equal(t, "abc", entries[1].ContextMap()["trace_id"])
	assert.Equal(t, "chat", entries[2].LoggerName)
	assert.Equal(t, int64(1), entries[2].ContextMap()["n"])
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	attached := &Logger{Logger: zap.New(core)}
	fallback := NewNop()

	ctx := IntoContext(WithTraceID(context.Background(), "t-9"), attached)
	FromContext(ctx, fallback).Info("hello")
	FromContext(context.Background(), fallback).Info("dropped")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "t-9", logs.All()[0].ContextMap()["trace_id"])
}
