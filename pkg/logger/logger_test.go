package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithRestaurantID(ctx, "rest-1")

	log.Error(ctx, "boom", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-123", entry["request_id"])
	require.Equal(t, "rest-1", entry["restaurant_id"])
	require.Equal(t, "boom", entry["error"])
	require.Contains(t, entry, "stack")
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), "\"stack\"")

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), "\"stack\"")
}

func TestWithFieldsDoesNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := context.Background()
	child := log.WithFields(parent, map[string]any{"customer_id": "c-1"})

	log.Info(parent, "parent")
	require.NotContains(t, buf.String(), "customer_id")

	buf.Reset()
	log.Info(child, "child")
	require.Contains(t, buf.String(), "customer_id")
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestConsoleFormatFromEnv(t *testing.T) {
	t.Setenv(FormatEnv, "console")
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf}).Info(context.Background(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
	require.Contains(t, buf.String(), "hello")
}

func TestDebugRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf, Level: ParseLevel("info")}).Debug(context.Background(), "hidden")
	require.Empty(t, buf.String())

	New(Options{ServiceName: "test", Output: buf, Level: zerolog.DebugLevel}).Debug(context.Background(), "shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNilLoggerIsSilent(t *testing.T) {
	var log *Logger
	ctx := log.WithFields(context.Background(), map[string]any{"a": 1})
	log.Info(ctx, "dropped")
	log.Warn(ctx, "dropped")
	log.Error(ctx, "dropped", errors.New("x"))
}
