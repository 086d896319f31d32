package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestSetup_LevelAndFields(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := setup(&buf, "warn", false)

	logger.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	logger.With(Fields{"attempt": "a-1"}).Error(context.Background(), "verify failed", errors.New("boom"), Fields{"kind": "timeout"})
	entry := lastEntry(t, &buf)
	assert.Equal(t, "verify failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "a-1", entry["attempt"])
	assert.Equal(t, "timeout", entry["kind"])
	assert.Equal(t, "partner-sso", entry["service"])
}

func TestSetup_UnknownLevelIsInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := setup(&buf, "chatty", false)
	logger.Info(context.Background(), "kept")
	assert.Equal(t, "kept", lastEntry(t, &buf)["message"])
}

func TestLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Warn(ctx, "traced")
	entry := lastEntry(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}
