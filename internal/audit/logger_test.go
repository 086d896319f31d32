package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mu.RLock()
	prev := output
	mu.RUnlock()
	SetOutput(zerolog.New(&buf))
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestRecord_Failure(t *testing.T) {
	buf := capture(t)

	Record(context.Background(), Event{
		Action:        ActionBridgeLogin,
		PartnerUserID: "42",
		Err:           serrors.Newf(serrors.KindUserDisabled, "session.establish", "account 42 is disabled"),
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, ActionBridgeLogin, line["audit"])
	assert.Equal(t, "42", line["partner_user_id"])
	assert.Equal(t, false, line["success"])
	assert.Equal(t, string(serrors.KindUserDisabled), line["kind"])
	assert.NotContains(t, line, "user_id")
}

func TestRecord_SuccessWithTrace(t *testing.T) {
	buf := capture(t)

	traceID := trace.TraceID{1, 2, 3}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{4},
	}))
	Record(ctx, Event{Action: ActionGradePosted, UserID: "u-1", Resource: "https://partner.example/lineitems/9"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, true, line["success"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, traceID.String(), line["trace_id"])
	assert.NotContains(t, line, "error")
}
