package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// zerologAdapter wraps a zerolog.Logger to implement Logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

// Setup configures the global zerolog logger used across the services and
// returns a Logger writing to the same sink. Unknown levels fall back to info.
func Setup(level string, pretty bool) Logger {
	return setup(os.Stderr, level, pretty)
}

func setup(out io.Writer, level string, pretty bool) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "partner-sso").Logger()

	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = logger
	return &zerologAdapter{logger: logger}
}

// NewZerologAdapter wraps an existing zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) Logger {
	return &zerologAdapter{logger: logger}
}

// withTrace adds trace_id and span_id when ctx carries a valid span.
func withTrace(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return event
	}
	return event.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
}

func emit(ctx context.Context, event *zerolog.Event, msg string, fields []Fields) {
	event = withTrace(ctx, event)
	for _, f := range fields {
		event = event.Fields(map[string]any(f))
	}
	event.Msg(msg)
}

func (z *zerologAdapter) Debug(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Debug(), msg, fields)
}

func (z *zerologAdapter) Info(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Info(), msg, fields)
}

func (z *zerologAdapter) Warn(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Warn(), msg, fields)
}

func (z *zerologAdapter) Error(ctx context.Context, msg string, err error, fields ...Fields) {
	emit(ctx, z.logger.Error().Err(err), msg, fields)
}

func (z *zerologAdapter) Fatal(ctx context.Context, msg string, err error, fields ...Fields) {
	emit(ctx, z.logger.Fatal().Err(err), msg, fields)
}

// With returns a logger carrying fields on every entry. Trace ids are added per call.
func (z *zerologAdapter) With(fields Fields) Logger {
	return &zerologAdapter{logger: z.logger.With().Fields(map[string]any(fields)).Logger()}
}
