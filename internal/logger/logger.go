package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const service = "x9"

// Logger is a sugared zap logger whose entries are also forwarded to the
// OpenTelemetry log bridge. The helpers below tag entries with trace ids
// and mirror them as span events when a span is recording.
type Logger struct {
	*zap.SugaredLogger
	tracer trace.Tracer
}

// Version is stamped into every entry; cmd sets it from build flags.
var Version = "dev"

// New builds the process logger. Entries go to stderr unless
// cfg.OutputPaths says otherwise, since stdout carries candidate URLs.
func New(cfg config.LoggerConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.InitialFields = map[string]interface{}{
		"service": service,
		"version": Version,
	}

	local, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	bridge := otelzap.NewCore(service, otelzap.WithAttributes(
		attribute.String("service", service),
		attribute.String("version", Version),
	))

	return fromCore(zapcore.NewTee(local.Core(), bridge)), nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return fromCore(zapcore.NewNopCore())
}

func fromCore(core zapcore.Core) *Logger {
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{
		SugaredLogger: base.Sugar(),
		tracer:        otel.Tracer(service + "/logger"),
	}
}

func (l *Logger) with(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.With(kv...), tracer: l.tracer}
}

// WithContext adds trace_id and span_id when ctx carries a recording span.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanFromContext(ctx)
	if !sc.IsRecording() {
		return l
	}
	ids := sc.SpanContext()
	return l.with("trace_id", ids.TraceID().String(), "span_id", ids.SpanID().String())
}

func (l *Logger) WithFields(fields ...interface{}) *Logger { return l.with(fields...) }

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

func (l *Logger) WithURL(target string) *Logger { return l.with("url", target) }

func (l *Logger) WithRunID(runID string) *Logger { return l.with("run_id", runID) }

func (l *Logger) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, opts...)
}

// spanEvent mirrors a log entry onto the active span, if any.
func spanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) trace.Span {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
	return span
}

func merge(head, tail []interface{}) []interface{} {
	return append(head, tail...)
}

func (l *Logger) LogDuration(ctx context.Context, operation string, start time.Time, fields ...interface{}) {
	took := time.Since(start)
	l.WithContext(ctx).Infow("Operation completed", merge([]interface{}{
		"operation", operation,
		"duration_ms", took.Milliseconds(),
		"duration", took.String(),
	}, fields)...)

	spanEvent(ctx, "operation_completed",
		attribute.String("operation", operation),
		attribute.Int64("duration_ms", took.Milliseconds()))
}

// LogError logs err at error level and marks the active span failed.
// A nil err is ignored.
func (l *Logger) LogError(ctx context.Context, err error, operation string, fields ...interface{}) {
	if err == nil {
		return
	}
	kind := fmt.Sprintf("%T", err)
	l.WithContext(ctx).Errorw("Operation failed", merge([]interface{}{
		"error", err.Error(),
		"operation", operation,
		"error_type", kind,
	}, fields)...)

	if span := spanEvent(ctx, "error_occurred",
		attribute.String("operation", operation),
		attribute.String("error_type", kind)); span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (l *Logger) LogPanic(ctx context.Context, recovered interface{}, operation string, fields ...interface{}) {
	msg := fmt.Sprintf("%v", recovered)
	l.WithContext(ctx).Errorw("Panic recovered", merge([]interface{}{
		"panic", msg,
		"operation", operation,
		"panic_type", fmt.Sprintf("%T", recovered),
	}, fields)...)

	if span := spanEvent(ctx, "panic_recovered",
		attribute.String("operation", operation),
		attribute.String("panic", msg)); span != nil {
		span.SetStatus(codes.Error, "panic: "+msg)
	}
}

// LogUnit records the outcome of one (URL, payload) unit. A unit with no
// candidates is a warning and never fails the batch.
func (l *Logger) LogUnit(ctx context.Context, target, payload string, candidates int, took time.Duration) {
	entry := l.WithContext(ctx).Debugw
	msg := "Unit generated"
	if candidates == 0 {
		entry, msg = l.WithContext(ctx).Warnw, "Unit produced no candidates"
	}
	entry(msg,
		"url", target,
		"payload", payload,
		"candidates", candidates,
		"duration_ms", took.Milliseconds(),
	)

	spanEvent(ctx, "unit_generated",
		attribute.String("url", target),
		attribute.Int("candidates", candidates))
}

// LogHTTPRequest logs a dispatched request, at warn for 4xx and error for 5xx.
func (l *Logger) LogHTTPRequest(ctx context.Context, method, url string, status int, took time.Duration, fields ...interface{}) {
	kv := merge([]interface{}{
		"http_method", method,
		"http_url", url,
		"http_status", status,
		"duration_ms", took.Milliseconds(),
	}, fields)

	lg := l.WithContext(ctx)
	switch {
	case status >= 500:
		lg.Errorw("HTTP request completed", kv...)
	case status >= 400:
		lg.Warnw("HTTP request completed", kv...)
	default:
		lg.Infow("HTTP request completed", kv...)
	}

	if span := spanEvent(ctx, "http_request",
		attribute.String("method", method),
		attribute.String("url", url),
		attribute.Int("status_code", status)); span != nil && status >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	}
}

func (l *Logger) LogDatabaseOperation(ctx context.Context, operation, table string, rows int64, took time.Duration, fields ...interface{}) {
	l.WithContext(ctx).Debugw("Database operation completed", merge([]interface{}{
		"db_operation", operation,
		"db_table", table,
		"rows_affected", rows,
		"duration_ms", took.Milliseconds(),
	}, fields)...)

	spanEvent(ctx, "database_operation",
		attribute.String("operation", operation),
		attribute.String("table", table),
		attribute.Int64("rows_affected", rows))
}

// StartOperation opens a span named after operation. Pair it with
// FinishOperation.
func (l *Logger) StartOperation(ctx context.Context, operation string, fields ...interface{}) (context.Context, trace.Span) {
	ctx, span := l.StartSpan(ctx, operation)
	l.WithContext(ctx).Debugw("Operation started", merge([]interface{}{"operation", operation}, fields)...)
	return ctx, span
}

// FinishOperation ends span, logging err through LogError when set.
func (l *Logger) FinishOperation(ctx context.Context, span trace.Span, operation string, start time.Time, err error, fields ...interface{}) {
	defer span.End()

	kv := merge([]interface{}{"duration_ms", time.Since(start).Milliseconds()}, fields)
	if err != nil {
		l.LogError(ctx, err, operation, kv...)
		return
	}
	l.WithContext(ctx).Debugw("Operation completed", merge([]interface{}{"operation", operation}, kv)...)
	span.SetStatus(codes.Ok, "")
}
