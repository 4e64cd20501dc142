package tracing

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"

	"github.com/cleanr/inboxengine/internal/logger"
)

const (
	SpanTagComponent = "component"
	SpanTagJobID     = "job-id"
	SpanTagRunID     = "run-id"
	SpanTagSessionID = "session-id"
)

const (
	SpanTagComponentPostgresRepository = "postgresRepository"
	SpanTagComponentEventLog           = "eventLog"
	SpanTagComponentOrchestrator       = "orchestrator"
	SpanTagComponentScheduler          = "scheduler"
	SpanTagComponentWorker             = "worker"
	SpanTagComponentImap               = "imap"
	SpanTagComponentClassifier         = "classifier"
	SpanTagComponentRest               = "rest"
)

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span := opentracing.GlobalTracer().StartSpan(operationName)
	return span, opentracing.ContextWithSpan(ctx, span)
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if span == nil {
		return
	}
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	jsonObject, err := json.Marshal(object)
	if err == nil {
		span.LogFields(log.String(name, string(jsonObject)))
	} else {
		span.LogFields(log.Object(name, object))
	}
}

func TagComponentPostgresRepository(span opentracing.Span) { tagComponent(span, SpanTagComponentPostgresRepository) }
func TagComponentEventLog(span opentracing.Span)           { tagComponent(span, SpanTagComponentEventLog) }
func TagComponentOrchestrator(span opentracing.Span)       { tagComponent(span, SpanTagComponentOrchestrator) }
func TagComponentScheduler(span opentracing.Span)          { tagComponent(span, SpanTagComponentScheduler) }
func TagComponentWorker(span opentracing.Span)             { tagComponent(span, SpanTagComponentWorker) }
func TagComponentImap(span opentracing.Span)               { tagComponent(span, SpanTagComponentImap) }
func TagComponentClassifier(span opentracing.Span)         { tagComponent(span, SpanTagComponentClassifier) }
func TagComponentRest(span opentracing.Span)               { tagComponent(span, SpanTagComponentRest) }

func tagComponent(span opentracing.Span, component string) {
	if span != nil {
		span.SetTag(SpanTagComponent, component)
	}
}

func TagJob(span opentracing.Span, jobID string) {
	if span != nil && jobID != "" {
		span.SetTag(SpanTagJobID, jobID)
	}
}

func TagRun(span opentracing.Span, runID string) {
	if span != nil && runID != "" {
		span.SetTag(SpanTagRunID, runID)
	}
}

func TagSession(span opentracing.Span, sessionID string) {
	if span != nil && sessionID != "" {
		span.SetTag(SpanTagSessionID, sessionID)
	}
}

// RecoverAndLogToJaeger, installed via `defer`, recovers a panic in the
// calling goroutine, records it on a span and logs it. The scheduler
// installs it around each cron tick.
func RecoverAndLogToJaeger(log logger.Logger) {
	if r := recover(); r != nil {
		tracer := opentracing.GlobalTracer()
		span := tracer.StartSpan("panic-recovery")
		defer span.Finish()

		stackTrace := string(debug.Stack())
		span.LogKV(
			"event", "error",
			"error.object", r,
			"stack", stackTrace,
		)
		span.SetTag("error", true)

		log.Error("recovered from panic", zap.Any("panic", r), zap.String("stack", stackTrace))
	}
}
