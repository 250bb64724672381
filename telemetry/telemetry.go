// Package telemetry wires OpenTelemetry tracing for invocations, model calls
// and tool executions. Without Init every span is a no-op, so the engine can
// always call the helpers.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrun/logging"
)

// InstrumentationName is the tracer name used by the engine.
const InstrumentationName = "github.com/hupe1980/agentrun"

// Span attribute keys.
const (
	AttrInvocationID = attribute.Key("agentrun.invocation_id")
	AttrSessionID    = attribute.Key("agentrun.session_id")
	AttrAppName      = attribute.Key("agentrun.app_name")
	AttrUserID       = attribute.Key("agentrun.user_id")
	AttrAgent        = attribute.Key("agentrun.agent")
	AttrBranch       = attribute.Key("agentrun.branch")
	AttrModel        = attribute.Key("gen_ai.request.model")
	AttrProvider     = attribute.Key("gen_ai.system")
	AttrToolName     = attribute.Key("gen_ai.tool.name")
	AttrToolCallID   = attribute.Key("gen_ai.tool.call.id")
	AttrIteration    = attribute.Key("agentrun.iteration")
	AttrInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	AttrOutputTokens = attribute.Key("gen_ai.usage.output_tokens")
)

// Config holds exporter configuration.
type Config struct {
	ServiceName string
	Endpoint    string // host:port of the OTLP endpoint
	URLPath     string // path for the OTLP traces endpoint
	APIKey      string // sent as Bearer Authorization header
	Insecure    bool
	Logger      logging.Logger
}

type errorHandler struct{ logger logging.Logger }

func (h errorHandler) Handle(err error) { h.logger.Error("telemetry.otel.error", "error", err) }

// Init installs a global tracer provider exporting over OTLP/HTTP. The
// returned shutdown flushes pending spans.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentrun"
	}

	otel.SetErrorHandler(errorHandler{logger: logger})

	var opts []otlptracehttp.Option
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.APIKey != "" {
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}))
	}

	logger.Debug("telemetry.exporter.config", "endpoint", cfg.Endpoint, "url_path", cfg.URLPath, "has_api_key", cfg.APIKey != "")

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&loggingExporter{inner: exporter, logger: logger}),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// loggingExporter wraps a SpanExporter and logs export failures.
type loggingExporter struct {
	inner  sdktrace.SpanExporter
	logger logging.Logger
}

func (e *loggingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := e.inner.ExportSpans(ctx, spans)
	if err != nil {
		e.logger.Error("telemetry.export.error", "count", len(spans), "error", err)
	} else {
		e.logger.Debug("telemetry.export.ok", "count", len(spans))
	}

	return err
}

func (e *loggingExporter) Shutdown(ctx context.Context) error { return e.inner.Shutdown(ctx) }

// Tracer returns the engine tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(InstrumentationName) }

// StartInvocation opens the root span of a Runner invocation.
func StartInvocation(ctx context.Context, invocationID, app, user, sessionID, agent string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "invocation",
		trace.WithAttributes(
			AttrInvocationID.String(invocationID),
			AttrAppName.String(app),
			AttrUserID.String(user),
			AttrSessionID.String(sessionID),
			AttrAgent.String(agent),
		),
	)
}

// StartModelCall opens a call_llm span.
func StartModelCall(ctx context.Context, agent, branch, provider, model string, iteration int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "call_llm",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrAgent.String(agent),
			AttrBranch.String(branch),
			AttrProvider.String(provider),
			AttrModel.String(model),
			AttrIteration.Int(iteration),
		),
	)
}

// StartToolCall opens an execute_tool span.
func StartToolCall(ctx context.Context, agent, tool, callID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "execute_tool "+tool,
		trace.WithAttributes(
			AttrAgent.String(agent),
			AttrToolName.String(tool),
			AttrToolCallID.String(callID),
		),
	)
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
