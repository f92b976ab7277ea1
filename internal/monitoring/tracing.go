package monitoring

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/config"
)

const tracerName = "github.com/sells-group/property-map"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// InitTracing installs the global tracer provider described by cfg. With
// tracing disabled a noop provider is installed. Spans are written to w
// (stderr when nil) by the stdout exporter.
func InitTracing(ctx context.Context, cfg config.TraceConfig, w io.Writer) (ShutdownFunc, error) {
	log := zap.L().With(zap.String("component", "monitoring.tracing"))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug("tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(cfg, w)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = "property-map"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", service),
	))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: create trace resource")
	}

	ratio := cfg.SampleRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing enabled",
		zap.String("exporter", cfg.Exporter),
		zap.String("service_name", service),
		zap.Float64("sample_ratio", ratio),
	)
	return tp.Shutdown, nil
}

func exporterFromConfig(cfg config.TraceConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	if w == nil {
		w = os.Stderr
	}
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	default:
		return nil, eris.Errorf("monitoring: unsupported tracing exporter %q", cfg.Exporter)
	}
}

// Shutdown invokes fn with a bounded timeout and logs a failure.
func Shutdown(ctx context.Context, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		zap.L().Warn("monitoring: tracing shutdown failed", zap.Error(err))
	}
}

// StartSpan starts a child span named name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceMiddleware starts a server span per request, continuing any trace
// context carried in the request headers.
func TraceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))

		span.SetName(r.Method + " " + RoutePattern(r))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", RoutePattern(r)),
		)
	})
}
