package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, false)
	logger.Debug("hidden")
	logger.Info("shown", "dir", "/bin")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written without verbose: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "dllcheck") {
		t.Errorf("info line missing prefix or message: %q", out)
	}

	buf.Reset()
	NewLogger(&buf, true).Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing with verbose: %q", buf.String())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	logger := NewLogger(&bytes.Buffer{}, false)
	if OrDiscard(logger) != logger {
		t.Error("OrDiscard replaced a non-nil logger")
	}
}

func TestInitTracingNoEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	ctx := context.Background()
	tp, err := InitTracing(ctx, TracingConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if tp.Enabled() {
		t.Error("tracing enabled without an endpoint")
	}
	if tp.Tracer() == nil {
		t.Fatal("nil tracer")
	}

	_, span := StartSpan(ctx, "dllcheck.test")
	RecordCounts(span, 3, 1, 0, 0)
	RecordError(span, errors.New("boom"))
	span.End()

	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestInitTracingWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracing(context.Background(), TracingConfig{
		ServiceVersion: "test",
		Endpoint:       "localhost:4317",
	})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if !tp.Enabled() {
		t.Error("tracing disabled with an endpoint")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestInitTracingEnvEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracing(context.Background(), TracingConfig{ServiceVersion: "test", SampleRate: 0.5})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if !tp.Enabled() {
		t.Error("tracing disabled with OTEL_EXPORTER_OTLP_ENDPOINT set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
