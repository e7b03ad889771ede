package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var hexTraceID = regexp.MustCompile(`^[0-9a-f]{32}$`)

// recordingTracer returns a tracer whose finished spans land in the returned
// exporter.
func recordingTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestCorrelationID(t *testing.T) {
	t.Parallel()

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without span: %q, want empty", got)
	}

	tp, _ := recordingTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "job")
	defer span.End()
	if got := CorrelationID(ctx); !hexTraceID.MatchString(got) {
		t.Errorf("with span: %q, want 32 lowercase hex chars", got)
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := recordingTracer(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "transcribe")
	if CorrelationID(ctx) == "" {
		t.Error("context carries no trace id")
	}
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "transcribe" {
		t.Fatalf("spans = %+v, want one named transcribe", spans)
	}
	if spans[0].InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerName)
	}
}

func TestEndSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   codes.Code
		wantEvents int
	}{
		{name: "success", wantCode: codes.Unset},
		{name: "failure", err: errors.New("upload failed"), wantCode: codes.Error, wantEvents: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tp, exp := recordingTracer(t)
			_, span := tp.Tracer("test").Start(context.Background(), tt.name)
			EndSpan(span, tt.err)

			got := exp.GetSpans()
			if len(got) != 1 {
				t.Fatalf("spans = %d, want 1", len(got))
			}
			if got[0].Status.Code != tt.wantCode {
				t.Errorf("status = %v, want %v", got[0].Status.Code, tt.wantCode)
			}
			if tt.err != nil && got[0].Status.Description != tt.err.Error() {
				t.Errorf("description = %q, want %q", got[0].Status.Description, tt.err.Error())
			}
			if len(got[0].Events) != tt.wantEvents {
				t.Errorf("events = %d, want %d", len(got[0].Events), tt.wantEvents)
			}
		})
	}
}

// Logger reads slog.Default, so these subtests swap it and cannot run in
// parallel.
func TestLogger(t *testing.T) {
	tp, _ := recordingTracer(t)
	spanCtx, span := tp.Tracer("test").Start(context.Background(), "log")
	defer span.End()

	tests := []struct {
		name      string
		ctx       context.Context
		wantTrace bool
	}{
		{"with span", spanCtx, true},
		{"without span", context.Background(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
			defer slog.SetDefault(prev)

			Logger(tt.ctx).Info("job finished")

			out := buf.String()
			for _, key := range []string{"trace_id=", "span_id="} {
				if strings.Contains(out, key) != tt.wantTrace {
					t.Errorf("%s present = %v, want %v in %q", key, !tt.wantTrace, tt.wantTrace, out)
				}
			}
		})
	}
}
