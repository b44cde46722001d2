package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/operion-engine/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError_RecordsOnSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(context.Background(), tracer, "task.execute",
		otelhelper.TaskAttributes("task-1", "session-1", "notify", "http")...)
	otelhelper.SetError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	assert.Len(t, spans, 1)
	assert.Equal(t, "task.execute", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), otelhelper.TaskAttributes("task-1", "session-1", "notify", "http")[3])
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	_, span := otelhelper.StartSpan(context.Background(), otelhelper.NoopTracer(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestSampler(t *testing.T) {
	t.Parallel()

	sampled := func(ratio float64) bool {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(recorder),
			sdktrace.WithSampler(otelhelper.Sampler(ratio)),
		)

		_, span := provider.Tracer("test").Start(context.Background(), "flow.run")
		span.End()

		return len(recorder.Ended()) == 1
	}

	assert.True(t, sampled(1))
	assert.True(t, sampled(2))
	assert.False(t, sampled(0))
}
