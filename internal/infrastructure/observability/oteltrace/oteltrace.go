package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a Tracer backed by the global OTel TracerProvider.
// Until an SDK provider is installed with otel.SetTracerProvider the spans are non-recording.
func New(name string) observability.Tracer {
	if name == "" {
		name = "freshcut"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
