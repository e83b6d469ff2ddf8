package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Probe carries the RED instruments a use case reports into
// (usecase_requests_total{use_case,outcome} and usecase_duration_seconds{use_case}).
type Probe struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

// NewProbe resolves instruments once at wiring time; tel may be nil.
func NewProbe(tel observability.Observability, service string) Probe {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Probe{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

// Logger is the probe's service logger.
func (p Probe) Logger() observability.Logger { return p.log }

// Run is one in-flight use case execution.
type Run struct {
	probe   Probe
	useCase string
	span    trace.Span
	ctx     context.Context
	logger  observability.Logger
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Start opens span UC.<name> and binds a use_case logger into the returned context.
func (p Probe) Start(ctx context.Context, useCase, name string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := p.tracer.Start(ctx, SpanPrefix+name, attrs...)
	ctx, logger := logctx.Enrich(ctx, p.log, observability.F("use_case", useCase))
	return ctx, &Run{
		probe:   p,
		useCase: useCase,
		span:    span,
		ctx:     ctx,
		logger:  logger,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.logger }

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run as an error with a machine-readable status.
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// Status overrides the status text without changing the outcome.
func (r *Run) Status(status string) {
	r.status = status
}

// Field attaches a field to the closing use_case_done line.
func (r *Run) Field(k string, v any) {
	r.fields = append(r.fields, observability.F(k, v))
}

// End records span status, RED metrics and the use_case_done log line.
func (r *Run) End(err error) {
	if err != nil && r.outcome == "success" {
		r.outcome = "error"
		if r.status == "OK" {
			r.status = "ERROR"
		}
	}
	lat := time.Since(r.start).Seconds()

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.probe.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.probe.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, observability.TraceFields(r.ctx)...)
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}

// WithTimeout bounds ctx by d when d > 0.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ErrField is the conventional "error" log field.
func ErrField(err error) observability.Field {
	return observability.F("error", err.Error())
}
