package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.CaseEvent) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.type", string(event.Type)),
			attribute.String("case.id", event.CaseID),
			attribute.String("case.from", string(event.From)),
			attribute.String("case.to", string(event.To)),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, event)
	recordError(span, err)
	return err
}

// TracingCatalogPublisher wraps a domain.CatalogPublisher with tracing.
type TracingCatalogPublisher struct {
	next   domain.CatalogPublisher
	tracer trace.Tracer
}

var _ domain.CatalogPublisher = (*TracingCatalogPublisher)(nil)

// NewTracingCatalogPublisher creates a tracing decorator around the given
// catalog publisher.
func NewTracingCatalogPublisher(next domain.CatalogPublisher) *TracingCatalogPublisher {
	return &TracingCatalogPublisher{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (p *TracingCatalogPublisher) PublishProgramAsService(ctx context.Context, programID string, d domain.ServiceDescriptor) error {
	ctx, span := p.tracer.Start(ctx, "CatalogPublisher.PublishProgramAsService",
		trace.WithAttributes(
			attribute.String("program.id", programID),
			attribute.String("service.name", d.Name),
		),
	)
	defer span.End()

	err := p.next.PublishProgramAsService(ctx, programID, d)
	recordError(span, err)
	return err
}

// MetricsPublisher counts case transitions by family and target state.
// It is meant to sit behind the event queue as a sink.
type MetricsPublisher struct {
	transitions metric.Int64Counter
}

var _ domain.EventPublisher = (*MetricsPublisher)(nil)

// NewMetricsPublisher registers the transition counter on the global meter.
func NewMetricsPublisher() (*MetricsPublisher, error) {
	counter, err := otel.Meter(instrumentationName).Int64Counter("caseflow.case.transitions",
		metric.WithDescription("Case state transitions by family and target state."),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsPublisher{transitions: counter}, nil
}

func (p *MetricsPublisher) Publish(ctx context.Context, event domain.CaseEvent) error {
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("case.family", string(event.Family)),
		attribute.String("case.to", string(event.To)),
		attribute.String("event.type", string(event.Type)),
	))
	return nil
}
