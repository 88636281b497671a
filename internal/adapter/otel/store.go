package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/caseflow/internal/domain"
)

const instrumentationName = "github.com/neomorfeo/caseflow/internal/adapter/otel"

// recordError marks the span as failed when err is not nil.
func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracingStore wraps a domain.Store so every repository it hands out is
// traced, including the ones bound to a transaction.
type TracingStore struct {
	next    domain.Store
	tracer  trace.Tracer
	reserve metric.Int64Counter
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) (*TracingStore, error) {
	reserve, err := otel.Meter(instrumentationName).Int64Counter("caseflow.budget.reservations",
		metric.WithDescription("Budget reservation attempts by outcome."),
	)
	if err != nil {
		return nil, err
	}
	return &TracingStore{
		next:    next,
		tracer:  otel.Tracer(instrumentationName),
		reserve: reserve,
	}, nil
}

func (s *TracingStore) Repositories() domain.Repositories {
	return s.wrap(s.next.Repositories())
}

func (s *TracingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ctx, span := s.tracer.Start(ctx, "Store.WithinTx")
	defer span.End()

	err := s.next.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return fn(ctx, s.wrap(repos))
	})
	recordError(span, err)
	return err
}

func (s *TracingStore) wrap(repos domain.Repositories) domain.Repositories {
	return domain.Repositories{
		Programs: &TracingProgramRepository{next: repos.Programs, tracer: s.tracer},
		Cases:    &TracingCaseRepository{next: repos.Cases, tracer: s.tracer},
		Ledger:   &TracingLedger{next: repos.Ledger, tracer: s.tracer, reserve: s.reserve},
	}
}

// TracingProgramRepository wraps a domain.ProgramRepository with tracing.
type TracingProgramRepository struct {
	next   domain.ProgramRepository
	tracer trace.Tracer
}

var _ domain.ProgramRepository = (*TracingProgramRepository)(nil)

func (r *TracingProgramRepository) Create(ctx context.Context, p domain.Program) error {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.Create",
		trace.WithAttributes(
			attribute.String("program.id", p.ID),
			attribute.String("program.family", string(p.Family)),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, p)
	recordError(span, err)
	return err
}

func (r *TracingProgramRepository) GetByID(ctx context.Context, id string) (domain.Program, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.GetByID",
		trace.WithAttributes(attribute.String("program.id", id)),
	)
	defer span.End()

	p, err := r.next.GetByID(ctx, id)
	recordError(span, err)
	return p, err
}

func (r *TracingProgramRepository) List(ctx context.Context, filter domain.ProgramFilter) ([]domain.Program, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.List")
	defer span.End()

	if filter.Family != nil {
		span.SetAttributes(attribute.String("filter.family", string(*filter.Family)))
	}
	if filter.Active != nil {
		span.SetAttributes(attribute.Bool("filter.active", *filter.Active))
	}

	programs, err := r.next.List(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(programs)))
	}
	return programs, err
}

func (r *TracingProgramRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.SetActive",
		trace.WithAttributes(
			attribute.String("program.id", id),
			attribute.Bool("program.active", active),
		),
	)
	defer span.End()

	err := r.next.SetActive(ctx, id, active)
	recordError(span, err)
	return err
}

// TracingCaseRepository wraps a domain.CaseRepository with tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingCaseRepository struct {
	next   domain.CaseRepository
	tracer trace.Tracer
}

var _ domain.CaseRepository = (*TracingCaseRepository)(nil)

func (r *TracingCaseRepository) Create(ctx context.Context, c domain.Case) error {
	ctx, span := r.tracer.Start(ctx, "CaseRepository.Create",
		trace.WithAttributes(
			attribute.String("case.id", c.ID),
			attribute.String("case.program_id", c.ProgramID),
			attribute.String("case.state", string(c.State)),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, c)
	recordError(span, err)
	return err
}

func (r *TracingCaseRepository) GetByID(ctx context.Context, id string) (domain.Case, error) {
	ctx, span := r.tracer.Start(ctx, "CaseRepository.GetByID",
		trace.WithAttributes(attribute.String("case.id", id)),
	)
	defer span.End()

	c, err := r.next.GetByID(ctx, id)
	recordError(span, err)
	return c, err
}

func (r *TracingCaseRepository) List(ctx context.Context, filter domain.CaseFilter) ([]domain.Case, error) {
	ctx, span := r.tracer.Start(ctx, "CaseRepository.List",
		trace.WithAttributes(
			attribute.String("filter.program_id", filter.ProgramID),
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	cases, err := r.next.List(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(cases)))
	}
	return cases, err
}

func (r *TracingCaseRepository) Update(ctx context.Context, c domain.Case) error {
	ctx, span := r.tracer.Start(ctx, "CaseRepository.Update",
		trace.WithAttributes(
			attribute.String("case.id", c.ID),
			attribute.String("case.state", string(c.State)),
			attribute.Int("case.version", c.Version),
		),
	)
	defer span.End()

	err := r.next.Update(ctx, c)
	recordError(span, err)
	return err
}

func (r *TracingCaseRepository) Statistics(ctx context.Context, programID string, now time.Time) (domain.ProgramStatistics, error) {
	ctx, span := r.tracer.Start(ctx, "CaseRepository.Statistics",
		trace.WithAttributes(attribute.String("program.id", programID)),
	)
	defer span.End()

	stats, err := r.next.Statistics(ctx, programID, now)
	recordError(span, err)
	return stats, err
}

// TracingLedger wraps a domain.BudgetLedger with tracing and counts
// reservation outcomes.
type TracingLedger struct {
	next    domain.BudgetLedger
	tracer  trace.Tracer
	reserve metric.Int64Counter
}

var _ domain.BudgetLedger = (*TracingLedger)(nil)

func (l *TracingLedger) Open(ctx context.Context, programID string, budget domain.Budget) error {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Open",
		trace.WithAttributes(
			attribute.String("program.id", programID),
			attribute.Int64("budget.allocated", budget.Allocated),
			attribute.Bool("budget.unlimited", budget.Unlimited),
		),
	)
	defer span.End()

	err := l.next.Open(ctx, programID, budget)
	recordError(span, err)
	return err
}

func (l *TracingLedger) TopUp(ctx context.Context, programID string, amount int64) error {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.TopUp",
		trace.WithAttributes(
			attribute.String("program.id", programID),
			attribute.Int64("budget.amount", amount),
		),
	)
	defer span.End()

	err := l.next.TopUp(ctx, programID, amount)
	recordError(span, err)
	return err
}

func (l *TracingLedger) Reserve(ctx context.Context, programID, caseID string, amount int64) (string, error) {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Reserve",
		trace.WithAttributes(
			attribute.String("program.id", programID),
			attribute.String("case.id", caseID),
			attribute.Int64("budget.amount", amount),
		),
	)
	defer span.End()

	id, err := l.next.Reserve(ctx, programID, caseID, amount)
	recordError(span, err)

	outcome := "reserved"
	switch {
	case errors.Is(err, domain.ErrInsufficientBudget):
		outcome = "insufficient"
	case err != nil:
		outcome = "error"
	}
	l.reserve.Add(ctx, 1, metric.WithAttributes(
		attribute.String("program.id", programID),
		attribute.String("outcome", outcome),
	))
	return id, err
}

func (l *TracingLedger) Commit(ctx context.Context, reservationID string) error {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Commit",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)),
	)
	defer span.End()

	err := l.next.Commit(ctx, reservationID)
	recordError(span, err)
	return err
}

func (l *TracingLedger) Release(ctx context.Context, reservationID string) error {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Release",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)),
	)
	defer span.End()

	err := l.next.Release(ctx, reservationID)
	recordError(span, err)
	return err
}

func (l *TracingLedger) Remaining(ctx context.Context, programID string) (int64, error) {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Remaining",
		trace.WithAttributes(attribute.String("program.id", programID)),
	)
	defer span.End()

	remaining, err := l.next.Remaining(ctx, programID)
	recordError(span, err)
	return remaining, err
}

func (l *TracingLedger) Entry(ctx context.Context, programID string) (domain.LedgerEntry, error) {
	ctx, span := l.tracer.Start(ctx, "BudgetLedger.Entry",
		trace.WithAttributes(attribute.String("program.id", programID)),
	)
	defer span.End()

	entry, err := l.next.Entry(ctx, programID)
	recordError(span, err)
	return entry, err
}
