package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/caseflow/internal/app"
	"github.com/neomorfeo/caseflow/internal/domain"
)

// publicActor is recorded on transitions triggered by citizen submissions.
const publicActor = "public"

// Register adds all caseflow API routes to the Huma API. A nil limiter
// leaves the public routes unthrottled.
func Register(api huma.API, programs *app.ProgramService, registry *app.CaseRegistry, limiter *RateLimiter) {
	registerPrograms(api, programs, registry)
	registerCases(api, registry)
	registerPublic(api, programs, registry, limiter)
}

// toHumaError translates domain errors to Huma HTTP errors. Anything it
// does not recognise is logged and reported as a 500.
func toHumaError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrCaseNotFound):
		return huma.Error404NotFound("case not found")
	case errors.Is(err, domain.ErrProgramNotFound):
		return huma.Error404NotFound("program not found")
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}
	var cfgErr *domain.ProgramConfigError
	if errors.As(err, &cfgErr) {
		return huma.Error422UnprocessableEntity(cfgErr.Error())
	}

	switch {
	case errors.Is(err, domain.ErrProgramInactive),
		errors.Is(err, domain.ErrMissingActor),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTransition):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrInsufficientBudget),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrProgramExists),
		errors.Is(err, domain.ErrAlreadyCommitted),
		errors.Is(err, domain.ErrReservationReleased):
		return huma.Error409Conflict(err.Error())
	}

	slog.ErrorContext(ctx, "unhandled request error", "error", err)
	return huma.Error500InternalServerError("internal server error")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// remaining hides the Unlimited sentinel from API clients.
func remaining(v int64) *int64 {
	if v == domain.Unlimited {
		return nil
	}
	return &v
}
