package app

import (
	"context"
	"errors"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// MultiPublisher fans an event out to every publisher and joins their
// errors. A failing publisher does not stop the others.
type MultiPublisher []domain.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.CaseEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.CaseEvent) error { return nil }
