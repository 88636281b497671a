package river

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// EventWorker processes case event jobs from the River queue. It logs the
// event and forwards it to the sink when one is configured.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
	sink domain.EventPublisher
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing case event",
		"type", job.Args.Type,
		"case_id", job.Args.CaseID,
		"program_id", job.Args.ProgramID,
		"from", job.Args.From,
		"to", job.Args.To,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	if w.sink == nil {
		return nil
	}
	if err := w.sink.Publish(ctx, job.Args.event()); err != nil {
		return fmt.Errorf("forwarding case event: %w", err)
	}
	return nil
}

// CatalogWorker upserts service descriptors into the public catalog.
type CatalogWorker struct {
	river.WorkerDefaults[CatalogJobArgs]
	catalog domain.ServiceCatalog
}

// Work processes a single catalog job. Upserts are keyed by program id, so
// retries are safe.
func (w *CatalogWorker) Work(ctx context.Context, job *river.Job[CatalogJobArgs]) error {
	slog.InfoContext(ctx, "publishing service",
		"program_id", job.Args.ProgramID,
		"name", job.Args.Descriptor.Name,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return w.catalog.Upsert(ctx, domain.ServiceEntry{
		ProgramID:  job.Args.ProgramID,
		Descriptor: job.Args.Descriptor,
		UpdatedAt:  job.Args.PublishedAt,
	})
}
