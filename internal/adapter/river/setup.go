package river

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Config wires the workers to the adapters they deliver to.
type Config struct {
	// Catalog receives published service descriptors.
	Catalog domain.ServiceCatalog
	// Sink receives case events after they leave the queue. Optional.
	Sink domain.EventPublisher
	// MaxWorkers bounds the default queue. Defaults to 2.
	MaxWorkers int
}

// Setup creates a River client with the event and catalog workers registered
// and runs River's internal migrations. The caller must call client.Start()
// to begin processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, cfg Config) (*Client, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("river setup: a service catalog is required")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}

	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{sink: cfg.Sink})
	river.AddWorker(workers, &CatalogWorker{catalog: cfg.Catalog})

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
