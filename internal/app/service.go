package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// ProgramService orchestrates program configuration, budget and catalog
// publication.
type ProgramService struct {
	store     domain.Store
	publisher domain.CatalogPublisher
	catalog   domain.ServiceCatalog
	now       func() time.Time
	logger    *slog.Logger
}

// NewProgramService creates a service with the given adapters.
func NewProgramService(store domain.Store, publisher domain.CatalogPublisher, catalog domain.ServiceCatalog, opts ...Option) *ProgramService {
	o := newOptions(opts)
	return &ProgramService{
		store:     store,
		publisher: publisher,
		catalog:   catalog,
		now:       o.now,
		logger:    o.logger,
	}
}

// Create validates a program, persists it together with its ledger entry and
// publishes it to the service catalog when active.
func (s *ProgramService) Create(ctx context.Context, p domain.Program) (domain.Program, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	program, err := domain.NewProgram(p)
	if err != nil {
		return domain.Program{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Programs.Create(ctx, program); err != nil {
			return err
		}
		return repos.Ledger.Open(ctx, program.ID, program.Budget)
	})
	if err != nil {
		return domain.Program{}, err
	}

	if program.Active {
		s.publish(ctx, program)
	}
	return program, nil
}

// Get returns a program by its identifier.
func (s *ProgramService) Get(ctx context.Context, id string) (domain.Program, error) {
	return s.store.Repositories().Programs.GetByID(ctx, id)
}

// List returns programs matching the given filter.
func (s *ProgramService) List(ctx context.Context, filter domain.ProgramFilter) ([]domain.Program, error) {
	return s.store.Repositories().Programs.List(ctx, filter)
}

// TopUp adds amount to a program's allocation and returns the new ledger
// entry.
func (s *ProgramService) TopUp(ctx context.Context, id string, amount int64) (domain.LedgerEntry, error) {
	ledger := s.store.Repositories().Ledger
	if err := ledger.TopUp(ctx, id, amount); err != nil {
		return domain.LedgerEntry{}, err
	}
	return ledger.Entry(ctx, id)
}

// SetActive opens or closes a program for submissions. Activation
// republishes the catalog descriptor.
func (s *ProgramService) SetActive(ctx context.Context, id string, active bool) (domain.Program, error) {
	repos := s.store.Repositories()
	if err := repos.Programs.SetActive(ctx, id, active); err != nil {
		return domain.Program{}, err
	}

	program, err := repos.Programs.GetByID(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	if active {
		s.publish(ctx, program)
	}
	return program, nil
}

// Ledger returns the budget accounting of a program.
func (s *ProgramService) Ledger(ctx context.Context, id string) (domain.LedgerEntry, error) {
	return s.store.Repositories().Ledger.Entry(ctx, id)
}

// PublicServices returns the catalog entries of programs currently accepting
// submissions.
func (s *ProgramService) PublicServices(ctx context.Context) ([]domain.ServiceEntry, error) {
	entries, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing service catalog: %w", err)
	}

	active := true
	programs, err := s.store.Repositories().Programs.List(ctx, domain.ProgramFilter{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("listing active programs: %w", err)
	}
	open := make(map[string]bool, len(programs))
	for _, p := range programs {
		open[p.ID] = true
	}

	out := make([]domain.ServiceEntry, 0, len(entries))
	for _, e := range entries {
		if open[e.ProgramID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *ProgramService) publish(ctx context.Context, p domain.Program) {
	if err := s.publisher.PublishProgramAsService(ctx, p.ID, p.Descriptor()); err != nil {
		s.logger.ErrorContext(ctx, "publishing program to service catalog",
			"program_id", p.ID, "error", err)
	}
}
