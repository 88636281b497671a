package domain

import (
	"context"
	"time"
)

// ProgramRepository defines the persistence contract for programs.
type ProgramRepository interface {
	Create(ctx context.Context, program Program) error
	GetByID(ctx context.Context, id string) (Program, error)
	List(ctx context.Context, filter ProgramFilter) ([]Program, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ProgramFilter holds optional criteria for listing programs.
type ProgramFilter struct {
	Family *Family
	Active *bool
}

// CaseRepository defines the persistence contract for cases and their
// append-only transition history.
type CaseRepository interface {
	Create(ctx context.Context, c Case) error
	GetByID(ctx context.Context, id string) (Case, error)
	// List returns case summaries; History is left empty.
	List(ctx context.Context, filter CaseFilter) ([]Case, error)
	// Update stores c if the persisted version still equals c.Version and
	// appends the history entries not yet stored. It returns
	// ErrConcurrentModification when another writer got there first.
	Update(ctx context.Context, c Case) error
	Statistics(ctx context.Context, programID string, now time.Time) (ProgramStatistics, error)
}

// CaseFilter holds optional criteria for listing cases.
type CaseFilter struct {
	ProgramID string
	States    []State
	Limit     int
	Offset    int
}

// LedgerEntry is the budget accounting of one program.
type LedgerEntry struct {
	ProgramID string
	Allocated int64
	Reserved  int64
	Consumed  int64
	Unlimited bool
}

// Remaining returns the budget still available for reservation.
func (e LedgerEntry) Remaining() int64 {
	if e.Unlimited {
		return Unlimited
	}
	return e.Allocated - e.Reserved - e.Consumed
}

// BudgetLedger is per-program allocation and consumption accounting.
// Reserve must be atomic for concurrent callers on the same program.
type BudgetLedger interface {
	Open(ctx context.Context, programID string, budget Budget) error
	TopUp(ctx context.Context, programID string, amount int64) error
	Reserve(ctx context.Context, programID, caseID string, amount int64) (string, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
	Remaining(ctx context.Context, programID string) (int64, error)
	Entry(ctx context.Context, programID string) (LedgerEntry, error)
}

// Repositories groups the repositories that take part in one unit of work.
type Repositories struct {
	Programs ProgramRepository
	Cases    CaseRepository
	Ledger   BudgetLedger
}

// Store exposes the repositories and runs functions atomically against them.
// Repositories handed to fn must not be used after fn returns.
type Store interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// TransitionValidator decides whether a family allows current -> target.
type TransitionValidator interface {
	Apply(ctx context.Context, family Family, current, target State) (State, error)
	Available(family Family, current State) []State
}

// Waitlist keeps the ranked queue of pending cases per program.
type Waitlist interface {
	Insert(programID, caseID string, score int, submittedAt time.Time)
	Remove(programID, caseID string)
	PositionOf(programID, caseID string) (int, bool)
	Top(programID string, n int) []string
	Len(programID string) int
}

// EventPublisher defines the contract for emitting case events.
type EventPublisher interface {
	Publish(ctx context.Context, event CaseEvent) error
}

// CatalogPublisher exposes programs as public services.
// Publishing is an idempotent upsert keyed by program id.
type CatalogPublisher interface {
	PublishProgramAsService(ctx context.Context, programID string, descriptor ServiceDescriptor) error
}

// ServiceCatalog stores the published service entries.
type ServiceCatalog interface {
	Upsert(ctx context.Context, entry ServiceEntry) error
	List(ctx context.Context) ([]ServiceEntry, error)
}
