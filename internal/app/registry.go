package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// SubmitCaseRequest carries a new submission from the admin or public surface.
type SubmitCaseRequest struct {
	ProgramID  string
	Attributes domain.Attributes
	Applicant  domain.Applicant
	Origin     domain.Origin
	ActorID    string
}

// WaitlistEntry is one ranked row of a program's waitlist.
type WaitlistEntry struct {
	Position    int
	CaseID      string
	Score       int
	SubmittedAt time.Time
}

// CaseRegistry is the entry point for case operations. The store is the
// source of truth; the waitlist is a cache rebuilt by WarmWaitlist.
type CaseRegistry struct {
	store     domain.Store
	validator domain.TransitionValidator
	waitlist  domain.Waitlist
	publisher domain.EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewCaseRegistry creates a registry with the given adapters.
func NewCaseRegistry(store domain.Store, validator domain.TransitionValidator, waitlist domain.Waitlist, publisher domain.EventPublisher, opts ...Option) *CaseRegistry {
	o := newOptions(opts)
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &CaseRegistry{
		store:     store,
		validator: validator,
		waitlist:  waitlist,
		publisher: publisher,
		now:       o.now,
		logger:    o.logger,
	}
}

// Submit records a new case and runs its automatic steps: scoring families
// move through Scoring to Pending or Rejected, the others to InReview or
// Rejected.
func (r *CaseRegistry) Submit(ctx context.Context, req SubmitCaseRequest) (domain.Case, error) {
	if req.ActorID == "" {
		return domain.Case{}, domain.ErrMissingActor
	}

	repos := r.store.Repositories()
	program, err := repos.Programs.GetByID(ctx, req.ProgramID)
	if err != nil {
		return domain.Case{}, err
	}
	if !program.Active {
		return domain.Case{}, domain.ErrProgramInactive
	}

	if _, err := domain.RequestedAmount(program, req.Origin, req.Attributes); err != nil {
		return domain.Case{}, err
	}

	now := r.now()
	c := domain.NewCase(generateID(), program, req.Origin, req.Attributes, req.Applicant, req.ActorID, now)

	score, eligible, failed := domain.Score(program, c.Attributes)
	c.ApplyScore(score, eligible, failed)

	if program.Family.Scored() {
		if err := r.step(ctx, program, &c, domain.StateScoring, now, ""); err != nil {
			return domain.Case{}, err
		}
	}

	next, note := domain.StateInReview, ""
	switch {
	case !eligible:
		next, note = domain.StateRejected, domain.RejectionNote(failed)
	case program.Family.Scored():
		next = domain.StatePending
	}
	if err := r.step(ctx, program, &c, next, now, note); err != nil {
		return domain.Case{}, err
	}

	if err := repos.Cases.Create(ctx, c); err != nil {
		return domain.Case{}, fmt.Errorf("creating case: %w", err)
	}

	return r.afterCommit(ctx, c, "", 0), nil
}

// step validates and applies an automatic transition performed by the engine.
func (r *CaseRegistry) step(ctx context.Context, p domain.Program, c *domain.Case, to domain.State, at time.Time, note string) error {
	if _, err := r.validator.Apply(ctx, c.Family, c.State, to); err != nil {
		return err
	}
	c.Transition(p, to, at, domain.SystemActor, note)
	return nil
}

// Advance moves a case to target. Budget and case changes commit together or
// not at all; on error the persisted case is unchanged.
func (r *CaseRegistry) Advance(ctx context.Context, caseID string, target domain.State, actorID, note string) (domain.Case, error) {
	if actorID == "" {
		return domain.Case{}, domain.ErrMissingActor
	}

	var updated domain.Case
	var from domain.State
	var stored int

	err := r.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		c, err := repos.Cases.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		program, err := repos.Programs.GetByID(ctx, c.ProgramID)
		if err != nil {
			return err
		}

		if _, err := r.validator.Apply(ctx, c.Family, c.State, target); err != nil {
			return err
		}

		from, stored = c.State, len(c.History)
		now := r.now()

		switch target {
		case domain.StateGranted:
			if err := grant(ctx, repos.Ledger, &c); err != nil {
				return err
			}
		case domain.StateEnforced:
			c.Escalation = program.Enforcement.Escalate(c.Family, now)
		case domain.StateCancelled:
			if err := release(ctx, repos.Ledger, &c); err != nil {
				return err
			}
		}

		c.Transition(program, target, now, actorID, note)

		if err := repos.Cases.Update(ctx, c); err != nil {
			return err
		}
		c.Version++
		updated = c
		return nil
	})
	if err != nil {
		return domain.Case{}, err
	}

	return r.afterCommit(ctx, updated, from, stored), nil
}

// Cancel moves a case to Cancelled, releasing its uncommitted reservation
// and removing it from the waitlist.
func (r *CaseRegistry) Cancel(ctx context.Context, caseID, actorID, reason string) (domain.Case, error) {
	return r.Advance(ctx, caseID, domain.StateCancelled, actorID, reason)
}

// grant reserves and commits the requested amount of a case entering Granted.
func grant(ctx context.Context, ledger domain.BudgetLedger, c *domain.Case) error {
	if c.Reservation == nil {
		id, err := ledger.Reserve(ctx, c.ProgramID, c.ID, c.RequestedAmount)
		if err != nil {
			return err
		}
		c.Reservation = &domain.Reservation{ID: id, Amount: c.RequestedAmount}
	}
	if err := ledger.Commit(ctx, c.Reservation.ID); err != nil {
		return err
	}
	c.Reservation.Committed = true
	return nil
}

func release(ctx context.Context, ledger domain.BudgetLedger, c *domain.Case) error {
	if c.Reservation == nil || c.Reservation.Committed {
		return nil
	}
	if err := ledger.Release(ctx, c.Reservation.ID); err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
		return err
	}
	c.Reservation = nil
	return nil
}

// afterCommit syncs the waitlist and publishes the events of the history
// entries added since index `stored`. Publication failures are logged. It
// returns c with its queue position filled.
func (r *CaseRegistry) afterCommit(ctx context.Context, c domain.Case, from domain.State, stored int) domain.Case {
	if from == domain.StatePending && c.State != domain.StatePending {
		r.waitlist.Remove(c.ProgramID, c.ID)
	}
	if c.State == domain.StatePending && c.Score != nil {
		r.waitlist.Insert(c.ProgramID, c.ID, *c.Score, c.SubmittedAt)
		r.dequeueIfMoved(ctx, c)
	}
	r.fillPosition(&c)

	for _, ev := range domain.CaseEvents(c, stored) {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			r.logger.ErrorContext(ctx, "publishing case event",
				"case_id", c.ID, "event", ev.Type, "to", ev.To, "error", err)
		}
	}
	return c
}

// dequeueIfMoved re-reads a case just inserted into the waitlist and removes
// it again when a concurrent transition already took it out of Pending. That
// transition's own Remove may have run before the insert.
func (r *CaseRegistry) dequeueIfMoved(ctx context.Context, c domain.Case) {
	stored, err := r.store.Repositories().Cases.GetByID(ctx, c.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "re-reading queued case", "case_id", c.ID, "error", err)
		return
	}
	if stored.State != domain.StatePending {
		r.waitlist.Remove(c.ProgramID, c.ID)
	}
}

func (r *CaseRegistry) fillPosition(c *domain.Case) {
	c.QueuePosition = nil
	if c.State != domain.StatePending {
		return
	}
	if pos, ok := r.waitlist.PositionOf(c.ProgramID, c.ID); ok {
		c.QueuePosition = &pos
	}
}

// GetCase returns a case with its history and current queue position.
func (r *CaseRegistry) GetCase(ctx context.Context, id string) (domain.Case, error) {
	c, err := r.store.Repositories().Cases.GetByID(ctx, id)
	if err != nil {
		return domain.Case{}, err
	}
	r.fillPosition(&c)
	return c, nil
}

// ListCases returns case summaries matching filter.
func (r *CaseRegistry) ListCases(ctx context.Context, filter domain.CaseFilter) ([]domain.Case, error) {
	cases, err := r.store.Repositories().Cases.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range cases {
		r.fillPosition(&cases[i])
	}
	return cases, nil
}

// AvailableTransitions returns the states the case can move to next.
func (r *CaseRegistry) AvailableTransitions(ctx context.Context, id string) ([]domain.State, error) {
	c, err := r.store.Repositories().Cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.validator.Available(c.Family, c.State), nil
}

// Statistics returns the administrative projection of a program.
func (r *CaseRegistry) Statistics(ctx context.Context, programID string) (domain.ProgramStatistics, error) {
	repos := r.store.Repositories()
	if _, err := repos.Programs.GetByID(ctx, programID); err != nil {
		return domain.ProgramStatistics{}, err
	}

	stats, err := repos.Cases.Statistics(ctx, programID, r.now())
	if err != nil {
		return domain.ProgramStatistics{}, fmt.Errorf("computing statistics: %w", err)
	}
	stats.QueueLength = r.waitlist.Len(programID)

	stats.RemainingBudget, err = repos.Ledger.Remaining(ctx, programID)
	if err != nil {
		return domain.ProgramStatistics{}, fmt.Errorf("reading remaining budget: %w", err)
	}
	return stats, nil
}

// ListOverdue returns the open cases of a program whose SLA deadline passed.
func (r *CaseRegistry) ListOverdue(ctx context.Context, programID string) ([]domain.Case, error) {
	repos := r.store.Repositories()
	if _, err := repos.Programs.GetByID(ctx, programID); err != nil {
		return nil, err
	}

	var open []domain.State
	for _, s := range domain.States {
		if !s.Terminal() {
			open = append(open, s)
		}
	}
	cases, err := repos.Cases.List(ctx, domain.CaseFilter{ProgramID: programID, States: open})
	if err != nil {
		return nil, err
	}

	now := r.now()
	var overdue []domain.Case
	for _, c := range cases {
		if c.IsOverdue(now) {
			r.fillPosition(&c)
			overdue = append(overdue, c)
		}
	}
	return overdue, nil
}

// WarmWaitlist rebuilds the waitlist from the persisted Pending cases and
// returns how many were ranked.
func (r *CaseRegistry) WarmWaitlist(ctx context.Context) (int, error) {
	cases, err := r.store.Repositories().Cases.List(ctx, domain.CaseFilter{
		States: []domain.State{domain.StatePending},
	})
	if err != nil {
		return 0, fmt.Errorf("loading pending cases: %w", err)
	}

	n := 0
	for _, c := range cases {
		if c.Score == nil {
			continue
		}
		r.waitlist.Insert(c.ProgramID, c.ID, *c.Score, c.SubmittedAt)
		n++
	}
	return n, nil
}

// Waitlist returns the first n ranked entries of a program's queue.
func (r *CaseRegistry) Waitlist(ctx context.Context, programID string, n int) ([]WaitlistEntry, error) {
	repos := r.store.Repositories()
	if _, err := repos.Programs.GetByID(ctx, programID); err != nil {
		return nil, err
	}

	ids := r.waitlist.Top(programID, n)
	entries := make([]WaitlistEntry, 0, len(ids))
	for i, id := range ids {
		c, err := repos.Cases.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading waitlisted case %s: %w", id, err)
		}
		e := WaitlistEntry{Position: i + 1, CaseID: id, SubmittedAt: c.SubmittedAt}
		if c.Score != nil {
			e.Score = *c.Score
		}
		entries = append(entries, e)
	}
	return entries, nil
}
