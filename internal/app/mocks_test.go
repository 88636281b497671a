package app_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// --- Mocks ---

// memStore is an in-memory domain.Store. WithinTx holds the store lock for
// the whole function and restores a snapshot when it fails.
type memStore struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	programs     map[string]domain.Program
	cases        map[string]domain.Case
	entries      map[string]domain.LedgerEntry
	reservations map[string]*memReservation
	nextID       int
}

type memReservation struct {
	programID string
	amount    int64
	committed bool
	released  bool
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		programs:     make(map[string]domain.Program),
		cases:        make(map[string]domain.Case),
		entries:      make(map[string]domain.LedgerEntry),
		reservations: make(map[string]*memReservation),
	}}
}

func (st *memState) clone() *memState {
	out := &memState{
		programs:     maps.Clone(st.programs),
		cases:        maps.Clone(st.cases),
		entries:      maps.Clone(st.entries),
		reservations: make(map[string]*memReservation, len(st.reservations)),
		nextID:       st.nextID,
	}
	for id, r := range st.reservations {
		cp := *r
		out.reservations[id] = &cp
	}
	return out
}

func (s *memStore) Repositories() domain.Repositories {
	return s.repos(true)
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.repos(false)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *memStore) repos(lock bool) domain.Repositories {
	v := memView{s: s, lock: lock}
	return domain.Repositories{
		Programs: memPrograms{v},
		Cases:    memCases{v},
		Ledger:   memLedger{v},
	}
}

type memView struct {
	s    *memStore
	lock bool
}

func (v memView) do(fn func(st *memState) error) error {
	if v.lock {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.st)
}

type memPrograms struct{ memView }

func (m memPrograms) Create(_ context.Context, p domain.Program) error {
	return m.do(func(st *memState) error {
		if _, ok := st.programs[p.ID]; ok {
			return domain.ErrProgramExists
		}
		st.programs[p.ID] = p
		return nil
	})
}

func (m memPrograms) GetByID(_ context.Context, id string) (domain.Program, error) {
	var p domain.Program
	err := m.do(func(st *memState) error {
		var ok bool
		if p, ok = st.programs[id]; !ok {
			return domain.ErrProgramNotFound
		}
		if e, ok := st.entries[id]; ok {
			p.Budget = domain.Budget{Allocated: e.Allocated, Unlimited: e.Unlimited}
		}
		return nil
	})
	return p, err
}

func (m memPrograms) List(_ context.Context, f domain.ProgramFilter) ([]domain.Program, error) {
	var out []domain.Program
	err := m.do(func(st *memState) error {
		for _, p := range st.programs {
			if f.Family != nil && p.Family != *f.Family {
				continue
			}
			if f.Active != nil && p.Active != *f.Active {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Program) int { return cmpString(a.Name, b.Name) })
	return out, err
}

func (m memPrograms) SetActive(_ context.Context, id string, active bool) error {
	return m.do(func(st *memState) error {
		p, ok := st.programs[id]
		if !ok {
			return domain.ErrProgramNotFound
		}
		p.Active = active
		st.programs[id] = p
		return nil
	})
}

type memCases struct{ memView }

func (m memCases) Create(_ context.Context, c domain.Case) error {
	return m.do(func(st *memState) error {
		c.History = slices.Clone(c.History)
		st.cases[c.ID] = c
		return nil
	})
}

func (m memCases) GetByID(_ context.Context, id string) (domain.Case, error) {
	var c domain.Case
	err := m.do(func(st *memState) error {
		var ok bool
		if c, ok = st.cases[id]; !ok {
			return domain.ErrCaseNotFound
		}
		c.History = slices.Clone(c.History)
		return nil
	})
	return c, err
}

func (m memCases) List(_ context.Context, f domain.CaseFilter) ([]domain.Case, error) {
	var out []domain.Case
	err := m.do(func(st *memState) error {
		for _, c := range st.cases {
			if f.ProgramID != "" && c.ProgramID != f.ProgramID {
				continue
			}
			if len(f.States) > 0 && !slices.Contains(f.States, c.State) {
				continue
			}
			c.History = nil
			out = append(out, c)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Case) int { return cmpString(a.ID, b.ID) })
	return out, err
}

func (m memCases) Update(_ context.Context, c domain.Case) error {
	return m.do(func(st *memState) error {
		stored, ok := st.cases[c.ID]
		if !ok {
			return domain.ErrCaseNotFound
		}
		if stored.Version != c.Version {
			return domain.ErrConcurrentModification
		}
		c.Version++
		c.History = slices.Clone(c.History)
		st.cases[c.ID] = c
		return nil
	})
}

func (m memCases) Statistics(_ context.Context, programID string, now time.Time) (domain.ProgramStatistics, error) {
	stats := domain.ProgramStatistics{
		ProgramID:          programID,
		ByState:            make(map[domain.State]int),
		AverageDaysInState: make(map[domain.State]float64),
	}
	err := m.do(func(st *memState) error {
		for _, c := range st.cases {
			if c.ProgramID != programID {
				continue
			}
			stats.Total++
			stats.ByState[c.State]++
			if c.IsOverdue(now) {
				stats.Overdue++
			}
		}
		return nil
	})
	return stats, err
}

type memLedger struct{ memView }

func (m memLedger) Open(_ context.Context, programID string, b domain.Budget) error {
	return m.do(func(st *memState) error {
		st.entries[programID] = domain.LedgerEntry{ProgramID: programID, Allocated: b.Allocated, Unlimited: b.Unlimited}
		return nil
	})
}

func (m memLedger) TopUp(_ context.Context, programID string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	return m.do(func(st *memState) error {
		e, ok := st.entries[programID]
		if !ok {
			return domain.ErrProgramNotFound
		}
		e.Allocated += amount
		st.entries[programID] = e
		return nil
	})
}

func (m memLedger) Reserve(_ context.Context, programID, _ string, amount int64) (string, error) {
	var id string
	err := m.do(func(st *memState) error {
		e, ok := st.entries[programID]
		if !ok {
			return domain.ErrProgramNotFound
		}
		if e.Remaining() < amount {
			return domain.ErrInsufficientBudget
		}
		e.Reserved += amount
		st.entries[programID] = e
		st.nextID++
		id = fmt.Sprintf("res-%d", st.nextID)
		st.reservations[id] = &memReservation{programID: programID, amount: amount}
		return nil
	})
	return id, err
}

func (m memLedger) Commit(_ context.Context, id string) error {
	return m.do(func(st *memState) error {
		r, ok := st.reservations[id]
		switch {
		case !ok:
			return domain.ErrReservationNotFound
		case r.released:
			return domain.ErrReservationReleased
		case r.committed:
			return nil
		}
		e := st.entries[r.programID]
		e.Reserved -= r.amount
		e.Consumed += r.amount
		st.entries[r.programID] = e
		r.committed = true
		return nil
	})
}

func (m memLedger) Release(_ context.Context, id string) error {
	return m.do(func(st *memState) error {
		r, ok := st.reservations[id]
		switch {
		case !ok:
			return domain.ErrReservationNotFound
		case r.committed:
			return domain.ErrAlreadyCommitted
		case r.released:
			return nil
		}
		e := st.entries[r.programID]
		e.Reserved -= r.amount
		st.entries[r.programID] = e
		r.released = true
		return nil
	})
}

func (m memLedger) Remaining(ctx context.Context, programID string) (int64, error) {
	e, err := m.Entry(ctx, programID)
	return e.Remaining(), err
}

func (m memLedger) Entry(_ context.Context, programID string) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := m.do(func(st *memState) error {
		var ok bool
		if e, ok = st.entries[programID]; !ok {
			return domain.ErrProgramNotFound
		}
		return nil
	})
	return e, err
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.CaseEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e domain.CaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) Events() []domain.CaseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

type mockCatalog struct {
	mu      sync.Mutex
	entries map[string]domain.ServiceEntry
	calls   int
	err     error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{entries: make(map[string]domain.ServiceEntry)}
}

func (m *mockCatalog) PublishProgramAsService(_ context.Context, programID string, d domain.ServiceDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.entries[programID] = domain.ServiceEntry{ProgramID: programID, Descriptor: d}
	return nil
}

func (m *mockCatalog) Upsert(_ context.Context, e domain.ServiceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ProgramID] = e
	return nil
}

func (m *mockCatalog) List(_ context.Context) ([]domain.ServiceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ServiceEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.ServiceEntry) int { return cmpString(a.ProgramID, b.ProgramID) })
	return out, nil
}

var errPublish = errors.New("broker unavailable")
