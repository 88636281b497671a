// Package waitlist ranks pending cases per program: highest score first,
// earlier submission first on ties.
package waitlist

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: Ranker implements domain.Waitlist.
var _ domain.Waitlist = (*Ranker)(nil)

type entry struct {
	caseID      string
	score       int
	submittedAt time.Time
}

// compare orders by score descending, then submission ascending. The case id
// breaks exact ties so the order is total.
func compare(a, b entry) int {
	if c := cmp.Compare(b.score, a.score); c != 0 {
		return c
	}
	if c := a.submittedAt.Compare(b.submittedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.caseID, b.caseID)
}

// queue is the ordering of one program, guarded by its own lock so programs
// never contend with each other.
type queue struct {
	mu      sync.RWMutex
	entries []entry
	byCase  map[string]entry
}

// Ranker keeps one sorted queue per program. Positions are not stored; they
// are derived from the sorted slice on every query.
type Ranker struct {
	mu     sync.RWMutex
	queues map[string]*queue
}

// New creates an empty ranker.
func New() *Ranker {
	return &Ranker{queues: make(map[string]*queue)}
}

func (r *Ranker) queue(programID string, create bool) *queue {
	r.mu.RLock()
	q, ok := r.queues[programID]
	r.mu.RUnlock()
	if ok || !create {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok = r.queues[programID]; !ok {
		q = &queue{byCase: make(map[string]entry)}
		r.queues[programID] = q
	}
	return q
}

// Insert adds a case to the program queue. Inserting a case that is already
// queued repositions it with the new score.
func (r *Ranker) Insert(programID, caseID string, score int, submittedAt time.Time) {
	q := r.queue(programID, true)
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byCase[caseID]; ok {
		q.remove(old)
	}
	e := entry{caseID: caseID, score: score, submittedAt: submittedAt}
	i, _ := slices.BinarySearchFunc(q.entries, e, compare)
	q.entries = slices.Insert(q.entries, i, e)
	q.byCase[caseID] = e
}

// Remove drops a case from the program queue. Unknown cases are ignored.
func (r *Ranker) Remove(programID, caseID string) {
	q := r.queue(programID, false)
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byCase[caseID]; ok {
		q.remove(old)
	}
}

func (q *queue) remove(e entry) {
	if i, found := slices.BinarySearchFunc(q.entries, e, compare); found {
		q.entries = slices.Delete(q.entries, i, i+1)
	}
	delete(q.byCase, e.caseID)
}

// PositionOf returns the 1-based position of a case in its program queue.
func (r *Ranker) PositionOf(programID, caseID string) (int, bool) {
	q := r.queue(programID, false)
	if q == nil {
		return 0, false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()

	e, ok := q.byCase[caseID]
	if !ok {
		return 0, false
	}
	i, found := slices.BinarySearchFunc(q.entries, e, compare)
	if !found {
		return 0, false
	}
	return i + 1, true
}

// Top returns up to n case ids from the head of the program queue.
func (r *Ranker) Top(programID string, n int) []string {
	q := r.queue(programID, false)
	if q == nil || n <= 0 {
		return nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()

	n = min(n, len(q.entries))
	out := make([]string, n)
	for i := range n {
		out[i] = q.entries[i].caseID
	}
	return out
}

// Len returns the number of queued cases of a program.
func (r *Ranker) Len(programID string) int {
	q := r.queue(programID, false)
	if q == nil {
		return 0
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}
