package waitlist_test

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/caseflow/internal/waitlist"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRanker_OrdersByScoreThenSubmission(t *testing.T) {
	r := waitlist.New()
	r.Insert("p", "late-high", 80, base.Add(2*time.Hour))
	r.Insert("p", "early-high", 80, base.Add(time.Hour))
	r.Insert("p", "low", 10, base)
	r.Insert("p", "top", 95, base.Add(3*time.Hour))

	got := r.Top("p", 10)
	want := []string{"top", "early-high", "late-high", "low"}
	if !slices.Equal(got, want) {
		t.Errorf("Top = %v, want %v", got, want)
	}
}

func TestRanker_PositionOf(t *testing.T) {
	r := waitlist.New()
	r.Insert("p", "a", 50, base)

	pos, ok := r.PositionOf("p", "a")
	if !ok || pos != 1 {
		t.Fatalf("PositionOf(a) = %d, %v, want 1, true", pos, ok)
	}

	r.Insert("p", "b", 70, base.Add(time.Minute))
	pos, _ = r.PositionOf("p", "a")
	if pos != 2 {
		t.Errorf("PositionOf(a) after higher entrant = %d, want 2", pos)
	}

	if _, ok := r.PositionOf("p", "missing"); ok {
		t.Error("PositionOf(missing) should not be found")
	}
	if _, ok := r.PositionOf("other", "a"); ok {
		t.Error("queues must be per program")
	}
}

func TestRanker_ReinsertRepositions(t *testing.T) {
	r := waitlist.New()
	r.Insert("p", "a", 10, base)
	r.Insert("p", "b", 20, base)
	r.Insert("p", "a", 30, base)

	if got := r.Top("p", 5); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Top = %v, want [a b]", got)
	}
	if r.Len("p") != 2 {
		t.Errorf("Len = %d, want 2", r.Len("p"))
	}
}

func TestRanker_Remove(t *testing.T) {
	r := waitlist.New()
	r.Insert("p", "a", 10, base)
	r.Insert("p", "b", 20, base)

	r.Remove("p", "b")
	r.Remove("p", "unknown")
	r.Remove("nope", "a")

	if got := r.Top("p", 5); !slices.Equal(got, []string{"a"}) {
		t.Errorf("Top = %v, want [a]", got)
	}
	if pos, _ := r.PositionOf("p", "a"); pos != 1 {
		t.Errorf("PositionOf(a) = %d, want 1", pos)
	}
}

func TestRanker_TopBounds(t *testing.T) {
	r := waitlist.New()
	if got := r.Top("empty", 3); len(got) != 0 {
		t.Errorf("Top on empty = %v", got)
	}
	r.Insert("p", "a", 1, base)
	if got := r.Top("p", 0); len(got) != 0 {
		t.Errorf("Top(0) = %v", got)
	}
}

func TestRanker_RandomPermutations(t *testing.T) {
	type item struct {
		id    string
		score int
		at    time.Time
	}
	rng := rand.New(rand.NewSource(42))

	for round := range 50 {
		items := make([]item, 40)
		for i := range items {
			items[i] = item{
				id:    fmt.Sprintf("c-%02d", i),
				score: rng.Intn(5) * 10,
				at:    base.Add(time.Duration(rng.Intn(10)) * time.Minute),
			}
		}

		r := waitlist.New()
		for _, i := range rng.Perm(len(items)) {
			r.Insert("p", items[i].id, items[i].score, items[i].at)
		}

		sort.Slice(items, func(i, j int) bool {
			if items[i].score != items[j].score {
				return items[i].score > items[j].score
			}
			if !items[i].at.Equal(items[j].at) {
				return items[i].at.Before(items[j].at)
			}
			return items[i].id < items[j].id
		})

		got := r.Top("p", len(items))
		for i, it := range items {
			if got[i] != it.id {
				t.Fatalf("round %d: position %d = %s, want %s", round, i+1, got[i], it.id)
			}
			if pos, _ := r.PositionOf("p", it.id); pos != i+1 {
				t.Fatalf("round %d: PositionOf(%s) = %d, want %d", round, it.id, pos, i+1)
			}
		}
	}
}

func TestRanker_ConcurrentInsertAndQuery(t *testing.T) {
	r := waitlist.New()
	var wg sync.WaitGroup

	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				id := fmt.Sprintf("w%d-%d", w, i)
				r.Insert("p", id, i%7, base.Add(time.Duration(i)*time.Second))
				r.PositionOf("p", id)
				r.Top("p", 5)
			}
		}()
	}
	wg.Wait()

	if r.Len("p") != 800 {
		t.Errorf("Len = %d, want 800", r.Len("p"))
	}
}
