package fsm

import (
	"context"
	"errors"
	"slices"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// buildEvents converts a family's transitions into looplab/fsm EventDesc
// format. Each target state becomes one event named after it, with every
// source state that may reach it (e.g. "cancelled" from all non-terminal
// states).
func buildEvents(family domain.Family) []loopfsm.EventDesc {
	grouped := make(map[domain.State][]string)
	order := make([]domain.State, 0)

	for _, t := range domain.Transitions(family) {
		if _, exists := grouped[t.Dst]; !exists {
			order = append(order, t.Dst)
		}
		grouped[t.Dst] = append(grouped[t.Dst], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, dst := range order {
		out = append(out, loopfsm.EventDesc{
			Name: string(dst),
			Src:  grouped[dst],
			Dst:  string(dst),
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// Event tables are built once per family; a short-lived FSM instance is
// created per call, initialized with the case's current state, because
// looplab/fsm tracks the current state internally.
type Validator struct {
	events map[domain.Family][]loopfsm.EventDesc
}

// New creates an FSM-backed validator with the table of every family loaded.
func New() *Validator {
	v := &Validator{events: make(map[domain.Family][]loopfsm.EventDesc, len(domain.Families))}
	for _, f := range domain.Families {
		v.events[f] = buildEvents(f)
	}
	return v
}

// Apply checks that target is reachable from current for the family and
// returns it. Returns a *domain.TransitionError otherwise.
func (v *Validator) Apply(ctx context.Context, family domain.Family, current, target domain.State) (domain.State, error) {
	events, ok := v.events[family]
	if !ok {
		return "", v.transitionError(family, current, target)
	}
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(target)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", v.transitionError(family, current, target)
		}
		return "", err
	}

	return domain.State(machine.Current()), nil
}

// Available returns the targets reachable from current, in table order.
func (v *Validator) Available(family domain.Family, current domain.State) []domain.State {
	events, ok := v.events[family]
	if !ok {
		return nil
	}
	var out []domain.State
	for _, e := range events {
		if slices.Contains(e.Src, string(current)) {
			out = append(out, domain.State(e.Dst))
		}
	}
	return out
}

func (v *Validator) transitionError(family domain.Family, current, target domain.State) error {
	return &domain.TransitionError{
		Family:  family,
		Current: current,
		Target:  target,
		Allowed: v.Available(family, current),
	}
}
