package domain

import "slices"

// Family identifies one of the case families served by the engine.
type Family string

const (
	FamilyBenefitGrant           Family = "benefit_grant"
	FamilyHousingEnrollment      Family = "housing_enrollment"
	FamilyEnvironmentalLicense   Family = "environmental_license"
	FamilyEnvironmentalComplaint Family = "environmental_complaint"
)

// Families lists every supported family in a stable order.
var Families = []Family{
	FamilyBenefitGrant,
	FamilyHousingEnrollment,
	FamilyEnvironmentalLicense,
	FamilyEnvironmentalComplaint,
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	return slices.Contains(Families, f)
}

// Scored reports whether cases of this family pass through the Scoring state
// and are ranked on a waitlist.
func (f Family) Scored() bool {
	return f == FamilyBenefitGrant || f == FamilyHousingEnrollment
}

// Monetary reports whether the family consumes program budget.
func (f Family) Monetary() bool {
	return f == FamilyBenefitGrant
}

// State represents the lifecycle state of a case.
type State string

const (
	StateSubmitted          State = "submitted"
	StateScoring            State = "scoring"
	StatePending            State = "pending"
	StateInReview           State = "in_review"
	StateAwaitingSupplement State = "awaiting_supplement"
	StateInspection         State = "inspection"
	StateApproved           State = "approved"
	StateDenied             State = "denied"
	StateGranted            State = "granted"
	StateEnforced           State = "enforced"
	StateResolved           State = "resolved"
	StateUnfounded          State = "unfounded"
	StateClosed             State = "closed"
	StateRejected           State = "rejected"
	StateArchived           State = "archived"
	StateCancelled          State = "cancelled"
)

// States lists every state in lifecycle order.
var States = []State{
	StateSubmitted, StateScoring, StatePending, StateInReview,
	StateAwaitingSupplement, StateInspection, StateApproved, StateDenied,
	StateGranted, StateEnforced, StateResolved, StateUnfounded,
	StateClosed, StateRejected, StateArchived, StateCancelled,
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateRejected, StateArchived, StateCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return slices.Contains(States, s)
}

// Transition defines a valid state change: a case moves from Src to Dst.
type Transition struct {
	Src State
	Dst State
}

// familyPaths holds the hand-written paths of each family. Cancellation edges
// are derived in Transitions rather than listed here.
var familyPaths = map[Family][]Transition{
	FamilyBenefitGrant: {
		{StateSubmitted, StateScoring},
		{StateScoring, StatePending},
		{StateScoring, StateRejected},
		{StatePending, StateInReview},
		{StateInReview, StateApproved},
		{StateInReview, StateDenied},
		{StateApproved, StateGranted},
		{StateGranted, StateClosed},
		{StateGranted, StateArchived},
		{StateDenied, StateClosed},
	},
	FamilyHousingEnrollment: {
		{StateSubmitted, StateScoring},
		{StateScoring, StatePending},
		{StateScoring, StateRejected},
		{StatePending, StateInReview},
		{StateInReview, StateAwaitingSupplement},
		{StateAwaitingSupplement, StateInReview},
		{StateInReview, StateApproved},
		{StateInReview, StateDenied},
		{StateApproved, StateClosed},
		{StateDenied, StateClosed},
	},
	FamilyEnvironmentalLicense: {
		{StateSubmitted, StateInReview},
		{StateSubmitted, StateRejected},
		{StateInReview, StateInspection},
		{StateInspection, StateInReview},
		{StateInReview, StateAwaitingSupplement},
		{StateInspection, StateAwaitingSupplement},
		{StateAwaitingSupplement, StateInReview},
		{StateInReview, StateApproved},
		{StateInReview, StateDenied},
		{StateApproved, StateEnforced},
		{StateEnforced, StateClosed},
		{StateEnforced, StateArchived},
		{StateDenied, StateClosed},
	},
	FamilyEnvironmentalComplaint: {
		{StateSubmitted, StateInReview},
		{StateSubmitted, StateRejected},
		{StateInReview, StateInspection},
		{StateInspection, StateEnforced},
		{StateInspection, StateResolved},
		{StateInspection, StateUnfounded},
		{StateEnforced, StateClosed},
		{StateEnforced, StateArchived},
		{StateResolved, StateClosed},
		{StateUnfounded, StateClosed},
	},
}

// Transitions returns every valid state change for the family, including a
// cancellation edge from each non-terminal state the family uses.
// This is domain knowledge consumed by the FSM adapter.
func Transitions(f Family) []Transition {
	paths := familyPaths[f]
	out := make([]Transition, 0, len(paths)*2)
	out = append(out, paths...)
	for _, s := range FamilyStates(f) {
		if !s.Terminal() {
			out = append(out, Transition{Src: s, Dst: StateCancelled})
		}
	}
	return out
}

// FamilyStates returns the states a family activates, in lifecycle order.
func FamilyStates(f Family) []State {
	used := make(map[State]bool)
	for _, t := range familyPaths[f] {
		used[t.Src] = true
		used[t.Dst] = true
	}
	out := make([]State, 0, len(used))
	for _, s := range States {
		if used[s] {
			out = append(out, s)
		}
	}
	return out
}

// Targets returns the states reachable from current in one step.
func Targets(f Family, current State) []State {
	var out []State
	for _, t := range Transitions(f) {
		if t.Src == current {
			out = append(out, t.Dst)
		}
	}
	return out
}
