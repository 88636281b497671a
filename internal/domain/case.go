package domain

import (
	"fmt"
	"strings"
	"time"
)

// Origin records where a submission came from, for audit only.
type Origin string

const (
	OriginAdmin  Origin = "admin"
	OriginPublic Origin = "public"
)

// SystemActor is recorded on transitions the engine performs by itself.
const SystemActor = "system"

// Applicant is opaque applicant data (name, identification, contact).
// The engine stores it without validation.
type Applicant map[string]any

// StateTransition is one immutable entry of a case's history.
type StateTransition struct {
	From    State
	To      State
	At      time.Time
	ActorID string
	Note    string
}

// Reservation ties a case to a budget ledger hold.
type Reservation struct {
	ID        string
	Amount    int64
	Committed bool
}

// EscalationKind distinguishes the records produced by enforcement.
type EscalationKind string

const (
	EscalationFine          EscalationKind = "fine"
	EscalationLicenseIssued EscalationKind = "license_issued"
)

// Escalation is the enforcement record of a license or complaint case.
type Escalation struct {
	Kind            EscalationKind `json:"kind"`
	FineAmount      int64          `json:"fine_amount,omitempty"`
	DefenseDeadline *time.Time     `json:"defense_deadline,omitempty"`
	ValidUntil      *time.Time     `json:"valid_until,omitempty"`
	IssuedAt        time.Time      `json:"issued_at"`
}

// Escalate builds the enforcement record for a case of family f entering
// Enforced at `at`.
func (e Enforcement) Escalate(f Family, at time.Time) *Escalation {
	esc := &Escalation{IssuedAt: at}
	switch f {
	case FamilyEnvironmentalLicense:
		esc.Kind = EscalationLicenseIssued
		if e.ValidityDays > 0 {
			until := at.AddDate(0, 0, e.ValidityDays)
			esc.ValidUntil = &until
		}
	default:
		esc.Kind = EscalationFine
		esc.FineAmount = e.FineAmount
		if e.DefenseDays > 0 {
			deadline := at.AddDate(0, 0, e.DefenseDays)
			esc.DefenseDeadline = &deadline
		}
	}
	return esc
}

// Case is one applicant's or incident's instance progressing through a
// program's workflow. State only changes through Transition, so History
// remains the source of truth.
type Case struct {
	ID              string
	ProgramID       string
	Family          Family
	Origin          Origin
	Applicant       Applicant
	SubmittedAt     time.Time
	Attributes      Attributes
	Score           *int
	Eligible        *bool
	FailedMandatory []string
	State           State
	StateEnteredAt  time.Time
	DeadlineAt      *time.Time
	QueuePosition   *int
	RequestedAmount int64
	Reservation     *Reservation
	Escalation      *Escalation
	History         []StateTransition
	Version         int
}

// RequestedAmountAttribute lets an admin submission ask for an amount other
// than the program's grant amount.
const RequestedAmountAttribute = "requestedAmount"

// RequestedAmount returns the amount a new case reserves when granted.
// Public submissions always receive the program's grant amount.
func RequestedAmount(p Program, origin Origin, attrs Attributes) (int64, error) {
	if origin == OriginPublic {
		return p.GrantAmount, nil
	}
	raw, ok := attrs[RequestedAmountAttribute]
	if !ok {
		return p.GrantAmount, nil
	}
	n, ok := attrs.Int64(RequestedAmountAttribute)
	if !ok || n < 0 {
		return 0, fmt.Errorf("%w: %s %v", ErrInvalidAmount, RequestedAmountAttribute, raw)
	}
	return n, nil
}

// NewCase creates a case in the Submitted state for program p.
func NewCase(id string, p Program, origin Origin, attrs Attributes, applicant Applicant, actorID string, at time.Time) Case {
	if attrs == nil {
		attrs = Attributes{}
	}
	if applicant == nil {
		applicant = Applicant{}
	}
	if origin == "" {
		origin = OriginAdmin
	}
	amount, err := RequestedAmount(p, origin, attrs)
	if err != nil {
		amount = p.GrantAmount
	}

	c := Case{
		ID:              id,
		ProgramID:       p.ID,
		Family:          p.Family,
		Origin:          origin,
		Applicant:       applicant,
		SubmittedAt:     at,
		Attributes:      attrs,
		RequestedAmount: amount,
	}
	c.Transition(p, StateSubmitted, at, actorID, "submitted via "+string(origin))
	return c
}

// ApplyScore records the eligibility verdict on the case.
func (c *Case) ApplyScore(score int, eligible bool, failed []string) {
	c.Score = &score
	c.Eligible = &eligible
	c.FailedMandatory = failed
}

// Transition appends a history entry and moves the case to `to`, recomputing
// the SLA deadline. Reachability is checked by the caller's validator.
func (c *Case) Transition(p Program, to State, at time.Time, actorID, note string) {
	at = at.UTC()
	if n := len(c.History); n > 0 {
		if last := c.History[n-1].At; !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	c.History = append(c.History, StateTransition{
		From:    c.State,
		To:      to,
		At:      at,
		ActorID: actorID,
		Note:    note,
	})
	c.State = to
	c.StateEnteredAt = at
	c.DeadlineAt = p.Deadline(to, at)
	if to != StatePending {
		c.QueuePosition = nil
	}
}

// IsOverdue reports whether the SLA deadline of the current state has passed.
// It is a reportable condition; the engine never acts on it by itself.
func (c Case) IsOverdue(now time.Time) bool {
	if c.State.Terminal() || c.DeadlineAt == nil {
		return false
	}
	return now.After(*c.DeadlineAt)
}

// RejectionNote formats the failed mandatory criteria for the history note.
func RejectionNote(failed []string) string {
	return fmt.Sprintf("missing mandatory criteria: %s", strings.Join(failed, ", "))
}
