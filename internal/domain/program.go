package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// DefaultMaxScore is the score ceiling used when a program does not set one.
const DefaultMaxScore = 100

// Unlimited is reported as the remaining budget of programs without a cap.
const Unlimited int64 = math.MaxInt64

// Criterion is a named eligibility rule. Mandatory criteria gate eligibility
// and carry no weight; optional ones add Weight points when satisfied.
type Criterion struct {
	Name      string    `json:"name"`
	Weight    int       `json:"weight"`
	Mandatory bool      `json:"mandatory"`
	Predicate Predicate `json:"predicate"`
}

// Budget is a program's monetary allocation. The zero-allocation unlimited
// budget is the null object for non-monetary programs.
type Budget struct {
	Allocated int64 `json:"allocated"`
	Unlimited bool  `json:"unlimited"`
}

// NoBudget returns the null-object budget.
func NoBudget() Budget {
	return Budget{Allocated: 0, Unlimited: true}
}

// Enforcement configures the escalation created when a case is enforced.
type Enforcement struct {
	FineAmount   int64 `json:"fine_amount"`
	DefenseDays  int   `json:"defense_days"`
	ValidityDays int   `json:"validity_days"`
}

// Program is the configuration of one benefit, license or complaint scheme.
type Program struct {
	ID                string
	Name              string
	Description       string
	Family            Family
	Criteria          []Criterion
	MaxScore          int
	Periodicity       string
	Budget            Budget
	GrantAmount       int64
	SLADays           map[State]int
	Enforcement       Enforcement
	RequiredDocuments []string
	EstimatedDays     int
	IsFree            bool
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewProgram fills defaults for a program definition and validates it.
func NewProgram(p Program) (Program, error) {
	if p.MaxScore == 0 {
		p.MaxScore = DefaultMaxScore
	}
	if !p.Family.Monetary() {
		p.Budget = NoBudget()
	}
	if p.SLADays == nil {
		p.SLADays = map[State]int{}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

// Validate checks the configuration invariants. Violations are reported as
// *ProgramConfigError.
func (p Program) Validate() error {
	if p.ID == "" {
		return &ProgramConfigError{Field: "id", Reason: "is required"}
	}
	if p.Name == "" {
		return &ProgramConfigError{Field: "name", Reason: "is required"}
	}
	if !p.Family.Valid() {
		return &ProgramConfigError{Field: "family", Reason: fmt.Sprintf("unknown family %q", p.Family)}
	}
	if p.MaxScore <= 0 {
		return &ProgramConfigError{Field: "max_score", Reason: "must be positive"}
	}

	seen := make(map[string]bool, len(p.Criteria))
	total := 0
	for i, c := range p.Criteria {
		field := fmt.Sprintf("criteria[%d]", i)
		if c.Name == "" {
			return &ProgramConfigError{Field: field, Reason: "name is required"}
		}
		if seen[c.Name] {
			return &ProgramConfigError{Field: field, Reason: fmt.Sprintf("duplicate name %q", c.Name)}
		}
		seen[c.Name] = true
		if c.Weight < 0 {
			return &ProgramConfigError{Field: field, Reason: "weight must not be negative"}
		}
		if c.Mandatory && c.Weight != 0 {
			return &ProgramConfigError{Field: field, Reason: "mandatory criteria carry weight 0"}
		}
		if err := c.Predicate.Validate(); err != nil {
			return &ProgramConfigError{Field: field + ".predicate", Reason: err.Error()}
		}
		total += c.Weight
	}
	if total > p.MaxScore {
		return &ProgramConfigError{
			Field:  "criteria",
			Reason: fmt.Sprintf("weights sum to %d, above max score %d", total, p.MaxScore),
		}
	}

	if p.Budget.Allocated < 0 {
		return &ProgramConfigError{Field: "budget.allocated", Reason: "must not be negative"}
	}
	if p.GrantAmount < 0 {
		return &ProgramConfigError{Field: "grant_amount", Reason: "must not be negative"}
	}

	states := FamilyStates(p.Family)
	for s, days := range p.SLADays {
		if !slices.Contains(states, s) {
			return &ProgramConfigError{Field: "sla_days", Reason: fmt.Sprintf("state %q is not used by %s", s, p.Family)}
		}
		if days < 0 {
			return &ProgramConfigError{Field: "sla_days", Reason: fmt.Sprintf("days for %q must not be negative", s)}
		}
	}

	if p.Enforcement.FineAmount < 0 || p.Enforcement.DefenseDays < 0 || p.Enforcement.ValidityDays < 0 {
		return &ProgramConfigError{Field: "enforcement", Reason: "values must not be negative"}
	}
	return nil
}

// Deadline returns when a case entering state at `at` becomes overdue, or nil
// when the program sets no SLA for that state.
func (p Program) Deadline(state State, at time.Time) *time.Time {
	if state.Terminal() {
		return nil
	}
	days, ok := p.SLADays[state]
	if !ok || days == 0 {
		return nil
	}
	d := at.AddDate(0, 0, days)
	return &d
}

// Descriptor builds the public catalog entry for the program.
func (p Program) Descriptor() ServiceDescriptor {
	docs := make([]string, len(p.RequiredDocuments))
	copy(docs, p.RequiredDocuments)
	return ServiceDescriptor{
		Name:              p.Name,
		Description:       p.Description,
		RequiredDocuments: docs,
		EstimatedDays:     p.EstimatedDays,
		IsFree:            p.IsFree,
	}
}

// ServiceDescriptor is what the public service catalog shows for a program.
type ServiceDescriptor struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	RequiredDocuments []string `json:"required_documents"`
	EstimatedDays     int      `json:"estimated_days"`
	IsFree            bool     `json:"is_free"`
}

// ServiceEntry is a published catalog descriptor keyed by program.
type ServiceEntry struct {
	ProgramID  string
	Descriptor ServiceDescriptor
	UpdatedAt  time.Time
}
