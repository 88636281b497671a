package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// ProgramsFile models a programs seed file.
type ProgramsFile struct {
	Programs []ProgramDef `yaml:"programs"`
}

// ProgramDef is one program as written in a seed file.
type ProgramDef struct {
	ID                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description"`
	Family            string         `yaml:"family"`
	Criteria          []CriterionDef `yaml:"criteria"`
	MaxScore          int            `yaml:"max_score"`
	Periodicity       string         `yaml:"periodicity"`
	Budget            *BudgetDef     `yaml:"budget"`
	GrantAmount       int64          `yaml:"grant_amount"`
	SLADays           map[string]int `yaml:"sla_days"`
	Enforcement       EnforcementDef `yaml:"enforcement"`
	RequiredDocuments []string       `yaml:"required_documents"`
	EstimatedDays     int            `yaml:"estimated_days"`
	IsFree            bool           `yaml:"is_free"`
	Active            bool           `yaml:"active"`
}

type CriterionDef struct {
	Name      string           `yaml:"name"`
	Weight    int              `yaml:"weight"`
	Mandatory bool             `yaml:"mandatory"`
	Predicate domain.Predicate `yaml:"predicate"`
}

type EnforcementDef struct {
	FineAmount   int64 `yaml:"fine_amount"`
	DefenseDays  int   `yaml:"defense_days"`
	ValidityDays int   `yaml:"validity_days"`
}

type BudgetDef struct {
	Allocated int64 `yaml:"allocated"`
	Unlimited bool  `yaml:"unlimited"`
}

// Program converts the definition to a domain program. A missing budget
// becomes the null-object budget.
func (d ProgramDef) Program() domain.Program {
	p := domain.Program{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Family:            domain.Family(d.Family),
		MaxScore:          d.MaxScore,
		Periodicity:       d.Periodicity,
		Budget:            domain.NoBudget(),
		GrantAmount:       d.GrantAmount,
		Enforcement:       domain.Enforcement(d.Enforcement),
		RequiredDocuments: d.RequiredDocuments,
		EstimatedDays:     d.EstimatedDays,
		IsFree:            d.IsFree,
		Active:            d.Active,
	}
	if d.Budget != nil {
		p.Budget = domain.Budget{Allocated: d.Budget.Allocated, Unlimited: d.Budget.Unlimited}
	}
	for _, c := range d.Criteria {
		p.Criteria = append(p.Criteria, domain.Criterion(c))
	}
	if len(d.SLADays) > 0 {
		p.SLADays = make(map[domain.State]int, len(d.SLADays))
		for s, days := range d.SLADays {
			p.SLADays[domain.State(s)] = days
		}
	}
	return p
}

// ProgramsFromYAML parses a seed file and validates every program in it.
// Unknown keys are rejected so typos do not silently drop settings.
func ProgramsFromYAML(data []byte) ([]domain.Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file ProgramsFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid programs yaml: %w", err)
	}

	seen := make(map[string]bool, len(file.Programs))
	programs := make([]domain.Program, 0, len(file.Programs))
	for i, def := range file.Programs {
		if seen[def.ID] {
			return nil, fmt.Errorf("programs[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true

		p := def.Program()
		if p.MaxScore == 0 {
			p.MaxScore = domain.DefaultMaxScore
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("programs[%d] (%s): %w", i, def.ID, err)
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// ProgramsFromFile reads a seed file from path.
func ProgramsFromFile(path string) ([]domain.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ProgramsFromYAML(data)
}
