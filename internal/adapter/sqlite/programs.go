package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: ProgramRepository implements domain.ProgramRepository.
var _ domain.ProgramRepository = (*ProgramRepository)(nil)

// ProgramRepository implements domain.ProgramRepository using SQLite.
// The budget is owned by the ledger and joined in on reads.
type ProgramRepository struct {
	q querier
}

// programDefinition is the JSON document holding the immutable part of a
// program.
type programDefinition struct {
	Criteria          []domain.Criterion   `json:"criteria"`
	MaxScore          int                  `json:"max_score"`
	Periodicity       string               `json:"periodicity,omitempty"`
	GrantAmount       int64                `json:"grant_amount"`
	SLADays           map[domain.State]int `json:"sla_days,omitempty"`
	Enforcement       domain.Enforcement   `json:"enforcement"`
	RequiredDocuments []string             `json:"required_documents,omitempty"`
	EstimatedDays     int                  `json:"estimated_days"`
	IsFree            bool                 `json:"is_free"`
}

const programColumns = `p.id, p.name, p.description, p.family, p.definition, p.active, p.created_at, p.updated_at,
	COALESCE(l.allocated, 0), COALESCE(l.unlimited, 1)`

const programFrom = ` FROM programs p LEFT JOIN budget_ledger l ON l.program_id = p.id`

func (r *ProgramRepository) Create(ctx context.Context, p domain.Program) error {
	def, err := json.Marshal(programDefinition{
		Criteria:          p.Criteria,
		MaxScore:          p.MaxScore,
		Periodicity:       p.Periodicity,
		GrantAmount:       p.GrantAmount,
		SLADays:           p.SLADays,
		Enforcement:       p.Enforcement,
		RequiredDocuments: p.RequiredDocuments,
		EstimatedDays:     p.EstimatedDays,
		IsFree:            p.IsFree,
	})
	if err != nil {
		return fmt.Errorf("encoding program definition: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO programs (id, name, description, family, definition, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(p.Family), string(def), boolToInt(p.Active),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("program %q: %w", p.ID, domain.ErrProgramExists)
		}
		return fmt.Errorf("inserting program: %w", err)
	}
	return nil
}

func (r *ProgramRepository) GetByID(ctx context.Context, id string) (domain.Program, error) {
	p, err := scanProgram(r.q.QueryRowContext(ctx,
		`SELECT `+programColumns+programFrom+` WHERE p.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Program{}, domain.ErrProgramNotFound
	}
	return p, err
}

func (r *ProgramRepository) List(ctx context.Context, filter domain.ProgramFilter) ([]domain.Program, error) {
	query := `SELECT ` + programColumns + programFrom
	var where []string
	var args []any

	if filter.Family != nil {
		where = append(where, `p.family = ?`)
		args = append(args, string(*filter.Family))
	}
	if filter.Active != nil {
		where = append(where, `p.active = ?`)
		args = append(args, boolToInt(*filter.Active))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY p.name`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var programs []domain.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

func (r *ProgramRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE programs SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating program: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrProgramNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(row scanner) (domain.Program, error) {
	var p domain.Program
	var family, definition, createdAt, updatedAt string
	var active, unlimited int

	err := row.Scan(&p.ID, &p.Name, &p.Description, &family, &definition, &active,
		&createdAt, &updatedAt, &p.Budget.Allocated, &unlimited)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Program{}, err
		}
		return domain.Program{}, fmt.Errorf("scanning program: %w", err)
	}

	var def programDefinition
	if err := json.Unmarshal([]byte(definition), &def); err != nil {
		return domain.Program{}, fmt.Errorf("decoding program %s definition: %w", p.ID, err)
	}

	p.Family = domain.Family(family)
	p.Active = active == 1
	p.Budget.Unlimited = unlimited == 1
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.Criteria = def.Criteria
	p.MaxScore = def.MaxScore
	p.Periodicity = def.Periodicity
	p.GrantAmount = def.GrantAmount
	p.SLADays = def.SLADays
	if p.SLADays == nil {
		p.SLADays = map[domain.State]int{}
	}
	p.Enforcement = def.Enforcement
	p.RequiredDocuments = def.RequiredDocuments
	p.EstimatedDays = def.EstimatedDays
	p.IsFree = def.IsFree

	return p, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
