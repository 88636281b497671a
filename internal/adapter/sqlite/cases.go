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

// Compile-time check: CaseRepository implements domain.CaseRepository.
var _ domain.CaseRepository = (*CaseRepository)(nil)

// CaseRepository implements domain.CaseRepository using SQLite. Transitions
// live in an append-only table guarded by triggers.
type CaseRepository struct {
	q querier
}

const caseColumns = `id, program_id, family, origin, applicant, attributes, submitted_at,
	score, eligible, failed_mandatory, state, state_entered_at, deadline_at, requested_amount,
	reservation_id, reservation_amount, reservation_committed, escalation, version`

func (r *CaseRepository) Create(ctx context.Context, c domain.Case) error {
	cols, err := encodeCase(c)
	if err != nil {
		return err
	}

	return atomically(ctx, r.q, func(q querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO cases (`+caseColumns+`, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProgramID, string(c.Family), string(c.Origin), cols.applicant, cols.attributes,
			formatTime(c.SubmittedAt), cols.score, cols.eligible, cols.failed, string(c.State),
			formatTime(c.StateEnteredAt), formatNullTime(c.DeadlineAt), c.RequestedAmount,
			cols.reservationID, cols.reservationAmount, cols.reservationCommitted, cols.escalation,
			c.Version, formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("inserting case: %w", err)
		}
		return appendTransitions(ctx, q, c.ID, 0, c.History)
	})
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (domain.Case, error) {
	c, err := scanCase(r.q.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, domain.ErrCaseNotFound
		}
		return domain.Case{}, err
	}

	c.History, err = r.history(ctx, id)
	if err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func (r *CaseRepository) history(ctx context.Context, caseID string) ([]domain.StateTransition, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT from_state, to_state, at, actor_id, note
		 FROM case_transitions WHERE case_id = ? ORDER BY seq`, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading case history: %w", err)
	}
	defer rows.Close()

	var out []domain.StateTransition
	for rows.Next() {
		var tr domain.StateTransition
		var from, to, at string
		if err := rows.Scan(&from, &to, &at, &tr.ActorID, &tr.Note); err != nil {
			return nil, fmt.Errorf("scanning case transition: %w", err)
		}
		tr.From = domain.State(from)
		tr.To = domain.State(to)
		tr.At = parseTime(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *CaseRepository) List(ctx context.Context, filter domain.CaseFilter) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	var where []string
	var args []any

	if filter.ProgramID != "" {
		where = append(where, `program_id = ?`)
		args = append(args, filter.ProgramID)
	}
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, s := range filter.States {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, `state IN (`+strings.Join(marks, ", ")+`)`)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	query += ` ORDER BY submitted_at DESC, id`

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	return cases, rows.Err()
}

func (r *CaseRepository) Update(ctx context.Context, c domain.Case) error {
	cols, err := encodeCase(c)
	if err != nil {
		return err
	}

	return atomically(ctx, r.q, func(q querier) error {
		result, err := q.ExecContext(ctx,
			`UPDATE cases SET score = ?, eligible = ?, failed_mandatory = ?, state = ?,
			   state_entered_at = ?, deadline_at = ?, requested_amount = ?, reservation_id = ?,
			   reservation_amount = ?, reservation_committed = ?, escalation = ?,
			   version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			cols.score, cols.eligible, cols.failed, string(c.State),
			formatTime(c.StateEnteredAt), formatNullTime(c.DeadlineAt), c.RequestedAmount,
			cols.reservationID, cols.reservationAmount, cols.reservationCommitted, cols.escalation,
			formatTime(time.Now()), c.ID, c.Version,
		)
		if err != nil {
			return fmt.Errorf("updating case: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			var exists int
			err := q.QueryRowContext(ctx, `SELECT 1 FROM cases WHERE id = ?`, c.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrCaseNotFound
			}
			if err != nil {
				return fmt.Errorf("checking case existence: %w", err)
			}
			return domain.ErrConcurrentModification
		}

		var stored int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM case_transitions WHERE case_id = ?`, c.ID,
		).Scan(&stored); err != nil {
			return fmt.Errorf("counting case transitions: %w", err)
		}
		if stored > len(c.History) {
			return domain.ErrConcurrentModification
		}
		return appendTransitions(ctx, q, c.ID, stored, c.History[stored:])
	})
}

func appendTransitions(ctx context.Context, q querier, caseID string, seq int, history []domain.StateTransition) error {
	for i, tr := range history {
		_, err := q.ExecContext(ctx,
			`INSERT INTO case_transitions (case_id, seq, from_state, to_state, at, actor_id, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			caseID, seq+i, string(tr.From), string(tr.To), formatTime(tr.At), tr.ActorID, tr.Note,
		)
		if err != nil {
			return fmt.Errorf("appending case transition: %w", err)
		}
	}
	return nil
}

func (r *CaseRepository) Statistics(ctx context.Context, programID string, now time.Time) (domain.ProgramStatistics, error) {
	stats := domain.ProgramStatistics{
		ProgramID:          programID,
		ByState:            make(map[domain.State]int),
		AverageDaysInState: make(map[domain.State]float64),
	}
	nowStr := formatTime(now)

	rows, err := r.q.QueryContext(ctx,
		`SELECT state, COUNT(*),
		   SUM(CASE WHEN deadline_at IS NOT NULL AND deadline_at < ? THEN 1 ELSE 0 END)
		 FROM cases WHERE program_id = ? GROUP BY state`, nowStr, programID,
	)
	if err != nil {
		return stats, fmt.Errorf("counting cases by state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count, overdue int
		if err := rows.Scan(&state, &count, &overdue); err != nil {
			return stats, fmt.Errorf("scanning state count: %w", err)
		}
		stats.ByState[domain.State(state)] = count
		stats.Total += count
		stats.Overdue += overdue
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	terminal := []any{nowStr, programID}
	marks := make([]string, 0, 4)
	for _, s := range domain.States {
		if s.Terminal() {
			marks = append(marks, "?")
			terminal = append(terminal, string(s))
		}
	}

	// A stay ends at the next transition of the same case; open stays of
	// non-terminal states run until now.
	avgRows, err := r.q.QueryContext(ctx,
		`SELECT to_state, AVG(julianday(COALESCE(next_at, ?)) - julianday(at))
		 FROM (
		   SELECT t.to_state, t.at,
		          LEAD(t.at) OVER (PARTITION BY t.case_id ORDER BY t.seq) AS next_at
		   FROM case_transitions t JOIN cases c ON c.id = t.case_id
		   WHERE c.program_id = ?
		 )
		 WHERE next_at IS NOT NULL OR to_state NOT IN (`+strings.Join(marks, ", ")+`)
		 GROUP BY to_state`, terminal...,
	)
	if err != nil {
		return stats, fmt.Errorf("averaging days in state: %w", err)
	}
	defer avgRows.Close()

	for avgRows.Next() {
		var state string
		var days float64
		if err := avgRows.Scan(&state, &days); err != nil {
			return stats, fmt.Errorf("scanning state average: %w", err)
		}
		stats.AverageDaysInState[domain.State(state)] = days
	}
	return stats, avgRows.Err()
}

// caseColumnsEncoded holds the JSON and nullable columns of a case row.
type caseColumnsEncoded struct {
	applicant, attributes, failed string
	score, eligible               any
	reservationID                 any
	reservationAmount             int64
	reservationCommitted          int
	escalation                    any
}

func encodeCase(c domain.Case) (caseColumnsEncoded, error) {
	var out caseColumnsEncoded

	applicant, err := json.Marshal(c.Applicant)
	if err != nil {
		return out, fmt.Errorf("encoding applicant: %w", err)
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return out, fmt.Errorf("encoding attributes: %w", err)
	}
	failed := c.FailedMandatory
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return out, fmt.Errorf("encoding failed criteria: %w", err)
	}
	out.applicant = string(applicant)
	out.attributes = string(attrs)
	out.failed = string(failedJSON)

	if c.Score != nil {
		out.score = *c.Score
	}
	if c.Eligible != nil {
		out.eligible = boolToInt(*c.Eligible)
	}
	if c.Reservation != nil {
		out.reservationID = c.Reservation.ID
		out.reservationAmount = c.Reservation.Amount
		out.reservationCommitted = boolToInt(c.Reservation.Committed)
	}
	if c.Escalation != nil {
		esc, err := json.Marshal(c.Escalation)
		if err != nil {
			return out, fmt.Errorf("encoding escalation: %w", err)
		}
		out.escalation = string(esc)
	}
	return out, nil
}

func scanCase(row scanner) (domain.Case, error) {
	var c domain.Case
	var family, origin, applicant, attrs, submittedAt, failed, state, enteredAt string
	var score, eligible sql.NullInt64
	var deadline, reservationID, escalation sql.NullString
	var reservationAmount int64
	var reservationCommitted int

	err := row.Scan(&c.ID, &c.ProgramID, &family, &origin, &applicant, &attrs, &submittedAt,
		&score, &eligible, &failed, &state, &enteredAt, &deadline, &c.RequestedAmount,
		&reservationID, &reservationAmount, &reservationCommitted, &escalation, &c.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, err
		}
		return domain.Case{}, fmt.Errorf("scanning case: %w", err)
	}

	c.Family = domain.Family(family)
	c.Origin = domain.Origin(origin)
	c.State = domain.State(state)
	c.SubmittedAt = parseTime(submittedAt)
	c.StateEnteredAt = parseTime(enteredAt)
	c.DeadlineAt = parseNullTime(deadline)

	if err := json.Unmarshal([]byte(applicant), &c.Applicant); err != nil {
		return domain.Case{}, fmt.Errorf("decoding case %s applicant: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(attrs), &c.Attributes); err != nil {
		return domain.Case{}, fmt.Errorf("decoding case %s attributes: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(failed), &c.FailedMandatory); err != nil {
		return domain.Case{}, fmt.Errorf("decoding case %s failed criteria: %w", c.ID, err)
	}
	if len(c.FailedMandatory) == 0 {
		c.FailedMandatory = nil
	}

	if score.Valid {
		v := int(score.Int64)
		c.Score = &v
	}
	if eligible.Valid {
		v := eligible.Int64 == 1
		c.Eligible = &v
	}
	if reservationID.Valid {
		c.Reservation = &domain.Reservation{
			ID:        reservationID.String,
			Amount:    reservationAmount,
			Committed: reservationCommitted == 1,
		}
	}
	if escalation.Valid {
		c.Escalation = &domain.Escalation{}
		if err := json.Unmarshal([]byte(escalation.String), c.Escalation); err != nil {
			return domain.Case{}, fmt.Errorf("decoding case %s escalation: %w", c.ID, err)
		}
	}

	return c, nil
}
