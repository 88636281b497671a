package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: Ledger implements domain.BudgetLedger.
var _ domain.BudgetLedger = (*Ledger)(nil)

const (
	reservationReserved  = "reserved"
	reservationCommitted = "committed"
	reservationReleased  = "released"
)

// Ledger implements domain.BudgetLedger using SQLite. Reserve is a single
// conditional UPDATE, so two callers can never both take the last unit.
type Ledger struct {
	q querier
}

func (l *Ledger) Open(ctx context.Context, programID string, budget domain.Budget) error {
	if budget.Allocated < 0 {
		return domain.ErrInvalidAmount
	}

	_, err := l.q.ExecContext(ctx,
		`INSERT INTO budget_ledger (program_id, allocated, unlimited) VALUES (?, ?, ?)`,
		programID, budget.Allocated, boolToInt(budget.Unlimited),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger for program %q: %w", programID, domain.ErrProgramExists)
		}
		return fmt.Errorf("opening ledger: %w", err)
	}
	return nil
}

func (l *Ledger) TopUp(ctx context.Context, programID string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}

	result, err := l.q.ExecContext(ctx,
		`UPDATE budget_ledger SET allocated = allocated + ? WHERE program_id = ?`,
		amount, programID,
	)
	if err != nil {
		return fmt.Errorf("topping up ledger: %w", err)
	}
	return requireRow(result, domain.ErrProgramNotFound)
}

func (l *Ledger) Reserve(ctx context.Context, programID, caseID string, amount int64) (string, error) {
	if amount < 0 {
		return "", domain.ErrInvalidAmount
	}

	id := uuid.NewString()
	err := atomically(ctx, l.q, func(q querier) error {
		result, err := q.ExecContext(ctx,
			`UPDATE budget_ledger SET reserved = reserved + ?
			 WHERE program_id = ? AND (unlimited = 1 OR allocated - reserved - consumed >= ?)`,
			amount, programID, amount,
		)
		if err != nil {
			return fmt.Errorf("reserving budget: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			if _, err := l.entry(ctx, q, programID); err != nil {
				return err
			}
			return domain.ErrInsufficientBudget
		}

		now := formatTime(time.Now())
		_, err = q.ExecContext(ctx,
			`INSERT INTO budget_reservations (id, program_id, case_id, amount, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, programID, caseID, amount, reservationReserved, now, now,
		)
		if err != nil {
			return fmt.Errorf("recording reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Commit converts a reservation into consumption. Committing twice is a
// no-op.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	return atomically(ctx, l.q, func(q querier) error {
		res, err := l.reservation(ctx, q, reservationID)
		if err != nil {
			return err
		}
		switch res.status {
		case reservationCommitted:
			return nil
		case reservationReleased:
			return domain.ErrReservationReleased
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE budget_ledger SET reserved = reserved - ?, consumed = consumed + ? WHERE program_id = ?`,
			res.amount, res.amount, res.programID,
		); err != nil {
			return fmt.Errorf("committing reservation: %w", err)
		}
		return l.setStatus(ctx, q, reservationID, reservationCommitted)
	})
}

// Release returns a reserved amount to the pool. Releasing twice is a
// no-op; committed reservations cannot be released.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	return atomically(ctx, l.q, func(q querier) error {
		res, err := l.reservation(ctx, q, reservationID)
		if err != nil {
			return err
		}
		switch res.status {
		case reservationReleased:
			return nil
		case reservationCommitted:
			return domain.ErrAlreadyCommitted
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE budget_ledger SET reserved = reserved - ? WHERE program_id = ?`,
			res.amount, res.programID,
		); err != nil {
			return fmt.Errorf("releasing reservation: %w", err)
		}
		return l.setStatus(ctx, q, reservationID, reservationReleased)
	})
}

func (l *Ledger) Remaining(ctx context.Context, programID string) (int64, error) {
	e, err := l.Entry(ctx, programID)
	if err != nil {
		return 0, err
	}
	return e.Remaining(), nil
}

func (l *Ledger) Entry(ctx context.Context, programID string) (domain.LedgerEntry, error) {
	return l.entry(ctx, l.q, programID)
}

func (l *Ledger) entry(ctx context.Context, q querier, programID string) (domain.LedgerEntry, error) {
	e := domain.LedgerEntry{ProgramID: programID}
	var unlimited int

	err := q.QueryRowContext(ctx,
		`SELECT allocated, reserved, consumed, unlimited FROM budget_ledger WHERE program_id = ?`,
		programID,
	).Scan(&e.Allocated, &e.Reserved, &e.Consumed, &unlimited)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerEntry{}, domain.ErrProgramNotFound
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("reading ledger: %w", err)
	}

	e.Unlimited = unlimited == 1
	return e, nil
}

type reservationRow struct {
	programID string
	amount    int64
	status    string
}

func (l *Ledger) reservation(ctx context.Context, q querier, id string) (reservationRow, error) {
	var r reservationRow
	err := q.QueryRowContext(ctx,
		`SELECT program_id, amount, status FROM budget_reservations WHERE id = ?`, id,
	).Scan(&r.programID, &r.amount, &r.status)
	if errors.Is(err, sql.ErrNoRows) {
		return r, domain.ErrReservationNotFound
	}
	if err != nil {
		return r, fmt.Errorf("reading reservation: %w", err)
	}
	return r, nil
}

func (l *Ledger) setStatus(ctx context.Context, q querier, id, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE budget_reservations SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
