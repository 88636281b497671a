package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrCaseNotFound           = errors.New("case not found")
	ErrProgramNotFound        = errors.New("program not found")
	ErrProgramExists          = errors.New("program already exists")
	ErrProgramInactive        = errors.New("program is not accepting submissions")
	ErrInvalidProgramConfig   = errors.New("invalid program configuration")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrInsufficientBudget     = errors.New("insufficient budget")
	ErrAlreadyCommitted       = errors.New("reservation already committed")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationReleased    = errors.New("reservation already released")
	ErrConcurrentModification = errors.New("case was modified concurrently")
	ErrMissingActor           = errors.New("actor id is required")
	ErrInvalidAmount          = errors.New("amount must be a whole non-negative number")
)

// ProgramConfigError describes why a program definition was rejected.
// It matches ErrInvalidProgramConfig with errors.Is.
type ProgramConfigError struct {
	Field  string
	Reason string
}

func (e *ProgramConfigError) Error() string {
	return fmt.Sprintf("invalid program configuration: %s: %s", e.Field, e.Reason)
}

func (e *ProgramConfigError) Is(target error) bool {
	return target == ErrInvalidProgramConfig
}

// TransitionError is returned when a state transition is not allowed.
// Allowed lists the targets reachable from Current so callers can offer them.
type TransitionError struct {
	Family  Family
	Current State
	Target  State
	Allowed []State
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("transition %q -> %q is not valid for %s (allowed: %s)",
		e.Current, e.Target, e.Family, strings.Join(allowed, ", "))
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
