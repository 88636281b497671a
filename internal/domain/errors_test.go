package domain_test

import (
	"errors"
	"testing"

	"github.com/neomorfeo/caseflow/internal/domain"
)

func TestProgramConfigError_Error(t *testing.T) {
	err := &domain.ProgramConfigError{Field: "criteria", Reason: "weights sum to 120, above max score 100"}
	want := "invalid program configuration: criteria: weights sum to 120, above max score 100"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, domain.ErrInvalidProgramConfig) {
		t.Error("ProgramConfigError should match ErrInvalidProgramConfig")
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Family:  domain.FamilyBenefitGrant,
		Current: domain.StatePending,
		Target:  domain.StateGranted,
		Allowed: []domain.State{domain.StateInReview, domain.StateCancelled},
	}
	want := `transition "pending" -> "granted" is not valid for benefit_grant (allowed: in_review, cancelled)`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Error("TransitionError should match ErrInvalidTransition")
	}
}
