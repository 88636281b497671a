package fsm_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	adapter "github.com/neomorfeo/caseflow/internal/adapter/fsm"
	"github.com/neomorfeo/caseflow/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, family := range domain.Families {
		for _, tr := range domain.Transitions(family) {
			dst, err := v.Apply(ctx, family, tr.Src, tr.Dst)
			if err != nil {
				t.Errorf("%s: Apply(%q, %q) unexpected error: %v", family, tr.Src, tr.Dst, err)
				continue
			}
			if dst != tr.Dst {
				t.Errorf("%s: Apply(%q, %q) = %q", family, tr.Src, tr.Dst, dst)
			}
		}
	}
}

func TestValidator_NonAdjacentTargetsFail(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, family := range domain.Families {
		for _, src := range domain.FamilyStates(family) {
			allowed := domain.Targets(family, src)
			for _, dst := range domain.States {
				if slices.Contains(allowed, dst) {
					continue
				}
				_, err := v.Apply(ctx, family, src, dst)
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Errorf("%s: Apply(%q, %q) = %v, want ErrInvalidTransition", family, src, dst, err)
				}
			}
		}
	}
}

func TestValidator_InvalidTransitionDetails(t *testing.T) {
	v := adapter.New()

	_, err := v.Apply(context.Background(), domain.FamilyBenefitGrant, domain.StatePending, domain.StateGranted)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Current != domain.StatePending || trErr.Target != domain.StateGranted {
		t.Errorf("error = %+v", trErr)
	}
	want := []domain.State{domain.StateInReview, domain.StateCancelled}
	if !slices.Equal(trErr.Allowed, want) {
		t.Errorf("Allowed = %v, want %v", trErr.Allowed, want)
	}
}

func TestValidator_UnknownFamily(t *testing.T) {
	v := adapter.New()
	_, err := v.Apply(context.Background(), "tax_refund", domain.StateSubmitted, domain.StateInReview)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestValidator_ComplaintLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from, to domain.State
	}{
		{domain.StateSubmitted, domain.StateInReview},
		{domain.StateInReview, domain.StateInspection},
		{domain.StateInspection, domain.StateEnforced},
		{domain.StateEnforced, domain.StateClosed},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, domain.FamilyEnvironmentalComplaint, step.from, step.to)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.to, err)
		}
		if got != step.to {
			t.Errorf("Apply(%q, %q) = %q", step.from, step.to, got)
		}
	}
}

func TestValidator_AvailableMatchesDomainTargets(t *testing.T) {
	v := adapter.New()
	for _, family := range domain.Families {
		for _, s := range domain.FamilyStates(family) {
			got := v.Available(family, s)
			want := domain.Targets(family, s)
			slices.Sort(got)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("%s: Available(%q) = %v, want %v", family, s, got, want)
			}
		}
	}
}
