package transaction

import (
	"context"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// FuncStep adapts plain functions to Step.
type FuncStep struct {
	// StepName is returned by Name.
	StepName string
	// StepPhase is returned by Phase.
	StepPhase install.State
	// Describe renders the dry-run plan. Nil yields the step name.
	Describe func(t *install.Target) string
	// Run performs the step.
	Run func(ctx context.Context, tx *Transaction) ([]Action, error)
	// NoMutation marks the step read-only so it also runs in dry-run mode.
	NoMutation bool
}

// Name implements Step.
func (s *FuncStep) Name() string {
	return s.StepName
}

// Phase implements Step.
func (s *FuncStep) Phase() install.State {
	return s.StepPhase
}

// Plan implements Step.
func (s *FuncStep) Plan(t *install.Target) string {
	if s.Describe == nil {
		return s.StepName
	}

	return s.Describe(t)
}

// Apply implements Step.
func (s *FuncStep) Apply(ctx context.Context, tx *Transaction) ([]Action, error) {
	return s.Run(ctx, tx)
}

// ReadOnly implements ReadOnlyStep.
func (s *FuncStep) ReadOnly() bool {
	return s.NoMutation
}
