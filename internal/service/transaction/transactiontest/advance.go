// Package transactiontest helps tests drive a transaction to a given phase.
package transactiontest

import (
	"context"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
)

// noop is a read-only step that only moves the transaction into its phase.
type noop struct {
	phase install.State
}

func (s noop) Name() string                { return "enter-" + string(s.phase) }
func (s noop) Phase() install.State        { return s.phase }
func (s noop) Plan(*install.Target) string { return "" }
func (s noop) ReadOnly() bool              { return true }
func (s noop) Apply(context.Context, *transaction.Transaction) ([]transaction.Action, error) {
	return nil, nil
}

// Advance walks tx through every phase after its current one up to and including state.
func Advance(ctx context.Context, tx *transaction.Transaction, state install.State) error {
	if tx.State() == state {
		return nil
	}

	started := false

	for _, phase := range install.ForwardStates() {
		if phase == tx.State() {
			started = true
			continue
		}

		if !started {
			continue
		}

		if err := tx.RunStep(ctx, noop{phase: phase}); err != nil {
			return err
		}

		if phase == state {
			return nil
		}
	}

	return nil
}
