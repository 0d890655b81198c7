package transaction

import (
	"time"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// Journal is the history of a transaction used by the reporter.
type Journal struct {
	// ID is the transaction identifier.
	ID string
	// DryRun marks a simulated transaction.
	DryRun bool
	// Started and Finished bound the transaction.
	Started, Finished time.Time
	// States lists every state entered, in order.
	States []install.State
	// Steps lists every executed or simulated step.
	Steps []StepEntry
	// Rollback lists compensations in execution order.
	Rollback []RollbackEntry
	// Cause is the error that aborted the transaction.
	Cause string
	// RollbackErr aggregates failed compensations.
	RollbackErr error
}

// StepEntry records one step.
type StepEntry struct {
	Name      string
	Phase     install.State
	Started   time.Time
	Finished  time.Time
	Simulated bool
	Plan      string
	Actions   []string
	Err       string
}

// RollbackEntry records one executed compensation.
type RollbackEntry struct {
	Action string
	At     time.Time
	Err    string
}

// RollbackQuality grades how completely a rollback restored the host.
type RollbackQuality string

// Rollback grades.
const (
	RollbackNone    RollbackQuality = "NONE"
	RollbackFull    RollbackQuality = "FULL"
	RollbackPartial RollbackQuality = "PARTIAL"
)

// Quality grades the rollback. NONE means nothing had to be undone.
func (j *Journal) Quality() RollbackQuality {
	if len(j.Rollback) == 0 {
		return RollbackNone
	}

	for _, r := range j.Rollback {
		if r.Err != "" {
			return RollbackPartial
		}
	}

	return RollbackFull
}

// Duration is the wall time of the transaction so far.
func (j *Journal) Duration() time.Duration {
	if j.Finished.IsZero() {
		return time.Since(j.Started)
	}

	return j.Finished.Sub(j.Started)
}

func (j *Journal) clone() Journal {
	c := *j
	c.States = append([]install.State(nil), j.States...)
	c.Rollback = append([]RollbackEntry(nil), j.Rollback...)

	c.Steps = make([]StepEntry, len(j.Steps))
	for i, s := range j.Steps {
		s.Actions = append([]string(nil), s.Actions...)
		c.Steps[i] = s
	}

	return c
}
