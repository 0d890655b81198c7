package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
	"github.com/oshokin/mediamtx-installer/internal/service/verifier"
)

const durationPrecision = time.Millisecond

// Outcome is everything the reporter summarizes about a run.
type Outcome struct {
	// Target is the run description.
	Target *install.Target
	// Journal is the transaction history. Empty when the run failed before the transaction began.
	Journal transaction.Journal
	// Verification is the integrity check result, nil when none ran.
	Verification *verifier.Result
	// Backups are the copies taken by the transaction.
	Backups []install.BackupRecord
	// Err is the error the run ended with.
	Err error
}

// ExitCode returns the process exit code of the outcome.
func (o *Outcome) ExitCode() int {
	return install.ExitCode(o.Err)
}

// Assurance describes how far the installed artifact was verified.
func (o *Outcome) Assurance() string {
	switch {
	case o.Verification == nil:
		return "not checked"
	case o.Verification.Verified():
		return "verified (sha256 " + o.Verification.Expected + ")"
	case o.Verification.Status == verifier.StatusMismatch:
		return "checksum mismatch"
	default:
		return "REDUCED ASSURANCE: unverified (" + o.Verification.Reason + ")"
	}
}

// Summary renders the human-readable end-of-run report.
func Summary(o *Outcome) string {
	var b strings.Builder

	t := o.Target
	j := &o.Journal

	result := "SUCCESS"

	switch {
	case o.Err != nil:
		result = fmt.Sprintf("FAILED (%s, exit code %d)", install.KindOf(o.Err), o.ExitCode())
	case j.DryRun:
		result = "DRY RUN (no changes made)"
	}

	fmt.Fprintf(&b, "Installation summary\n")
	fmt.Fprintf(&b, "  Result:       %s\n", result)

	if t != nil {
		fmt.Fprintf(&b, "  Version:      %s (%s/%s)\n", t.Version, t.OS, t.Arch)
		fmt.Fprintf(&b, "  Binary:       %s\n", t.BinaryPath())
		fmt.Fprintf(&b, "  Config:       %s\n", t.ConfigFile)
		fmt.Fprintf(&b, "  Service:      %s\n", t.UnitName())
	}

	fmt.Fprintf(&b, "  Integrity:    %s\n", o.Assurance())

	if j.ID != "" {
		fmt.Fprintf(&b, "  Transaction:  %s (%s)\n", j.ID, j.Duration().Round(durationPrecision))
	}

	if len(j.Steps) > 0 {
		fmt.Fprintf(&b, "  Steps:\n")

		for _, s := range j.Steps {
			fmt.Fprintf(&b, "    - %s\n", describeStep(&s))
		}
	}

	if len(o.Backups) > 0 {
		fmt.Fprintf(&b, "  Backups:\n")

		for _, r := range o.Backups {
			fmt.Fprintf(&b, "    - %s -> %s\n", r.Original, r.Backup)
		}
	}

	if o.Err != nil {
		fmt.Fprintf(&b, "  Error:        %v\n", o.Err)
		fmt.Fprintf(&b, "  Rollback:     %s\n", j.Quality())

		for _, r := range j.Rollback {
			if r.Err != "" {
				fmt.Fprintf(&b, "    ! %s: %s\n", r.Action, r.Err)
			}
		}
	}

	if t != nil && t.LogFile != "" && !t.DryRun {
		fmt.Fprintf(&b, "  Log file:     %s\n", t.LogFile)
	}

	return b.String()
}

func describeStep(s *transaction.StepEntry) string {
	switch {
	case s.Simulated:
		return fmt.Sprintf("%s [would] %s", s.Name, s.Plan)
	case s.Err != "":
		return fmt.Sprintf("%s [failed] %s", s.Name, s.Err)
	case len(s.Actions) > 0:
		return fmt.Sprintf("%s [changed, undo: %s]", s.Name, strings.Join(s.Actions, "; "))
	default:
		return s.Name + " [ok]"
	}
}
