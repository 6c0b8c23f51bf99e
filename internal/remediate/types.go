// Package remediate is the Remediation State Machine (C4): it orchestrates
// rpmprobe probes and repairs in the fixed partial order spec.md §4.4
// describes, recording a RunTranscript and enforcing the per-run budgets
// (max passes, at most one REBUILD_DB, kill-holders bracketing).
package remediate

import (
	"time"

	"github.com/blackwell-systems/dcrpm/internal/fileholders"
	"github.com/blackwell-systems/dcrpm/internal/procexec"
	"github.com/blackwell-systems/dcrpm/internal/rpmprobe"
)

// RepairActionKind tags the variant of repair a pass applied.
type RepairActionKind int

const (
	Noop RepairActionKind = iota
	RecoverDB
	RebuildDB
	CleanYumTx
	KillHolders
)

func (k RepairActionKind) String() string {
	switch k {
	case RecoverDB:
		return "RECOVER_DB"
	case RebuildDB:
		return "REBUILD_DB"
	case CleanYumTx:
		return "CLEAN_YUM_TX"
	case KillHolders:
		return "KILL_HOLDERS"
	default:
		return "NOOP"
	}
}

// RepairRecord records one applied repair and its outcome.
type RepairRecord struct {
	Action        RepairActionKind
	AttemptIndex  int
	Result        *procexec.CommandResult // nil for KILL_HOLDERS
	KillResult    *fileholders.KillResult // non-nil only for KILL_HOLDERS
	BecameHealthy *bool
	Simulated     bool
}

func (r *RepairRecord) succeeded() bool {
	if r == nil {
		return true
	}
	if r.Simulated {
		return true
	}
	if r.Action == KillHolders {
		return r.KillResult == nil || len(r.KillResult.Failed) == 0
	}
	return r.Result != nil && r.Result.Success()
}

// PassRecord is one full probe-then-repair iteration, per spec.md's
// RunTranscript definition, supplemented with the holder-killing
// bookkeeping that brackets RECOVER_DB/REBUILD_DB.
type PassRecord struct {
	Index             int
	SymptomObserved   rpmprobe.Symptom
	PreKillHolders    *RepairRecord
	RepairApplied     *RepairRecord
	PostKillHolders   *RepairRecord
	PostRepairSymptom *rpmprobe.Symptom
}

// RunStatus is the final classification of a run.
type RunStatus int

const (
	StatusOK RunStatus = iota
	StatusRemediated
	StatusPartial
	StatusFailed
)

func (s RunStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusRemediated:
		return "REMEDIATED"
	case StatusPartial:
		return "PARTIAL"
	default:
		return "FAILED"
	}
}

// RunTranscript is the append-only record of a single run, written by the
// state machine only (spec.md §5).
type RunTranscript struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Passes    []PassRecord
	Status    RunStatus
	Notes     []string
}

// Actions flattens the transcript into the ordered sequence of repair
// actions taken across all passes, the form spec.md §8's literal
// scenarios report as e.g. actions=[KILL_HOLDERS,RECOVER_DB].
func (t *RunTranscript) Actions() []RepairActionKind {
	var actions []RepairActionKind
	for _, pass := range t.Passes {
		if pass.PreKillHolders != nil {
			actions = append(actions, KillHolders)
		}
		if pass.RepairApplied != nil && pass.RepairApplied.Action != Noop {
			actions = append(actions, pass.RepairApplied.Action)
		}
		if pass.PostKillHolders != nil {
			actions = append(actions, KillHolders)
		}
	}
	return actions
}

// RebuildCount returns how many REBUILD_DB actions the transcript
// contains, for enforcing spec.md §8's "≤ 1 unless allowed" invariant.
func (t *RunTranscript) RebuildCount() int {
	n := 0
	for _, a := range t.Actions() {
		if a == RebuildDB {
			n++
		}
	}
	return n
}
