package remediate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/blackwell-systems/dcrpm/internal/config"
	"github.com/blackwell-systems/dcrpm/internal/dcrpmerr"
	"github.com/blackwell-systems/dcrpm/internal/fileholders"
	"github.com/blackwell-systems/dcrpm/internal/forensics"
	"github.com/blackwell-systems/dcrpm/internal/procexec"
	"github.com/blackwell-systems/dcrpm/internal/rpmprobe"
)

// SettleFunc gates the first probe of a run on the database being quiet
// (internal/watchfs's write-quiescence pre-check, SPEC_FULL.md §9.2). A
// nil SettleFunc skips the check entirely.
type SettleFunc func() (settled bool, err error)

// SnapshotFunc tars up dbPath before the first REBUILD_DB of a run
// (internal/snapshot, SPEC_FULL.md §9.4). A nil SnapshotFunc is a no-op.
type SnapshotFunc func() (archivePath string, err error)

// Machine is the Remediation State Machine (C4): it drives rpmprobe
// probes and repairs, bracketed by fileholders kills, for up to
// Cfg.MaxPasses iterations, recording a RunTranscript.
type Machine struct {
	Cfg       *config.Config
	Prober    *rpmprobe.Prober
	Inspector *fileholders.Inspector
	Settle    SettleFunc
	Snapshot  SnapshotFunc
	Forensics *forensics.Logger
}

// Run executes the full remediation loop described in spec.md §4.4. ctx
// carries the top-level deadline (spec.md §5: default 900s, wired by the
// caller as a timeout plus SIGINT/SIGTERM cancellation) — when it is
// done, the in-flight C1 call is cut short and the run ends FAILED. A
// nil ctx runs without a deadline.
func (m *Machine) Run(ctx context.Context) (*RunTranscript, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t := &RunTranscript{RunID: uuid.NewString(), StartedAt: time.Now()}
	defer func() { t.Elapsed = time.Since(t.StartedAt) }()

	if m.Prober != nil {
		m.Prober.Ctx = ctx
	}
	if m.Inspector != nil {
		m.Inspector.Ctx = ctx
	}

	ok, err := hasFreeDiskSpace(m.Cfg.DBPath, m.Cfg.MinFreeSpaceBytes)
	if err != nil {
		return t, dcrpmerr.New(dcrpmerr.ConfigError, "statfs failed", err)
	}
	if !ok {
		t.Status = StatusFailed
		t.Notes = append(t.Notes, "not_enough_disk")
		return t, dcrpmerr.New(dcrpmerr.ConfigError, fmt.Sprintf("need at least %s free on %s to continue", humanize.IBytes(uint64(m.Cfg.MinFreeSpaceBytes)), m.Cfg.DBPath), nil)
	}

	if m.Settle != nil {
		settled, err := m.Settle()
		if err != nil {
			t.Notes = append(t.Notes, "settle check failed: "+err.Error())
		} else if !settled {
			t.Status = StatusOK
			t.Notes = append(t.Notes, "DEFERRED_ACTIVE")
			return t, nil
		}
	}

	if m.Cfg.CleanupYumTx {
		if sym := m.Prober.YumTransactions(); sym.Kind == rpmprobe.StaleYumTransaction {
			m.Prober.CleanYumTransactions()
		}
	}
	if m.Cfg.KillStuckYum {
		result := m.Prober.CheckStuckYum(m.Cfg.DryRun)
		if result.Stuck {
			t.Notes = append(t.Notes, "stuck yum: "+result.Reason)
		}
	}

	var (
		triedRecoverForShort bool
		anyRepairApplied     bool
		anyProgress          bool
		rebuildsDone         int
		prevSymptomKind      = rpmprobe.Unknown
		prevSymptomSeen      bool
	)

	for pass := 0; pass < m.Cfg.MaxPasses; pass++ {
		if ctx.Err() != nil {
			return m.failDeadline(t, ctx)
		}

		healthy, perr := func() (healthy bool, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = dcrpmerr.New(dcrpmerr.Internal, fmt.Sprintf("pass %d panicked", pass), fmt.Errorf("%v", r))
				}
			}()

			sym := m.probeOnce()

			if sym.IsHealthy() {
				return true, nil
			}

			m.captureForensics(sym.Kind.String(), sym.Result)

			if sym.Kind == rpmprobe.LockContention {
				// spec.md §5 "Shared resources": another rpm/yum instance
				// holds the lock, so this pass is skipped rather than
				// attempting a repair that would itself fail to acquire it.
				lockErr := dcrpmerr.New(dcrpmerr.LockContention, "yum/rpm lock held by another process", nil)
				t.Notes = append(t.Notes, "BLOCKED_BY_LOCK: "+lockErr.Error())
				t.Passes = append(t.Passes, PassRecord{Index: pass, SymptomObserved: sym})
				return false, nil
			}

			if prevSymptomSeen && prevSymptomKind != sym.Kind {
				anyProgress = true
			}
			prevSymptomKind = sym.Kind
			prevSymptomSeen = true

			record := PassRecord{Index: pass, SymptomObserved: sym}

			action, killBefore, killAfter := repairFor(sym.Kind, triedRecoverForShort)

			if action == RebuildDB && rebuildsDone >= 1 && !m.Cfg.AllowMultipleRebuilds {
				// Budget exhausted for this action kind; fall through as NOOP
				// so the loop still records a pass and can exhaust maxPasses.
				// The KILL_HOLDERS bracket exists to protect a REBUILD_DB, so
				// it is dropped along with the repair it would have guarded.
				action = Noop
				killBefore = false
				killAfter = false
			}

			if killBefore {
				record.PreKillHolders = m.killHolders(pass)
			}

			if action == RebuildDB && rebuildsDone == 0 && m.Snapshot != nil {
				if path, err := m.Snapshot(); err == nil && path != "" {
					t.Notes = append(t.Notes, "snapshot: "+path)
				}
			}

			record.RepairApplied = m.applyRepair(action, pass)
			if record.RepairApplied != nil && record.RepairApplied.Result != nil && !record.RepairApplied.Result.Success() {
				if path, _ := m.captureForensics(action.String(), record.RepairApplied.Result); path != "" {
					t.Notes = append(t.Notes, "forensic capture: "+path)
				}
			}
			if action == RecoverDB && (sym.Kind == rpmprobe.QueryEmpty || sym.Kind == rpmprobe.QueryShort) {
				triedRecoverForShort = true
			}
			if action == RebuildDB {
				rebuildsDone++
			}
			if action != Noop {
				anyRepairApplied = true
			}

			if killAfter {
				record.PostKillHolders = m.killHolders(pass)
			}

			post := m.probeOnce()
			record.PostRepairSymptom = &post
			t.Passes = append(t.Passes, record)
			return false, nil
		}()

		if perr != nil {
			t.Status = StatusFailed
			return t, perr
		}
		if ctx.Err() != nil {
			// The deadline could have expired mid-pass, cutting the C1 call
			// short without the closure itself observing it as a panic.
			return m.failDeadline(t, ctx)
		}
		if healthy {
			if anyRepairApplied {
				t.Status = StatusRemediated
			} else {
				t.Status = StatusOK
			}
			return t, nil
		}
	}

	if anyProgress {
		t.Status = StatusPartial
	} else {
		t.Status = StatusFailed
	}
	return t, nil
}

// failDeadline ends the run FAILED because ctx is done, distinguishing
// the overall-timeout case (spec.md §8 scenario 6: "status FAILED with
// Deadline, exit 2") from an OS SIGINT/SIGTERM interrupting the run —
// both cut the in-flight C1 call short the same way, but only the former
// is the "DEADLINE" note spec.md §5 names.
func (m *Machine) failDeadline(t *RunTranscript, ctx context.Context) (*RunTranscript, error) {
	t.Status = StatusFailed
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Notes = append(t.Notes, "DEADLINE")
		return t, dcrpmerr.New(dcrpmerr.Deadline, "overall timeout exceeded", ctx.Err())
	}
	t.Notes = append(t.Notes, "INTERRUPTED")
	return t, dcrpmerr.New(dcrpmerr.Deadline, "run interrupted", ctx.Err())
}

// probeOnce runs the probe order from spec.md §4.4: query, then (if
// enabled) tables, then (if enabled) index consistency, then yum
// transactions. The first non-healthy classification wins.
func (m *Machine) probeOnce() rpmprobe.Symptom {
	if sym := m.Prober.Query(); !sym.IsHealthy() {
		return sym
	}
	if m.Cfg.CheckTables {
		if sym := m.Prober.Tables(); !sym.IsHealthy() {
			return sym
		}
	}
	if m.Cfg.VerifyTables {
		if sym := m.Prober.IndexConsistency(); !sym.IsHealthy() {
			return sym
		}
	}
	return m.Prober.YumTransactions()
}

func (m *Machine) applyRepair(action RepairActionKind, attempt int) *RepairRecord {
	rr := &RepairRecord{Action: action, AttemptIndex: attempt, Simulated: m.Cfg.DryRun}
	if m.Cfg.DryRun || action == Noop {
		return rr
	}
	switch action {
	case RecoverDB:
		rr.Result = m.Prober.RecoverDB()
	case RebuildDB:
		rr.Result = m.Prober.RebuildDB()
	case CleanYumTx:
		rr.Result = m.Prober.CleanYumTransactions()
	}
	return rr
}

// captureForensics writes a command's verbatim output to disk when a
// forensics.Logger is configured, returning the path written (or "" if
// disabled or result is nil).
func (m *Machine) captureForensics(key string, result *procexec.CommandResult) (string, error) {
	if m.Forensics == nil || result == nil {
		return "", nil
	}
	return m.Forensics.Capture(key, result)
}

// killHolders returns nil, recording no KILL_HOLDERS step, when
// --kill-stuck is off. An inspector error (e.g. lsof unavailable) is not
// propagated: the step is recorded without a KillResult and the pass
// continues.
func (m *Machine) killHolders(attempt int) *RepairRecord {
	if !m.Cfg.KillStuck {
		return nil
	}
	rr := &RepairRecord{Action: KillHolders, AttemptIndex: attempt, Simulated: m.Cfg.DryRun}
	if m.Cfg.DryRun || m.Inspector == nil {
		return rr
	}
	result, err := m.Inspector.KillHolders(m.Cfg.DBPath, m.Cfg.KillSignal, m.Cfg.TimeoutLsof, m.Cfg.ReapTimeout)
	if err != nil {
		return rr
	}
	rr.KillResult = &result
	return rr
}
