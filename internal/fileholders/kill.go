package fileholders

import (
	"syscall"
	"time"
)

// KillResult reports which holders were successfully signaled and reaped,
// and which remained present after ReapTimeout.
type KillResult struct {
	Killed []int
	Failed []int
}

// KillHolders sends sig to every holder found under dir, then re-polls
// lsof until reapTimeout elapses; any PID still holding the file after
// that counts as failed. This backs RepairAction KILL_HOLDERS.
func (ins *Inspector) KillHolders(dir string, sig syscall.Signal, probeTimeout, reapTimeout time.Duration) (KillResult, error) {
	holders, err := ins.Holders(dir, probeTimeout)
	if err != nil {
		return KillResult{}, err
	}
	if len(holders) == 0 {
		return KillResult{}, nil
	}

	holders = ins.confirmHolders(holders, dir)
	if len(holders) == 0 {
		return KillResult{}, nil
	}

	for _, h := range holders {
		signalPID(h.PID, sig)
	}

	deadline := time.Now().Add(reapTimeout)
	remaining := map[int]bool{}
	for _, h := range holders {
		remaining[h.PID] = true
	}

	for time.Now().Before(deadline) && len(remaining) > 0 {
		time.Sleep(100 * time.Millisecond)
		still, err := ins.Holders(dir, probeTimeout)
		if err != nil {
			break
		}
		stillSet := map[int]bool{}
		for _, h := range still {
			stillSet[h.PID] = true
		}
		for pid := range remaining {
			if !stillSet[pid] {
				delete(remaining, pid)
			}
		}
	}

	result := KillResult{}
	for _, h := range holders {
		if remaining[h.PID] {
			result.Failed = append(result.Failed, h.PID)
		} else {
			result.Killed = append(result.Killed, h.PID)
		}
	}
	return result, nil
}

// confirmHolders drops any holder ConfirmHolder can positively rule out
// via gopsutil's own /proc view, a secondary cross-check against a single
// lsof snapshot possibly being stale (the process closed the file, or
// lsof raced a short-lived one). A holder ConfirmHolder errors on (e.g.
// permission denied reading /proc/<pid>/fd) is kept, since the error
// means "couldn't rule it out", not "not a holder".
func (ins *Inspector) confirmHolders(holders []Holder, dir string) []Holder {
	confirmed := make([]Holder, 0, len(holders))
	for _, h := range holders {
		ok, err := ConfirmHolder(h.PID, dir)
		if err != nil || ok {
			confirmed = append(confirmed, h)
		}
	}
	return confirmed
}

// signalPID best-effort signals a PID directly (not its process group,
// since holders enumerated by lsof are individual processes, not a group
// the supervisor itself spawned).
func signalPID(pid int, sig syscall.Signal) {
	syscall.Kill(pid, sig) //nolint:errcheck — caller re-polls via lsof to confirm
}
