package rpmprobe

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blackwell-systems/dcrpm/internal/fileholders"
)

// YumStuckResult reports the outcome of the stale-yum stuck-process check.
type YumStuckResult struct {
	// Stuck is true when a yum.pid was found, is old enough, and really
	// belongs to a yum process.
	Stuck bool
	PID   int
	// Killed is true when Stuck and the process was successfully signaled;
	// it stays false on a dry run.
	Killed bool
	Reason string
}

// CheckStuckYum carries yum.py's check_stuck: read the yum pidfile, skip
// if younger than YumStuckMaxAge, confirm the PID's command name is
// literally "yum" via gopsutil before killing it — this guards against
// killing an unrelated process that has been PID-reused onto a stale
// yum.pid.
func (p *Prober) CheckStuckYum(dryRun bool) YumStuckResult {
	pid, mtime, err := readPidfile(p.Cfg.YumPidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return YumStuckResult{Reason: "no yum pidfile"}
		}
		return YumStuckResult{Reason: "cannot read yum pidfile: " + err.Error()}
	}

	age := time.Since(mtime)
	if age < p.Cfg.YumStuckMaxAge {
		return YumStuckResult{Reason: "yum pidfile too young"}
	}

	name, err := fileholders.ProcessName(pid)
	if err != nil {
		return YumStuckResult{Reason: "failed to get command name for pid " + strconv.Itoa(pid)}
	}
	if name != "yum" {
		return YumStuckResult{Reason: "wrong command name [" + name + "], expecting yum"}
	}

	if dryRun {
		return YumStuckResult{Stuck: true, PID: pid, Reason: "dry-run: would have killed pid"}
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return YumStuckResult{Stuck: true, PID: pid, Reason: "kill failed: " + err.Error()}
	}
	return YumStuckResult{Stuck: true, PID: pid, Killed: true, Reason: "killed stuck yum pid"}
}

func readPidfile(path string) (pid int, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, time.Time{}, err
	}
	return pid, info.ModTime(), nil
}
