package fileholders

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ConfirmHolder cross-checks an lsof-reported holder against gopsutil's
// own /proc (or platform-equivalent) view, mirroring the original dcrpm's
// psutil-based pidutil.procs_holding_file. Used as a secondary signal
// when a single lsof read is ambiguous (e.g. a process that opened and
// closed the file between the lsof snapshot and the kill attempt). dir
// may be a single file or a directory tree; a holder is confirmed if any
// of its open files falls under dir.
func ConfirmHolder(pid int, dir string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		// Process is already gone — not a holder.
		return false, nil
	}

	openFiles, err := proc.OpenFilesWithContext(ctx)
	if err != nil {
		return false, err
	}

	for _, f := range openFiles {
		if f.Path == dir || strings.HasPrefix(f.Path, dir+"/") {
			return true, nil
		}
	}
	return false, nil
}

// ProcessName returns the command name gopsutil associates with pid,
// used by the stale-yum check (§4.4.1) to confirm /var/run/yum.pid still
// refers to an actual `yum` process before it is killed — guarding
// against a PID that has since been reused by an unrelated process.
func ProcessName(pid int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	return proc.NameWithContext(ctx)
}
