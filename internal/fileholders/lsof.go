package fileholders

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/dcrpm/internal/procexec"
)

// Inspector finds and signals processes holding open files under the
// watched RPM database paths, using lsof's machine-readable field mode
// rather than scraping its human-oriented default output.
type Inspector struct {
	Supervisor *procexec.Supervisor
	LsofBin    string
	// SelfPID and Ignore exclude this process and any explicitly
	// whitelisted PIDs from being reported as holders.
	SelfPID int
	Ignore  map[int]bool

	// Ctx carries the run's overall deadline (spec.md §5), set once by
	// remediate.Machine.Run at the top of a run. A nil Ctx runs every
	// lsof/kill call without a deadline.
	Ctx context.Context
}

// ctx returns ins.Ctx, defaulting to context.Background() so every call
// site can pass it to Supervisor.Run unconditionally.
func (ins *Inspector) ctx() context.Context {
	if ins.Ctx != nil {
		return ins.Ctx
	}
	return context.Background()
}

// NewInspector returns an Inspector using the given supervisor and lsof
// binary, ignoring the calling process by default.
func NewInspector(sup *procexec.Supervisor, lsofBin string) *Inspector {
	return &Inspector{
		Supervisor: sup,
		LsofBin:    lsofBin,
		SelfPID:    currentPID(),
		Ignore:     map[int]bool{},
	}
}

// Holders returns the set of live processes holding an open file handle
// under dir, via `lsof -F pcn +D <dir>`.
func (ins *Inspector) Holders(dir string, timeout time.Duration) ([]Holder, error) {
	if ins.LsofBin == "" {
		return nil, ErrInspectorUnavailable
	}

	result := ins.Supervisor.Run(ins.ctx(), []string{ins.LsofBin, "-F", "pcn", "+D", dir}, nil, timeout, nil)
	if result.ExitClass == procexec.ExitSpawnFailed || result.ExitClass == procexec.ExitTimedOut {
		return nil, fmt.Errorf("%w: %s", ErrInspectorUnavailable, result.SpawnError)
	}

	// lsof exits non-zero when nothing is found, which is a normal,
	// empty result — not an inspector failure (spec.md §6).
	holders := parseLsofFieldOutput(string(result.Stdout))
	return ins.filterSelf(holders), nil
}

// filterSelf drops holders matching the inspector's own PID or an
// explicitly ignored PID.
func (ins *Inspector) filterSelf(holders []Holder) []Holder {
	filtered := make([]Holder, 0, len(holders))
	for _, h := range holders {
		if h.PID == ins.SelfPID || ins.Ignore[h.PID] {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered
}

// parseLsofFieldOutput parses `lsof -F pcn` output into a deduplicated
// slice of Holders. The format is line-oriented: a field identifier
// character followed by its value, with a new record beginning at each
// 'p' (pid) line. 'c' gives the command name; 'n' (file name) lines are
// informational only and not required to identify a holder.
func parseLsofFieldOutput(output string) []Holder {
	var holders []Holder
	seen := map[int]bool{}

	var currentPID int
	var currentComm string
	haveCurrent := false

	flush := func() {
		if haveCurrent && !seen[currentPID] {
			seen[currentPID] = true
			holders = append(holders, Holder{PID: currentPID, Comm: currentComm})
		}
	}

	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		field, value := line[0], line[1:]
		switch field {
		case 'p':
			flush()
			pid, err := strconv.Atoi(value)
			if err != nil {
				haveCurrent = false
				continue
			}
			currentPID = pid
			currentComm = ""
			haveCurrent = true
		case 'c':
			currentComm = value
		}
	}
	flush()

	return holders
}

func currentPID() int {
	return os.Getpid()
}
