// Package report is the Status Reporter (C5): it turns a RunTranscript
// into the final exit classification and machine-readable summary spec.md
// §4.5 calls for, and the text/table rendering SPEC_FULL.md §4.5 adds on
// top, mirroring the teacher's isatty-gated table/plain split in
// internal/output.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/dcrpm/internal/remediate"
)

// ExitCode maps a RunStatus to the process exit code spec.md §6 defines.
// CONFIG_ERROR (64) is returned by the caller directly when Run() itself
// errors with a dcrpmerr.ConfigError, not from this mapping.
func ExitCode(status remediate.RunStatus) int {
	switch status {
	case remediate.StatusOK, remediate.StatusRemediated:
		return 0
	case remediate.StatusPartial:
		return 1
	default:
		return 2
	}
}

// Summary is the JSON-serializable final record for --json-summary.
type Summary struct {
	RunID     string   `json:"run_id"`
	Status    string   `json:"status"`
	Passes    int      `json:"passes"`
	Actions   []string `json:"actions"`
	ElapsedMS int64    `json:"elapsed_ms"`
	Notes     []string `json:"notes,omitempty"`
	ExitCode  int      `json:"exit_code"`
}

// BuildSummary flattens a RunTranscript into its JSON-ready form.
func BuildSummary(t *remediate.RunTranscript) Summary {
	actions := make([]string, 0, len(t.Actions()))
	for _, a := range t.Actions() {
		actions = append(actions, a.String())
	}
	return Summary{
		RunID:     t.RunID,
		Status:    t.Status.String(),
		Passes:    len(t.Passes),
		Actions:   actions,
		ElapsedMS: t.Elapsed.Milliseconds(),
		Notes:     t.Notes,
		ExitCode:  ExitCode(t.Status),
	}
}

// JSON renders the summary as indented JSON for --json-summary, matching
// the teacher's preference for human-legible JSON output over compact form
// (snapshots.Create's json.MarshalIndent(..., "", "  ")).
func (s Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// OneLine renders the single-line summary spec.md §4.5 requires, e.g.
// "status=REMEDIATED passes=2 actions=[KILL_HOLDERS,RECOVER_DB] elapsed=1.2s".
func OneLine(t *remediate.RunTranscript) string {
	actions := t.Actions()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.String())
	}
	return fmt.Sprintf("status=%s passes=%d actions=[%s] elapsed=%s",
		t.Status, len(t.Passes), strings.Join(names, ","), t.Elapsed.Round(10*time.Millisecond))
}
