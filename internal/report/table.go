package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/dcrpm/internal/remediate"
)

// ANSI color codes for status display, matching the teacher's tier-color
// palette (internal/output.colorGreen/colorYellow/colorRed).
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// IsColorEnabled reports whether ANSI color codes should be emitted,
// mirroring the teacher's output.IsColorEnabled TTY/NO_COLOR gate.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func statusColor(s remediate.RunStatus) string {
	switch s {
	case remediate.StatusOK, remediate.StatusRemediated:
		return colorGreen
	case remediate.StatusPartial:
		return colorYellow
	default:
		return colorRed
	}
}

// Render produces the human-facing transcript: a boxed pass-by-pass table
// when stdout is a TTY, and OneLine's plain fallback otherwise — the same
// split the teacher draws between its table renderers and scripted output.
func Render(t *remediate.RunTranscript) string {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return RenderTable(t)
	}
	return OneLine(t) + "\n"
}

// RenderTable renders the full pass-by-pass transcript as a fixed-width
// table, one row per probe-repair iteration, following the teacher's
// header-plus-separator-plus-rows table shape (output.RenderPackageTable).
func RenderTable(t *remediate.RunTranscript) string {
	var sb strings.Builder

	statusLabel := t.Status.String()
	if IsColorEnabled() {
		statusLabel = statusColor(t.Status) + statusLabel + colorReset
	}
	sb.WriteString(fmt.Sprintf("Run %s: %s (%d pass(es), %s)\n",
		t.RunID, statusLabel, len(t.Passes), t.Elapsed.Round(10_000_000)))

	if len(t.Passes) == 0 {
		sb.WriteString("No passes recorded.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%-5s %-22s %-16s %-10s %s\n",
		"Pass", "Symptom", "Repair", "Holders", "Outcome"))
	sb.WriteString(strings.Repeat("─", 70))
	sb.WriteString("\n")

	for _, p := range t.Passes {
		symptom := p.SymptomObserved.Kind.String()
		if p.SymptomObserved.Table != "" {
			symptom = fmt.Sprintf("%s(%s)", symptom, p.SymptomObserved.Table)
		}

		repair := "NOOP"
		outcome := "—"
		if p.RepairApplied != nil {
			repair = p.RepairApplied.Action.String()
			if p.RepairApplied.Simulated {
				outcome = "simulated"
			} else if repairSucceeded(p.RepairApplied) {
				outcome = "ok"
			} else {
				outcome = "failed"
			}
		}

		holders := "—"
		switch {
		case p.PreKillHolders != nil && p.PostKillHolders != nil:
			holders = "pre+post"
		case p.PreKillHolders != nil:
			holders = "pre"
		case p.PostKillHolders != nil:
			holders = "post"
		}

		sb.WriteString(fmt.Sprintf("%-5d %-22s %-16s %-10s %s\n",
			p.Index, truncate(symptom, 22), repair, holders, outcome))
	}

	if len(t.Notes) > 0 {
		sb.WriteString("\nNotes:\n")
		for _, n := range t.Notes {
			sb.WriteString("  - " + n + "\n")
		}
	}

	return sb.String()
}

// Explain renders the classification provenance of the symptom observed on
// each pass — which built-in or --signatures rule fired, or the raw command
// output when nothing matched — for the --explain flag SPEC_FULL.md §6 adds.
func Explain(t *remediate.RunTranscript) string {
	var sb strings.Builder
	for _, p := range t.Passes {
		s := p.SymptomObserved
		sb.WriteString(fmt.Sprintf("pass %d: %s\n", p.Index, s.Kind))
		if s.ClassificationSource != "" {
			sb.WriteString(fmt.Sprintf("  matched rule: %s\n", s.ClassificationSource))
		}
		if s.Detail != "" {
			sb.WriteString(fmt.Sprintf("  detail: %s\n", s.Detail))
		}
		if s.Raw != "" {
			sb.WriteString("  raw:\n")
			for _, line := range strings.Split(strings.TrimRight(s.Raw, "\n"), "\n") {
				sb.WriteString("    " + line + "\n")
			}
		}
	}
	return sb.String()
}

// repairSucceeded re-derives a RepairRecord's outcome from its exported
// fields, mirroring the unexported succeeded() the state machine uses
// internally for its own pass/fail bookkeeping.
func repairSucceeded(r *remediate.RepairRecord) bool {
	if r == nil {
		return true
	}
	if r.Action == remediate.KillHolders {
		return r.KillResult == nil || len(r.KillResult.Failed) == 0
	}
	return r.Result != nil && r.Result.Success()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
