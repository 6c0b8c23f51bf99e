// Package forensics writes the captured stdout/stderr of a failed or
// suspicious external command to disk (SPEC_FULL.md §9.5), the Go
// counterpart of dcrpm's original ForensicLogger: one timestamped file per
// capture under logdir, named after a caller-supplied key (the state
// machine passes the symptom kind or the repair action), rather than a log
// handler key'd off a logging record. The output written is what the
// supervisor captured, so it carries the supervisor's per-stream cap.
package forensics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/dcrpm/internal/procexec"
)

// Logger writes verbatim command transcripts under Dir for offline
// inspection after a run, gated by Enabled so --explain-less runs don't
// litter the filesystem.
type Logger struct {
	Dir     string
	Enabled bool
}

func New(dir string, enabled bool) *Logger {
	return &Logger{Dir: dir, Enabled: enabled}
}

// Capture writes key's CommandResult (argv, exit status, stdout, stderr) to
// <Dir>/<key>.<timestamp>.txt and returns the path written, or "" if
// capture is disabled or result is nil.
func (l *Logger) Capture(key string, result *procexec.CommandResult) (string, error) {
	if !l.Enabled || result == nil {
		return "", nil
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("forensics: create logdir %s: %w", l.Dir, err)
	}

	name := fmt.Sprintf("%s.%s.txt", key, time.Now().Format("20060102150405.000000000"))
	path := filepath.Join(l.Dir, name)

	var body []byte
	body = append(body, fmt.Appendf(nil, "argv: %v\n", result.Argv)...)
	body = append(body, fmt.Appendf(nil, "exit_class: %d exit_code: %d elapsed: %s\n",
		result.ExitClass, result.ExitCode, result.Elapsed)...)
	body = append(body, []byte("--- stdout ---\n")...)
	body = append(body, result.Stdout...)
	body = append(body, []byte("\n--- stderr ---\n")...)
	body = append(body, result.Stderr...)

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("forensics: write %s: %w", path, err)
	}
	return path, nil
}
