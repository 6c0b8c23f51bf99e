package runhistory

import (
	"fmt"
	"strings"
	"time"
)

// RunRecord is the flattened, storage-friendly shape of a
// remediate.RunTranscript — runhistory stays independent of the
// remediation state machine's types so the two packages don't couple.
type RunRecord struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Status    string
	Actions   []string
	Passes    int
	Notes     string
}

// Record inserts one row per run, matching SPEC_FULL.md §9.3's
// (run_id, started_at, final status, actions taken, duration) shape.
func (s *Store) Record(r RunRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_at, duration_ms, status, actions, passes, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Duration.Milliseconds(),
		r.Status,
		strings.Join(r.Actions, ","),
		r.Passes,
		r.Notes,
	)
	if err != nil {
		return fmt.Errorf("runhistory: record run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns the most recent n runs, newest first, for --explain-style
// trend inspection across scheduled invocations.
func (s *Store) Recent(n int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, started_at, duration_ms, status, actions, passes, notes
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("runhistory: query recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			startedAt  string
			durationMS int64
			actions    string
		)
		if err := rows.Scan(&r.RunID, &startedAt, &durationMS, &r.Status, &actions, &r.Passes, &r.Notes); err != nil {
			return nil, fmt.Errorf("runhistory: scan run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if actions != "" {
			r.Actions = strings.Split(actions, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
