package rpmprobe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/blackwell-systems/dcrpm/internal/config"
	"github.com/blackwell-systems/dcrpm/internal/procexec"
)

// Prober runs the RPM database probes (C3), classifying each CommandResult
// into an RpmSymptom via its Classifier.
type Prober struct {
	Cfg        *config.Config
	Supervisor *procexec.Supervisor
	Classifier *Classifier

	// Ctx carries the run's overall deadline (spec.md §5), set once by
	// remediate.Machine.Run at the top of a run. A nil Ctx runs every
	// probe without a deadline.
	Ctx context.Context
}

func New(cfg *config.Config, sup *procexec.Supervisor, classifier *Classifier) *Prober {
	return &Prober{Cfg: cfg, Supervisor: sup, Classifier: classifier}
}

// ctx returns p.Ctx, defaulting to context.Background() so every call
// site can pass it to Supervisor.Run unconditionally.
func (p *Prober) ctx() context.Context {
	if p.Ctx != nil {
		return p.Ctx
	}
	return context.Background()
}

// Query runs `rpm -qa --dbpath=<dbPath>`, the black-box "does rpm even
// work" check ported from rpmutil.py's check_rpm_qa. Classification:
// timeout → QUERY_HUNG; zero packages → QUERY_EMPTY; fewer than
// MinPackages → QUERY_SHORT; known stderr signature → DB_NEEDS_RECOVER /
// TABLE_CORRUPT; otherwise HEALTHY.
func (p *Prober) Query() Symptom {
	argv := []string{p.Cfg.RPMBin, "--dbpath", p.Cfg.DBPath, "-qa"}
	res := p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutQuery, nil)

	if res.TimedOut() {
		return Symptom{Kind: QueryHung, Result: res, ClassificationSource: "timeout"}
	}

	if !res.Success() {
		kind, source := p.Classifier.ClassifyStderr("rpm", string(res.Stderr))
		if kind != Unknown {
			return Symptom{Kind: kind, Result: res, ClassificationSource: source}
		}
		return Symptom{Kind: Unknown, Raw: string(res.Stderr), Result: res, ClassificationSource: "unclassified"}
	}

	// rpm can keep iterating and exit 0 while still printing a damaged
	// header entry to stdout, so a stdout-pattern rule is checked before
	// falling back to the package-count heuristics below.
	if kind, source := p.Classifier.ClassifyStdout("rpm", string(res.Stdout)); kind != Unknown {
		return Symptom{Kind: kind, Result: res, ClassificationSource: source}
	}

	lines := nonBlankLines(string(res.Stdout))
	if len(lines) == 0 {
		return Symptom{Kind: QueryEmpty, Expected: 1, Got: 0, Result: res, ClassificationSource: "exit-code"}
	}
	if len(lines) < p.Cfg.MinPackages {
		return Symptom{Kind: QueryShort, Expected: p.Cfg.MinPackages, Got: len(lines), Result: res, ClassificationSource: "exit-code"}
	}
	return Symptom{Kind: Healthy, Result: res, ClassificationSource: "exit-code"}
}

// QueryPackage runs `rpm -q <name> --dbpath=<dbPath>`, used by
// IndexConsistency to cross-check the primary index against per-package
// lookups (rpmutil.py's query()).
func (p *Prober) QueryPackage(name string) *procexec.CommandResult {
	argv := []string{p.Cfg.RPMBin, "--dbpath", p.Cfg.DBPath, "-q", name}
	return p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutQuery, nil)
}

// Tables enumerates dbPath entries whose basename starts with an
// uppercase letter — rpmutil.py's `istitle()` filter, the db4 table set
// (Packages, Name, Providename, ...) — skipping any in the blacklist, and
// runs db_verify on each. The first non-zero exit wins as TABLE_CORRUPT.
// A missing Packages file is reported as TABLE_MISSING.
func (p *Prober) Tables() Symptom {
	tables, err := p.listTables()
	if err != nil {
		return Symptom{Kind: Unknown, Raw: err.Error(), ClassificationSource: "unclassified"}
	}

	sawPackages := false
	for _, t := range tables {
		base := filepath.Base(t)
		if base == "Packages" {
			sawPackages = true
		}
		if blacklisted(base, p.Cfg.VerifyTableBlacklist) {
			continue
		}
		argv := []string{p.Cfg.VerifyBin, t}
		res := p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutVerify, nil)
		if !res.Success() {
			kind, source := p.Classifier.ClassifyStderr("db_verify", string(res.Stderr))
			if kind == Unknown {
				kind = TableCorrupt
				source = "exit-code"
			}
			return Symptom{Kind: kind, Table: base, Detail: string(res.Stderr), Result: res, ClassificationSource: source}
		}
		if kind, source := p.Classifier.ClassifyStdout("db_verify", string(res.Stdout)); kind != Unknown {
			return Symptom{Kind: kind, Table: base, Detail: string(res.Stdout), Result: res, ClassificationSource: source}
		}
	}

	if !sawPackages {
		return Symptom{Kind: TableMissing, Table: "Packages", ClassificationSource: "directory-listing"}
	}
	return Symptom{Kind: Healthy, ClassificationSource: "exit-code"}
}

func (p *Prober) listTables() ([]string, error) {
	entries, err := os.ReadDir(p.Cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("listing dbpath %s: %w", p.Cfg.DBPath, err)
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" {
			continue
		}
		if unicode.IsUpper(rune(name[0])) {
			tables = append(tables, filepath.Join(p.Cfg.DBPath, name))
		}
	}
	return tables, nil
}

func blacklisted(name string, list []string) bool {
	for _, b := range list {
		if b == name {
			return true
		}
	}
	return false
}

// IndexConsistency reproduces check_tables's
// `rpm -qa --qf '%{NAME}\n' | sort | uniq | xargs rpm -q | grep 'is not installed$'`
// pipeline natively: list unique package names with its own
// `rpm -qa --qf '%{NAME}\n'` call, then run
// `rpm -q <name>` per name, flagging INDEX_INCONSISTENT on the first
// "is not installed" result rather than shelling out to sort/uniq/grep.
func (p *Prober) IndexConsistency() Symptom {
	names, err := p.uniquePackageNames()
	if err != nil {
		return Symptom{Kind: Unknown, Raw: err.Error(), ClassificationSource: "unclassified"}
	}

	for _, name := range names {
		res := p.QueryPackage(name)
		if strings.Contains(string(res.Stdout), "is not installed") {
			return Symptom{Kind: IndexInconsistent, Detail: name, Result: res, ClassificationSource: "exit-code"}
		}
	}
	return Symptom{Kind: Healthy, ClassificationSource: "exit-code"}
}

func (p *Prober) uniquePackageNames() ([]string, error) {
	argv := []string{p.Cfg.RPMBin, "--dbpath", p.Cfg.DBPath, "-qa", "--qf", "%{NAME}\n"}
	res := p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutQuery, nil)
	if !res.Success() {
		return nil, fmt.Errorf("rpm -qa --qf failed: %s", res.Stderr)
	}

	seen := map[string]bool{}
	var names []string
	for _, line := range nonBlankLines(string(res.Stdout)) {
		if !seen[line] {
			seen[line] = true
			names = append(names, line)
		}
	}
	return names, nil
}

// YumTransactions counts files matching `transaction-*` (which includes
// `transaction-all.*`) under ysPath, matching
// DcRPM.stale_yum_transactions_exist.
func (p *Prober) YumTransactions() Symptom {
	entries, err := os.ReadDir(p.Cfg.YumStateDir)
	if err != nil {
		return Symptom{Kind: Unknown, Raw: err.Error(), ClassificationSource: "unclassified"}
	}
	count := 0
	for _, e := range entries {
		matched, _ := filepath.Match("transaction-all.*", e.Name())
		if !matched {
			matched, _ = filepath.Match("transaction-*", e.Name())
		}
		if matched {
			count++
		}
	}
	if count > 0 {
		return Symptom{Kind: StaleYumTransaction, Count: count, ClassificationSource: "directory-listing"}
	}
	return Symptom{Kind: Healthy, ClassificationSource: "directory-listing"}
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}
