package rpmprobe

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blackwell-systems/dcrpm/internal/config"
)

// classifyCacheSize bounds the memo of (binary, stderr) pairs already
// classified this run. A run's pre-repair and post-repair probes often
// see the identical unhealthy output across several passes, so this
// avoids re-scanning the rule table each time.
const classifyCacheSize = 64

type classifyResult struct {
	kind   SymptomKind
	source string
}

// BuiltinRules is the built-in (binary, pattern) → symptom table, seeded
// from the stderr signatures spec.md §4.3 and §9 call out by name. A
// --signatures YAML overlay (internal/config) is merged ahead of this
// table at startup — see Classifier.Rules.
var BuiltinRules = []ClassificationRule{
	{
		Name:          "rpm-cannot-open-packages-index",
		Binary:        "rpm",
		StderrPattern: "cannot open Packages index",
		Symptom:       DBNeedsRecover,
	},
	{
		Name:          "rpm-bdb-error3",
		Binary:        "rpm",
		StderrPattern: "error(3)",
		Symptom:       DBNeedsRecover,
	},
	{
		Name:          "bdb0091-panic",
		Binary:        "rpm",
		StderrPattern: "BDB0091",
		Symptom:       DBNeedsRecover,
	},
	{
		Name:          "db-verify-bad",
		Binary:        "db_verify",
		StderrPattern: "DB_VERIFY_BAD",
		Symptom:       TableCorrupt,
	},
	{
		Name:          "rpmdb-damaged",
		Binary:        "rpm",
		StderrPattern: "rpmdbNextIterator: skipping h#",
		Symptom:       TableCorrupt,
	},
	{
		Name:          "rpm-db-lock-busy",
		Binary:        "rpm",
		StderrPattern: "cannot get exclusive lock",
		Symptom:       LockContention,
	},
	{
		Name:          "yum-existing-lock",
		Binary:        "yum",
		StderrPattern: "Existing lock",
		Symptom:       LockContention,
	},
}

// Classifier evaluates CommandResult output against a rule table, falling
// back to UNKNOWN when nothing matches. The rule slice is data, per
// spec.md §9's Design Note, so new signatures merge in without touching
// probe logic.
type Classifier struct {
	Rules []ClassificationRule

	cache *lru.Cache[string, classifyResult]
}

// NewClassifier builds a Classifier from the built-in table with overlay
// rules (if any) merged ahead of it, so overlay entries take priority.
func NewClassifier(overlay []ClassificationRule) *Classifier {
	rules := make([]ClassificationRule, 0, len(overlay)+len(BuiltinRules))
	rules = append(rules, overlay...)
	rules = append(rules, BuiltinRules...)
	cache, _ := lru.New[string, classifyResult](classifyCacheSize)
	return &Classifier{Rules: rules, cache: cache}
}

// ClassifyStderr finds the first rule matching binary+stderr content,
// returning its symptom kind and name, or (Unknown, "unclassified") if
// nothing matches.
func (c *Classifier) ClassifyStderr(binary, stderr string) (SymptomKind, string) {
	key := binary + "\x00" + stderr
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached.kind, cached.source
		}
	}

	kind, source := Unknown, "unclassified"
	for _, r := range c.Rules {
		if r.Binary != "" && !strings.Contains(binary, r.Binary) {
			continue
		}
		if r.StderrPattern != "" && !strings.Contains(stderr, r.StderrPattern) {
			continue
		}
		if r.StdoutPattern != "" {
			continue // this rule needs stdout matching; handled by ClassifyStdout
		}
		kind, source = r.Symptom, r.Name
		break
	}

	if c.cache != nil {
		c.cache.Add(key, classifyResult{kind: kind, source: source})
	}
	return kind, source
}

// ClassifyStdout finds the first rule carrying a StdoutPattern matching
// binary+stdout content, returning its symptom kind and name, or
// (Unknown, "unclassified") if nothing matches. Some corruption leaves
// its trace on stdout with a zero exit code (rpm keeps iterating and
// printing "rpmdbNextIterator: skipping h#" rather than failing), so this
// runs independently of ClassifyStderr rather than as a fallback from it.
func (c *Classifier) ClassifyStdout(binary, stdout string) (SymptomKind, string) {
	key := "stdout\x00" + binary + "\x00" + stdout
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached.kind, cached.source
		}
	}

	kind, source := Unknown, "unclassified"
	for _, r := range c.Rules {
		if r.StdoutPattern == "" {
			continue
		}
		if r.Binary != "" && !strings.Contains(binary, r.Binary) {
			continue
		}
		if !strings.Contains(stdout, r.StdoutPattern) {
			continue
		}
		kind, source = r.Symptom, r.Name
		break
	}

	if c.cache != nil {
		c.cache.Add(key, classifyResult{kind: kind, source: source})
	}
	return kind, source
}

// ParseSymptomKind maps a --signatures YAML rule's symptom string to its
// SymptomKind, matching the names SymptomKind.String() produces so a
// signatures file round-trips through --explain output.
func ParseSymptomKind(s string) (SymptomKind, error) {
	switch s {
	case "HEALTHY":
		return Healthy, nil
	case "QUERY_HUNG":
		return QueryHung, nil
	case "QUERY_EMPTY":
		return QueryEmpty, nil
	case "QUERY_SHORT":
		return QueryShort, nil
	case "TABLE_CORRUPT":
		return TableCorrupt, nil
	case "TABLE_MISSING":
		return TableMissing, nil
	case "INDEX_INCONSISTENT":
		return IndexInconsistent, nil
	case "STALE_YUM_TRANSACTION":
		return StaleYumTransaction, nil
	case "DB_NEEDS_RECOVER":
		return DBNeedsRecover, nil
	case "LOCK_CONTENTION":
		return LockContention, nil
	default:
		return Unknown, fmt.Errorf("unrecognized symptom %q", s)
	}
}

// RulesFromOverlay converts a --signatures YAML overlay (internal/config)
// into the ClassificationRule table NewClassifier expects.
func RulesFromOverlay(overlay *config.SignatureOverlay) ([]ClassificationRule, error) {
	if overlay == nil {
		return nil, nil
	}
	rules := make([]ClassificationRule, 0, len(overlay.Rules))
	for _, r := range overlay.Rules {
		kind, err := ParseSymptomKind(r.Symptom)
		if err != nil {
			return nil, fmt.Errorf("signature rule for %s: %w", r.Binary, err)
		}
		rules = append(rules, ClassificationRule{
			Name:          fmt.Sprintf("overlay:%s", r.Binary),
			Binary:        r.Binary,
			StdoutPattern: r.StdoutPattern,
			StderrPattern: r.StderrPattern,
			Symptom:       kind,
		})
	}
	return rules, nil
}
