// Package rpmprobe is the RPM Probe (C3): typed wrappers over rpm,
// db_recover, db_verify, rpm --rebuilddb, and yum-complete-transaction,
// each returning a classified RpmSymptom alongside the raw CommandResult
// that produced it.
package rpmprobe

import "github.com/blackwell-systems/dcrpm/internal/procexec"

// SymptomKind tags the variant of RpmSymptom carried by a Symptom value.
type SymptomKind int

const (
	Healthy SymptomKind = iota
	QueryHung
	QueryEmpty
	QueryShort
	TableCorrupt
	TableMissing
	IndexInconsistent
	StaleYumTransaction
	DBNeedsRecover
	LockContention
	Unknown
)

func (k SymptomKind) String() string {
	switch k {
	case Healthy:
		return "HEALTHY"
	case QueryHung:
		return "QUERY_HUNG"
	case QueryEmpty:
		return "QUERY_EMPTY"
	case QueryShort:
		return "QUERY_SHORT"
	case TableCorrupt:
		return "TABLE_CORRUPT"
	case TableMissing:
		return "TABLE_MISSING"
	case IndexInconsistent:
		return "INDEX_INCONSISTENT"
	case StaleYumTransaction:
		return "STALE_YUM_TRANSACTION"
	case DBNeedsRecover:
		return "DB_NEEDS_RECOVER"
	case LockContention:
		return "LOCK_CONTENTION"
	case Unknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// Symptom is the tagged-variant result of a probe, carrying whichever
// payload fields are relevant to its Kind; fields not relevant to a given
// Kind are left zero.
type Symptom struct {
	Kind SymptomKind

	// QUERY_EMPTY / QUERY_SHORT
	Expected int
	Got      int

	// TABLE_CORRUPT / TABLE_MISSING
	Table  string
	Detail string

	// STALE_YUM_TRANSACTION
	Count int

	// UNKNOWN
	Raw string

	// ClassificationSource names the (binary, pattern) rule — or
	// "exit-code" / "unclassified" — that produced this symptom, so
	// --explain can report it (SPEC_FULL.md §3).
	ClassificationSource string

	// Result is the CommandResult that produced this symptom, or nil for
	// symptoms derived without running an external command (e.g. a
	// directory-listing-only probe).
	Result *procexec.CommandResult
}

func (s Symptom) IsHealthy() bool {
	return s.Kind == Healthy
}

// ClassificationRule is one entry in the data-driven (binary, pattern) →
// symptom table described in spec.md §9's Design Note: "Consolidate
// [stderr matching] into a table... so new signatures can be added
// without touching the state machine."
type ClassificationRule struct {
	Name          string
	Binary        string
	StdoutPattern string
	StderrPattern string
	ExitCodes     []int // not consulted by Classifier; matching uses Binary and the patterns only
	Symptom       SymptomKind
}
