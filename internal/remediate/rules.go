package remediate

import "github.com/blackwell-systems/dcrpm/internal/rpmprobe"

// repairFor implements spec.md §4.4's repair-selection priority table as a
// switch over the symptom kind, one case per table row; the table is not
// held as a data structure. triedRecover
// tracks whether QUERY_EMPTY/QUERY_SHORT has already escalated through
// RECOVER_DB this run, since that row reads "RECOVER_DB first, if still
// bad REBUILD_DB" — an escalation that spans passes, not a single choice.
//
// killBefore/killAfter are independent of the per-row table text: any
// action that resolves to REBUILD_DB always forces killBefore=true (the
// hard ordering invariant "REBUILD_DB is never invoked while holders
// exist") and killAfter=true ("between REBUILD_DB and the next probe the
// machine always kills holders again").
func repairFor(kind rpmprobe.SymptomKind, triedRecover bool) (action RepairActionKind, killBefore, killAfter bool) {
	switch kind {
	case rpmprobe.QueryHung:
		return RecoverDB, true, false
	case rpmprobe.DBNeedsRecover:
		return RecoverDB, false, true
	case rpmprobe.TableCorrupt, rpmprobe.TableMissing:
		return RebuildDB, true, true
	case rpmprobe.IndexInconsistent:
		return RebuildDB, true, true
	case rpmprobe.StaleYumTransaction:
		return CleanYumTx, false, false
	case rpmprobe.QueryEmpty, rpmprobe.QueryShort:
		if !triedRecover {
			return RecoverDB, false, false
		}
		return RebuildDB, true, true
	default:
		return Noop, false, false
	}
}
