package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/dcrpm/internal/config"
	"github.com/blackwell-systems/dcrpm/internal/dcrpmerr"
	"github.com/blackwell-systems/dcrpm/internal/fileholders"
	"github.com/blackwell-systems/dcrpm/internal/forensics"
	"github.com/blackwell-systems/dcrpm/internal/procexec"
	"github.com/blackwell-systems/dcrpm/internal/remediate"
	"github.com/blackwell-systems/dcrpm/internal/report"
	"github.com/blackwell-systems/dcrpm/internal/rpmprobe"
	"github.com/blackwell-systems/dcrpm/internal/runhistory"
	"github.com/blackwell-systems/dcrpm/internal/snapshot"
	"github.com/blackwell-systems/dcrpm/internal/watchfs"
)

var cfg = config.Default()

// RootCmd is the root command for dcrpm: a one-shot repair tool, not a
// multi-verb CLI. The root command itself runs the probe-and-repair
// loop; doctor and version are the only subcommands.
var RootCmd = &cobra.Command{
	Use:   "dcrpm",
	Short: "Detect and repair corrupted RPM/db4 package databases",
	Long: `dcrpm probes an RPM database for corruption signatures (hung queries,
damaged db4 tables, stale yum transactions) and applies the matching
db_recover/rpm --rebuilddb/yum-complete-transaction repair, bracketed by
killing any process holding the database files open.

It is meant to run unattended from cron or a config-management agent
against a quiet database; use --dry-run to see what it would do first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRepair,
}

func init() {
	flags := RootCmd.Flags()

	flags.StringVar(&cfg.DBPath, "dbpath", config.DefaultDBPath, "path to the RPM database")
	flags.StringVar(&cfg.YumStateDir, "yum-statedir", config.DefaultYumStateDir, "path to yum's state directory")

	flags.StringVar(&cfg.RPMBin, "rpm", cfg.RPMBin, "path to the rpm binary")
	flags.StringVar(&cfg.RecoverBin, "db-recover", cfg.RecoverBin, "path to the db_recover binary")
	flags.StringVar(&cfg.VerifyBin, "db-verify", cfg.VerifyBin, "path to the db_verify binary")
	flags.StringVar(&cfg.YumBin, "yum", cfg.YumBin, "path to yum-complete-transaction")
	flags.StringVar(&cfg.LsofBin, "lsof", cfg.LsofBin, "path to the lsof binary")

	flags.DurationVar(&cfg.TimeoutQuery, "timeout-query", cfg.TimeoutQuery, "timeout for rpm -qa")
	flags.DurationVar(&cfg.TimeoutRecover, "timeout-recover", cfg.TimeoutRecover, "timeout for db_recover")
	flags.DurationVar(&cfg.TimeoutRebuild, "timeout-rebuild", cfg.TimeoutRebuild, "timeout for rpm --rebuilddb")
	flags.DurationVar(&cfg.TimeoutVerify, "timeout-verify", cfg.TimeoutVerify, "timeout for db_verify per table")
	flags.DurationVar(&cfg.TimeoutYum, "timeout-yum", cfg.TimeoutYum, "timeout for yum-complete-transaction")
	flags.DurationVar(&cfg.TimeoutOverall, "timeout-overall", cfg.TimeoutOverall, "deadline for the entire run")

	flags.IntVar(&cfg.MaxPasses, "max-passes", cfg.MaxPasses, "maximum probe-repair passes per run")
	flags.IntVar(&cfg.MinPackages, "min-packages", cfg.MinPackages, "minimum package count for a healthy query")

	flags.BoolVar(&cfg.CheckTables, "check-tables", cfg.CheckTables, "run db_verify across db4 tables")
	flags.BoolVar(&cfg.RebuildEnabled, "rebuild", cfg.RebuildEnabled, "allow REBUILD_DB as a repair action")
	flags.BoolVar(&cfg.KillStuck, "kill-stuck", cfg.KillStuck, "kill processes holding the database open before repairing")
	flags.BoolVar(&cfg.KillStuckYum, "kill-stuck-yum", cfg.KillStuckYum, "kill a yum process stuck holding yum.pid past its max age")
	flags.BoolVar(&cfg.CleanupYumTx, "yum-transactions", cfg.CleanupYumTx, "clean up stale yum transaction journals")

	flags.BoolVar(&cfg.DryRun, "dry-run", false, "classify and log repairs without applying them")
	flags.StringVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log verbosity: quiet, info, or debug")
	flags.StringVar(&cfg.JSONSummary, "json-summary", "", "emit the machine-readable run summary to this path, or \"-\" for stdout")

	flags.StringVar(&cfg.HistoryDBPath, "history-db", "", "persist each run's transcript to a SQLite database at this path")
	flags.BoolVar(&cfg.SnapshotBeforeRepair, "snapshot-before-repair", false, "tar up dbpath before the first REBUILD_DB")
	flags.StringVar(&cfg.SnapshotDir, "snapshot-dir", "/var/lib/dcrpm/snapshots", "directory for --snapshot-before-repair archives")
	flags.StringVar(&cfg.SignaturesPath, "signatures", "", "YAML file of additional classification rules")
	flags.DurationVar(&cfg.SettleTimeout, "settle-timeout", cfg.SettleTimeout, "max time to wait for dbpath writes to quiesce before probing")
	flags.BoolVar(&cfg.Explain, "explain", false, "print which classification rule produced each symptom, and capture raw output")
	flags.StringVar(&cfg.ForensicLogDir, "forensic-logdir", "/var/log/dcrpm", "directory for --explain's raw command captures")
	flags.BoolVar(&cfg.AllowMultipleRebuilds, "allow-multiple-rebuilds", false, "lift the one-REBUILD_DB-per-run limit")
	flags.BoolVar(&cfg.PackageCleanup, "package-cleanup", false, "reserved for a future package-content cleanup pass; currently inert")

	RootCmd.SuggestionsMinimumDistance = 2
	RootCmd.AddCommand(doctorCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func runRepair(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dcrpm: configuration error: %v\n", err)
		os.Exit(64)
	}

	overlay, err := config.LoadSignatureOverlay(cfg.SignaturesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcrpm: %v\n", err)
		os.Exit(64)
	}
	overlayRules, err := rpmprobe.RulesFromOverlay(overlay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcrpm: %v\n", err)
		os.Exit(64)
	}

	sup := procexec.New()
	sup.GracePeriod = cfg.GracePeriod

	classifier := rpmprobe.NewClassifier(overlayRules)
	prober := rpmprobe.New(cfg, sup, classifier)
	inspector := fileholders.NewInspector(sup, cfg.LsofBin)

	m := &remediate.Machine{
		Cfg:       cfg,
		Prober:    prober,
		Inspector: inspector,
		Forensics: forensics.New(cfg.ForensicLogDir, cfg.Explain),
	}

	if cfg.SettleTimeout > 0 {
		settler := watchfs.New(cfg.DBPath, cfg.SettleTimeout)
		m.Settle = settler.Settle
	}

	if cfg.SnapshotBeforeRepair {
		snapMgr := snapshot.New(cfg.SnapshotDir)
		m.Snapshot = func() (string, error) { return snapMgr.Create(cfg.DBPath) }
	}

	// spec.md §5: the whole run is bounded by TimeoutOverall (default
	// 900s), and an OS SIGINT/SIGTERM must propagate to the running
	// child and end the run FAILED rather than leaving it orphaned.
	deadline, cancelDeadline := context.WithTimeout(context.Background(), cfg.TimeoutOverall)
	defer cancelDeadline()
	ctx, stopSignals := signal.NotifyContext(deadline, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	transcript, err := m.Run(ctx)
	if derr, ok := err.(*dcrpmerr.Error); ok {
		fmt.Fprintf(os.Stderr, "dcrpm: %v\n", derr)
		if derr.Kind == dcrpmerr.ConfigError {
			os.Exit(64)
		}
		// Any other dcrpmerr.Error (including Deadline) still produced a
		// transcript with Status set; fall through so report.ExitCode
		// picks the right code (2 for FAILED) instead of hardcoding 1.
	} else if err != nil {
		return fmt.Errorf("remediation run failed: %w", err)
	}

	if cfg.HistoryDBPath != "" {
		recordHistory(cfg.HistoryDBPath, transcript)
	}

	if cfg.Verbosity != "quiet" {
		fmt.Print(report.Render(transcript))
		if cfg.Explain {
			fmt.Print(report.Explain(transcript))
		}
	}

	if cfg.JSONSummary != "" {
		if err := writeJSONSummary(cfg.JSONSummary, transcript); err != nil {
			fmt.Fprintf(os.Stderr, "dcrpm: failed to write --json-summary: %v\n", err)
		}
	}

	os.Exit(report.ExitCode(transcript.Status))
	return nil
}

func recordHistory(path string, t *remediate.RunTranscript) {
	store, err := runhistory.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcrpm: --history-db: %v\n", err)
		return
	}
	defer store.Close()

	actions := make([]string, 0, len(t.Actions()))
	for _, a := range t.Actions() {
		actions = append(actions, a.String())
	}
	record := runhistory.RunRecord{
		RunID:     t.RunID,
		StartedAt: t.StartedAt,
		Duration:  t.Elapsed,
		Status:    t.Status.String(),
		Actions:   actions,
		Passes:    len(t.Passes),
	}
	if len(t.Notes) > 0 {
		record.Notes = fmt.Sprint(t.Notes)
	}
	if err := store.Record(record); err != nil {
		fmt.Fprintf(os.Stderr, "dcrpm: --history-db: %v\n", err)
	}
}

func writeJSONSummary(path string, t *remediate.RunTranscript) error {
	data, err := report.BuildSummary(t).JSON()
	if err != nil {
		return err
	}
	if path == "-" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
