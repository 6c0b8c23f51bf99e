package app

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external binaries dcrpm depends on are present",
	Long: `Verifies that rpm, db_recover, db_verify, and lsof are present and
executable, plus yum-complete-transaction when --yum-transactions is
enabled. Every binary is checked and reported; the command exits 65 if
any of them is missing. A repair run never uses exit code 65.`,
	RunE: runDoctor,
}

// binCheck names one binary this run configuration depends on.
type binCheck struct {
	flag string
	path string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Checking dcrpm's external dependencies...")
	fmt.Println()

	checks := []binCheck{
		{"--rpm", cfg.RPMBin},
		{"--db-recover", cfg.RecoverBin},
		{"--db-verify", cfg.VerifyBin},
		{"--lsof", cfg.LsofBin},
	}
	if cfg.CleanupYumTx {
		checks = append(checks, binCheck{"--yum", cfg.YumBin})
	}

	missing := 0
	for _, c := range checks {
		if resolved, err := resolveBinary(c.path); err != nil {
			fmt.Printf("✗ %s (%s): %v\n", c.path, c.flag, err)
			missing++
		} else {
			fmt.Printf("✓ %s\n", resolved)
		}
	}

	fmt.Println()
	if missing > 0 {
		fmt.Printf("Found %d missing binary(ies).\n", missing)
		os.Exit(65)
	}

	fmt.Println("✓ All required binaries are present.")
	return nil
}

// resolveBinary accepts either an absolute path or a bare name to be
// looked up on PATH, matching how exec.Command resolves argv[0].
func resolveBinary(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("not found: %w", err)
	}
	return resolved, nil
}
