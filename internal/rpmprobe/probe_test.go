package rpmprobe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackwell-systems/dcrpm/internal/config"
	"github.com/blackwell-systems/dcrpm/internal/procexec"
)

func testProber(t *testing.T, dbpath string) *Prober {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = dbpath
	cfg.RPMBin = "/bin/sh"
	cfg.VerifyBin = "/bin/sh"
	cfg.TimeoutQuery = time.Second
	cfg.TimeoutVerify = time.Second
	cfg.MinPackages = 30
	return New(cfg, procexec.New(), NewClassifier(nil))
}

// scriptAsRPM writes a fake rpm binary (a shell script) that prints lines
// to stdout so Query/IndexConsistency can be exercised without a real
// rpm database, matching original_source/tests/mock_process.py's strategy
// of mocking the subprocess boundary rather than the classification logic.
func scriptAsRPM(t *testing.T, cfg *config.Config, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-rpm.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.RPMBin = path
}

func TestQuery_Healthy(t *testing.T) {
	p := testProber(t, t.TempDir())
	script := "i=0\nwhile [ $i -lt 30 ]; do echo pkg$i; i=$((i+1)); done\n"
	scriptAsRPM(t, p.Cfg, script)

	sym := p.Query()
	if sym.Kind != Healthy {
		t.Fatalf("expected HEALTHY, got %v", sym.Kind)
	}
}

func TestQuery_Short(t *testing.T) {
	p := testProber(t, t.TempDir())
	scriptAsRPM(t, p.Cfg, "echo pkg1\necho pkg2\n")

	sym := p.Query()
	if sym.Kind != QueryShort {
		t.Fatalf("expected QUERY_SHORT, got %v", sym.Kind)
	}
	if sym.Got != 2 || sym.Expected != 30 {
		t.Errorf("unexpected got/expected: %+v", sym)
	}
}

func TestQuery_Empty(t *testing.T) {
	p := testProber(t, t.TempDir())
	scriptAsRPM(t, p.Cfg, "true\n")

	sym := p.Query()
	if sym.Kind != QueryEmpty {
		t.Fatalf("expected QUERY_EMPTY, got %v", sym.Kind)
	}
}

func TestQuery_Hung(t *testing.T) {
	p := testProber(t, t.TempDir())
	p.Cfg.TimeoutQuery = 200 * time.Millisecond
	scriptAsRPM(t, p.Cfg, "sleep 5\n")

	start := time.Now()
	sym := p.Query()
	if sym.Kind != QueryHung {
		t.Fatalf("expected QUERY_HUNG, got %v", sym.Kind)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("query took too long to time out: %v", time.Since(start))
	}
}

func TestQuery_ClassifiedNeedsRecover(t *testing.T) {
	p := testProber(t, t.TempDir())
	scriptAsRPM(t, p.Cfg, "echo 'cannot open Packages index' >&2\nexit 1\n")

	sym := p.Query()
	if sym.Kind != DBNeedsRecover {
		t.Fatalf("expected DB_NEEDS_RECOVER, got %v", sym.Kind)
	}
}

func TestQuery_Unclassified(t *testing.T) {
	p := testProber(t, t.TempDir())
	scriptAsRPM(t, p.Cfg, "echo 'some baffling error' >&2\nexit 1\n")

	sym := p.Query()
	if sym.Kind != Unknown {
		t.Fatalf("expected UNKNOWN, got %v", sym.Kind)
	}
}

func TestTables_MissingPackages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Name"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := testProber(t, dir)
	verifyPath := filepath.Join(t.TempDir(), "fake-verify.sh")
	os.WriteFile(verifyPath, []byte("#!/bin/sh\ntrue\n"), 0o755)
	p.Cfg.VerifyBin = verifyPath

	sym := p.Tables()
	if sym.Kind != TableMissing {
		t.Fatalf("expected TABLE_MISSING, got %v", sym.Kind)
	}
}

func TestTables_Corrupt(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "Packages"), []byte("x"), 0o644)
	p := testProber(t, dir)

	verifyPath := filepath.Join(t.TempDir(), "fake-verify.sh")
	os.WriteFile(verifyPath, []byte("#!/bin/sh\necho DB_VERIFY_BAD >&2\nexit 1\n"), 0o755)
	p.Cfg.VerifyBin = verifyPath

	sym := p.Tables()
	if sym.Kind != TableCorrupt {
		t.Fatalf("expected TABLE_CORRUPT, got %v", sym.Kind)
	}
	if sym.Table != "Packages" {
		t.Errorf("expected table name Packages, got %q", sym.Table)
	}
}

func TestTables_SkipsLowercaseAndBlacklisted(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "Packages"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "lowercase_ignored"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "Filedigests"), []byte("x"), 0o644)
	p := testProber(t, dir)
	p.Cfg.VerifyTableBlacklist = []string{"Filedigests"}

	callCount := filepath.Join(t.TempDir(), "calls")
	verifyPath := filepath.Join(t.TempDir(), "fake-verify.sh")
	os.WriteFile(verifyPath, []byte("#!/bin/sh\necho \"$1\" >> "+callCount+"\ntrue\n"), 0o755)
	p.Cfg.VerifyBin = verifyPath

	sym := p.Tables()
	if sym.Kind != Healthy {
		t.Fatalf("expected HEALTHY, got %v", sym.Kind)
	}
	data, _ := os.ReadFile(callCount)
	if string(data) != dir+"/Packages\n" {
		t.Errorf("expected only Packages to be verified, got %q", string(data))
	}
}

func TestYumTransactions_Stale(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "transaction-all.12345"), []byte("x"), 0o644)
	p := testProber(t, t.TempDir())
	p.Cfg.YumStateDir = dir

	sym := p.YumTransactions()
	if sym.Kind != StaleYumTransaction {
		t.Fatalf("expected STALE_YUM_TRANSACTION, got %v", sym.Kind)
	}
	if sym.Count != 1 {
		t.Errorf("expected count 1, got %d", sym.Count)
	}
}

func TestYumTransactions_Clean(t *testing.T) {
	dir := t.TempDir()
	p := testProber(t, t.TempDir())
	p.Cfg.YumStateDir = dir

	sym := p.YumTransactions()
	if sym.Kind != Healthy {
		t.Fatalf("expected HEALTHY, got %v", sym.Kind)
	}
}

func TestCheckStuckYum_NoPidfile(t *testing.T) {
	p := testProber(t, t.TempDir())
	p.Cfg.YumPidPath = filepath.Join(t.TempDir(), "yum.pid")

	result := p.CheckStuckYum(false)
	if result.Stuck {
		t.Errorf("expected not stuck when pidfile absent, got %+v", result)
	}
}

func TestCheckStuckYum_TooYoung(t *testing.T) {
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "yum.pid")
	os.WriteFile(pidfile, []byte("123\n"), 0o644)

	p := testProber(t, t.TempDir())
	p.Cfg.YumPidPath = pidfile
	p.Cfg.YumStuckMaxAge = time.Hour

	result := p.CheckStuckYum(false)
	if result.Stuck {
		t.Errorf("expected not stuck for a fresh pidfile, got %+v", result)
	}
}
