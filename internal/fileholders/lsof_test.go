package fileholders

import (
	"os"
	"testing"
)

func TestParseLsofFieldOutput_SingleHolder(t *testing.T) {
	out := "p1234\ncbash\nn/var/lib/rpm/Packages\n"
	holders := parseLsofFieldOutput(out)
	if len(holders) != 1 {
		t.Fatalf("expected 1 holder, got %d: %+v", len(holders), holders)
	}
	if holders[0].PID != 1234 || holders[0].Comm != "bash" {
		t.Errorf("unexpected holder: %+v", holders[0])
	}
}

func TestParseLsofFieldOutput_MultipleHolders(t *testing.T) {
	out := "p100\ncrpm\nn/var/lib/rpm/Packages\np200\ncyum\nn/var/lib/rpm/__db.001\n"
	holders := parseLsofFieldOutput(out)
	if len(holders) != 2 {
		t.Fatalf("expected 2 holders, got %d: %+v", len(holders), holders)
	}
	if holders[0].PID != 100 || holders[1].PID != 200 {
		t.Errorf("unexpected pid order: %+v", holders)
	}
}

func TestParseLsofFieldOutput_Empty(t *testing.T) {
	holders := parseLsofFieldOutput("")
	if len(holders) != 0 {
		t.Errorf("expected no holders for empty output, got %+v", holders)
	}
}

func TestParseLsofFieldOutput_DeduplicatesRepeatedPID(t *testing.T) {
	// lsof emits one p-record per distinct open file under the same pid
	// when multiple paths are queried in one invocation.
	out := "p500\ncrpm\nn/var/lib/rpm/Packages\np500\ncrpm\nn/var/lib/rpm/Name\n"
	holders := parseLsofFieldOutput(out)
	if len(holders) != 1 {
		t.Fatalf("expected 1 deduplicated holder, got %d: %+v", len(holders), holders)
	}
}

func TestInspector_FiltersSelfPID(t *testing.T) {
	ins := &Inspector{SelfPID: os.Getpid()}
	holders := []Holder{
		{PID: os.Getpid(), Comm: "dcrpm"},
		{PID: 99999, Comm: "rpm"},
	}
	filtered := ins.filterSelf(holders)
	if len(filtered) != 1 || filtered[0].PID != 99999 {
		t.Errorf("expected self pid filtered out, got %+v", filtered)
	}
}

func TestInspector_FiltersIgnoreList(t *testing.T) {
	ins := &Inspector{SelfPID: -1, Ignore: map[int]bool{42: true}}
	holders := []Holder{{PID: 42, Comm: "init"}, {PID: 7, Comm: "rpm"}}
	filtered := ins.filterSelf(holders)
	if len(filtered) != 1 || filtered[0].PID != 7 {
		t.Errorf("expected ignored pid filtered out, got %+v", filtered)
	}
}
