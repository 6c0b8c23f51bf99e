package rpmprobe

import (
	"testing"

	"github.com/blackwell-systems/dcrpm/internal/config"
)

func TestParseSymptomKind_RoundTripsWithString(t *testing.T) {
	kinds := []SymptomKind{
		Healthy, QueryHung, QueryEmpty, QueryShort, TableCorrupt,
		TableMissing, IndexInconsistent, StaleYumTransaction, DBNeedsRecover,
		LockContention,
	}
	for _, k := range kinds {
		got, err := ParseSymptomKind(k.String())
		if err != nil {
			t.Errorf("ParseSymptomKind(%q) failed: %v", k.String(), err)
		}
		if got != k {
			t.Errorf("ParseSymptomKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
}

func TestParseSymptomKind_Unknown(t *testing.T) {
	if _, err := ParseSymptomKind("NOT_A_REAL_SYMPTOM"); err == nil {
		t.Fatal("expected error for unrecognized symptom")
	}
}

func TestClassifier_ClassifyStderr_CacheIsConsistent(t *testing.T) {
	c := NewClassifier(nil)
	for i := 0; i < 3; i++ {
		kind, source := c.ClassifyStderr("rpm", "cannot open Packages index")
		if kind != DBNeedsRecover {
			t.Fatalf("call %d: kind = %v, want DBNeedsRecover", i, kind)
		}
		if source != "rpm-cannot-open-packages-index" {
			t.Fatalf("call %d: source = %q", i, source)
		}
	}
}

func TestClassifier_ClassifyStdout_MatchesStdoutOnlyRule(t *testing.T) {
	rules := []ClassificationRule{
		{Name: "overlay:rpm", Binary: "rpm", StdoutPattern: "rpmdbNextIterator: skipping h#", Symptom: TableCorrupt},
	}
	c := NewClassifier(rules)

	kind, source := c.ClassifyStdout("rpm", "header #4 is corrupt; rpmdbNextIterator: skipping h#4")
	if kind != TableCorrupt {
		t.Errorf("ClassifyStdout() kind = %v, want TableCorrupt", kind)
	}
	if source != "overlay:rpm" {
		t.Errorf("ClassifyStdout() source = %q, want overlay:rpm", source)
	}

	if kind, _ := c.ClassifyStdout("rpm", "nothing interesting here"); kind != Unknown {
		t.Errorf("ClassifyStdout() on non-matching stdout = %v, want Unknown", kind)
	}
}

func TestRulesFromOverlay_NilIsNoop(t *testing.T) {
	rules, err := RulesFromOverlay(nil)
	if err != nil || rules != nil {
		t.Errorf("RulesFromOverlay(nil) = %v, %v, want nil, nil", rules, err)
	}
}

func TestRulesFromOverlay_ConvertsAndOverridesBuiltin(t *testing.T) {
	overlay := &config.SignatureOverlay{
		Rules: []config.SignatureRule{
			{Binary: "rpm", StderrPattern: "custom vendor error", Symptom: "TABLE_CORRUPT"},
		},
	}
	rules, err := RulesFromOverlay(overlay)
	if err != nil {
		t.Fatalf("RulesFromOverlay failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Symptom != TableCorrupt {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	c := NewClassifier(rules)
	kind, source := c.ClassifyStderr("rpm", "custom vendor error detected")
	if kind != TableCorrupt {
		t.Errorf("ClassifyStderr() kind = %v, want TableCorrupt", kind)
	}
	if source != "overlay:rpm" {
		t.Errorf("ClassifyStderr() source = %q, want overlay:rpm", source)
	}
}
