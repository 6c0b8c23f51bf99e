package procexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	s := New()
	result := s.Run(context.Background(), []string{"/bin/echo", "hello"}, nil, time.Second, nil)

	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if got := strings.TrimSpace(string(result.Stdout)); got != "hello" {
		t.Errorf("stdout = %q, want %q", got, "hello")
	}
	if result.TerminatedByUs {
		t.Error("TerminatedByUs should be false on a fast, successful command")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	s := New()
	result := s.Run(context.Background(), []string{"/bin/sh", "-c", "exit 3"}, nil, time.Second, nil)

	if result.Success() {
		t.Fatal("expected failure")
	}
	if result.ExitClass != ExitNormal || result.ExitCode != 3 {
		t.Errorf("unexpected classification: class=%v code=%d", result.ExitClass, result.ExitCode)
	}
}

func TestRun_Timeout(t *testing.T) {
	s := New()
	s.GracePeriod = 200 * time.Millisecond
	start := time.Now()
	result := s.Run(context.Background(), []string{"/bin/sh", "-c", "sleep 30"}, nil, 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	if !result.TimedOut() {
		t.Fatalf("expected timeout classification, got %+v", result)
	}
	if !result.TerminatedByUs {
		t.Error("TerminatedByUs should be true after a deadline kill")
	}
	if result.Elapsed < 200*time.Millisecond {
		t.Errorf("Elapsed %v should be at least the timeout", result.Elapsed)
	}
	if elapsed > 5*time.Second {
		t.Errorf("test took too long (%v), SIGKILL escalation may not be working", elapsed)
	}
}

func TestRun_ContextCancelKillsChild(t *testing.T) {
	s := New()
	s.GracePeriod = 200 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := s.Run(ctx, []string{"/bin/sh", "-c", "sleep 30"}, nil, time.Hour, nil)
	elapsed := time.Since(start)

	if !result.TimedOut() {
		t.Fatalf("expected the context deadline to kill the child, got %+v", result)
	}
	if !result.TerminatedByUs {
		t.Error("TerminatedByUs should be true after a context-cancel kill")
	}
	if elapsed > 5*time.Second {
		t.Errorf("test took too long (%v), SIGKILL escalation may not be working", elapsed)
	}
}

func TestRun_SpawnFailure(t *testing.T) {
	s := New()
	result := s.Run(context.Background(), []string{"/no/such/binary-dcrpm-test"}, nil, time.Second, nil)

	if result.ExitClass != ExitSpawnFailed {
		t.Fatalf("expected ExitSpawnFailed, got %+v", result)
	}
	if result.SpawnError == "" {
		t.Error("expected a non-empty SpawnError")
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	s := New()
	s.MaxOutputBytes = 16
	result := s.Run(context.Background(), []string{"/bin/sh", "-c", "printf '%0.sA' $(seq 1 1000)"}, nil, 2*time.Second, nil)

	if !result.StdoutTruncated {
		t.Fatal("expected stdout to be marked truncated")
	}
	if !strings.Contains(string(result.Stdout), "truncated") {
		t.Errorf("expected truncation marker in stdout, got %q", result.Stdout)
	}
}

func TestRun_Stdin(t *testing.T) {
	s := New()
	result := s.Run(context.Background(), []string{"/bin/cat"}, []byte("piped in"), time.Second, nil)
	if got := string(result.Stdout); got != "piped in" {
		t.Errorf("stdout = %q, want %q", got, "piped in")
	}
}
