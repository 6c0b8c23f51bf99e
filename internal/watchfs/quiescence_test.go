package watchfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettle_QuietDirectorySettlesQuickly(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 2*time.Second)
	s.QuietFor = 100 * time.Millisecond

	settled, err := s.Settle()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !settled {
		t.Error("expected an idle directory to settle")
	}
}

func TestSettle_ActiveWritesDeferRun(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 300*time.Millisecond)
	s.QuietFor = 10 * time.Second // never settles within the timeout

	stop := make(chan struct{})
	go func() {
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
				os.WriteFile(filepath.Join(dir, "busy.tmp"), []byte("x"), 0o644)
				i++
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()
	defer close(stop)

	settled, err := s.Settle()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled {
		t.Error("expected an actively-written directory not to settle within the timeout")
	}
}
