// Package watchfs implements the write-quiescence pre-check described in
// SPEC_FULL.md §9.2: before the first probe of a run, confirm dbPath has
// stopped receiving writes, so a legitimate in-flight rpm/yum transaction
// isn't misdiagnosed as corruption. There is no equivalent in the original
// Python dcrpm; this reuses the teacher's fsnotify dependency and its
// watcher package's Start/Stop lifecycle idiom.
package watchfs

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Settler watches a directory for write activity and reports whether it
// has gone quiet within a bounded window.
type Settler struct {
	Dir     string
	Timeout time.Duration
	// QuietFor is how long no write event must be observed before the
	// directory is considered settled. Defaults to Timeout/3 when zero.
	QuietFor time.Duration
}

func New(dir string, timeout time.Duration) *Settler {
	return &Settler{Dir: dir, Timeout: timeout, QuietFor: timeout / 3}
}

// Settle blocks until either dbPath has been quiet for QuietFor, or
// Timeout elapses with writes still arriving — in which case Settle
// returns (false, nil), telling the caller to defer this run rather than
// probe mid-transaction.
func (s *Settler) Settle() (bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer watcher.Close()

	if err := watcher.Add(s.Dir); err != nil {
		return false, err
	}

	quietFor := s.QuietFor
	if quietFor <= 0 {
		quietFor = s.Timeout / 3
	}

	deadline := time.NewTimer(s.Timeout)
	defer deadline.Stop()
	quiet := time.NewTimer(quietFor)
	defer quiet.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return true, nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if !quiet.Stop() {
					<-quiet.C
				}
				quiet.Reset(quietFor)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return true, nil
			}
			return false, err
		case <-quiet.C:
			return true, nil
		case <-deadline.C:
			return false, nil
		}
	}
}
