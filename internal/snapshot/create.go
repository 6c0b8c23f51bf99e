// Package snapshot is the pre-repair snapshot (SPEC_FULL.md §9.4): before
// the state machine's first REBUILD_DB, tar up dbPath so an operator has
// something to restore from by hand, since rpm --rebuilddb is destructive
// and python-dcrpm dropped the caution the original C++ tool documented.
package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manager creates timestamped tarball snapshots of a directory under a
// configured snapshot directory, mirroring the teacher's snapshot Manager
// shape (a directory plus a timestamped-filename Create operation).
type Manager struct {
	SnapshotDir string
	// Exclude lists basenames skipped from the archive — lock/temp files
	// that are meaningless (or actively misleading) to restore.
	Exclude map[string]bool
}

func New(snapshotDir string) *Manager {
	return &Manager{
		SnapshotDir: snapshotDir,
		Exclude:     map[string]bool{".dbenv.lock": true, ".rpm.lock": true},
	}
}

// Create tars dbPath into a timestamped archive under SnapshotDir and
// returns its path.
func (m *Manager) Create(dbPath string) (string, error) {
	if err := os.MkdirAll(m.SnapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create dir %s: %w", m.SnapshotDir, err)
	}

	name := fmt.Sprintf("dbpath-%s.tar.gz", time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(m.SnapshotDir, name)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("snapshot: create archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	entries, err := os.ReadDir(dbPath)
	if err != nil {
		tw.Close()
		gz.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("snapshot: list dbpath %s: %w", dbPath, err)
	}

	for _, e := range entries {
		if e.IsDir() || m.Exclude[e.Name()] {
			continue
		}
		if err := addFile(tw, dbPath, e.Name()); err != nil {
			tw.Close()
			gz.Close()
			os.Remove(archivePath)
			return "", fmt.Errorf("snapshot: add %s: %w", e.Name(), err)
		}
	}

	if err := tw.Close(); err != nil {
		gz.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("snapshot: finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("snapshot: finalize gzip: %w", err)
	}
	return archivePath, nil
}

func addFile(tw *tar.Writer, dir, name string) error {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}
