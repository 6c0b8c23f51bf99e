package remediate

import "syscall"

// hasFreeDiskSpace ports DcRPM.has_free_disk_space: the filesystem
// holding path must have at least minBytes free, or the run is gated
// with a ConfigError-class failure before any probe runs.
func hasFreeDiskSpace(path string, minBytes int64) (bool, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return false, err
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	return free >= minBytes, nil
}
