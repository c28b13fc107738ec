//go:build linux || darwin || freebsd

package smb2

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkFreeSpace fails when the filesystem holding dir cannot take need
// more bytes. An unknown free space never fails.
func checkFreeSpace(dir string, need int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return nil
	}

	avail := int64(st.Bavail) * int64(st.Bsize)
	if avail >= 0 && need > avail {
		return fmt.Errorf("need %d bytes, %d available: %w", need, avail, unix.ENOSPC)
	}
	return nil
}
