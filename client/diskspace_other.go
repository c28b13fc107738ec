//go:build !linux && !darwin && !freebsd

package smb2

func checkFreeSpace(dir string, need int64) error {
	return nil
}
