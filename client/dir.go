package smb2

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/stats"
)

// DirectoryEntry describes one child of a listed directory.
type DirectoryEntry struct {
	Name        string
	Size        int64
	ModifiedAt  time.Time
	IsDirectory bool
}

// List returns the entries of the directory at path in server order,
// without "." and "..". An empty directory yields an empty, non-nil slice.
func (t *Tree) List(ctx context.Context, path string) ([]DirectoryEntry, error) {
	entries, err := t.list(ctx, normPath(path))
	if err != nil {
		return nil, wrapPathError("list", path, err)
	}
	return entries, nil
}

func (t *Tree) list(ctx context.Context, name string) (entries []DirectoryEntry, err error) {
	f, err := t.open(ctx, name, &CreateRequest{
		DesiredAccess:     FILE_LIST_DIRECTORY | FILE_READ_ATTRIBUTES | SYNCHRONIZE,
		ShareAccess:       FILE_SHARE_READ | FILE_SHARE_WRITE | FILE_SHARE_DELETE,
		CreateDisposition: FILE_OPEN,
		CreateOptions:     FILE_DIRECTORY_FILE,
	})
	if err != nil {
		return nil, err
	}
	defer f.release(ctx)

	if !f.isDir {
		return nil, ErrNotADirectory
	}

	stats.AddList(name)

	entries = []DirectoryEntry{}

	flags := uint8(SMB2_RESTART_SCANS)
	for {
		out, err := f.queryDirectory(ctx, "*", flags)
		if err != nil {
			var rerr *ResponseError
			if errors.As(err, &rerr) && NtStatus(rerr.Code) == STATUS_NO_MORE_FILES {
				return entries, nil
			}
			return nil, err
		}
		flags = 0

		if len(out) == 0 {
			return entries, nil
		}

		entries, err = appendEntries(entries, out)
		if err != nil {
			return nil, err
		}
	}
}

func appendEntries(entries []DirectoryEntry, b []byte) ([]DirectoryEntry, error) {
	for {
		info := FileDirectoryInformationDecoder(b)
		if info.IsInvalid() {
			return nil, &InvalidResponseError{"broken directory information format"}
		}

		if name := info.FileName(); name != "." && name != ".." {
			size := info.EndOfFile()
			if size < 0 {
				size = 0
			}
			entries = append(entries, DirectoryEntry{
				Name:        name,
				Size:        size,
				ModifiedAt:  FiletimeToTime(info.LastWriteTime().Decode()),
				IsDirectory: info.FileAttributes()&FILE_ATTRIBUTE_DIRECTORY != 0,
			})
		}

		next := info.NextEntryOffset()
		if next == 0 {
			return entries, nil
		}
		if int(next) >= len(b) {
			return nil, &InvalidResponseError{"broken directory information chain"}
		}
		b = b[next:]
	}
}

// Exists reports whether path names an entry of its parent directory.
// A missing parent is reported as false without error.
func (t *Tree) Exists(ctx context.Context, path string) (bool, error) {
	name := normPath(path)
	if name == "" {
		return true, t.check()
	}

	dir, base := parentPath(name)

	entries, err := t.list(ctx, dir)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotADirectory) {
			return false, nil
		}
		return false, wrapPathError("exists", path, err)
	}

	for _, e := range entries {
		if strings.EqualFold(e.Name, base) {
			return true, nil
		}
	}
	return false, nil
}
