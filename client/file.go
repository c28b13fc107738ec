package smb2

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/stats"
	log "github.com/sirupsen/logrus"
)

// normPath converts a share-relative path to the wire form: backslash
// separated without leading or trailing separators.
func normPath(name string) string {
	name = strings.ReplaceAll(name, "/", `\`)
	parts := strings.Split(name, `\`)
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, `\`)
}

// parentPath splits a normalized path into its parent and base name.
func parentPath(name string) (dir, base string) {
	i := strings.LastIndex(name, `\`)
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// file is an open SMB2 handle. It never leaves the package.
type file struct {
	tree  *Tree
	fd    *FileId
	name  string
	size  int64
	isDir bool

	closed int32
}

func (t *Tree) open(ctx context.Context, name string, req *CreateRequest) (*file, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	req.Name = name
	req.RequestedOplockLevel = SMB2_OPLOCK_LEVEL_NONE
	req.ImpersonationLevel = Impersonation

	res, err := t.conn.sendRecv(SMB2_CREATE, req, t.treeConn, ctx)
	if err != nil {
		return nil, err
	}

	r := CreateResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken create response format"}
	}

	f := &file{
		tree:  t,
		fd:    r.FileId().Decode(),
		name:  name,
		size:  r.EndofFile(),
		isDir: r.FileAttributes()&FILE_ATTRIBUTE_DIRECTORY != 0,
	}

	stats.AddOpen(name)

	log.Debugf("open %q as %x", name, f.fd.HandleId())

	return f, nil
}

func (f *file) check() error {
	if atomic.LoadInt32(&f.closed) != 0 {
		return ErrHandleClosed
	}
	return f.tree.check()
}

// close releases the handle. Only the first call reaches the server.
func (f *file) close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.closed, 0, 1) {
		return ErrHandleClosed
	}

	req := &CloseRequest{
		FileId: f.fd,
	}

	res, err := f.tree.conn.sendRecv(SMB2_CLOSE, req, f.tree.treeConn, ctx)
	if err != nil {
		return err
	}

	r := CloseResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken close response format"}
	}

	return nil
}

// release closes the handle on a short context detached from ctx, so a
// cancelled caller still frees the server side.
func (f *file) release(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	err := f.close(cctx)
	if err != nil && !errors.Is(err, ErrHandleClosed) {
		log.Warnf("close %q: %v", f.name, err)
	}
	return err
}

func (f *file) maxReadSize() int {
	n := ChunkSize
	if m := int(f.tree.conn.maxReadSize); m > 0 && m < n {
		n = m
	}
	return n
}

func (f *file) maxWriteSize() int {
	n := ChunkSize
	if m := int(f.tree.conn.maxWriteSize); m > 0 && m < n {
		n = m
	}
	return n
}

// readAt issues one READ. It returns io.EOF at end of file.
func (f *file) readAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}

	req := &ReadRequest{
		Padding: 0x50,
		Length:  uint32(len(p)),
		Offset:  uint64(off),
		FileId:  f.fd,
	}

	res, err := f.tree.conn.sendRecv(SMB2_READ, req, f.tree.treeConn, ctx)
	if err != nil {
		var rerr *ResponseError
		if errors.As(err, &rerr) && NtStatus(rerr.Code) == STATUS_END_OF_FILE {
			return 0, io.EOF
		}
		return 0, err
	}

	r := ReadResponseDecoder(res)
	if r.IsInvalid() {
		return 0, &InvalidResponseError{"broken read response format"}
	}

	n := copy(p, r.Data())

	return n, nil
}

// writeAt issues one WRITE and returns the count acknowledged by the server.
func (f *file) writeAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}

	req := &WriteRequest{
		FileId: f.fd,
		Offset: uint64(off),
		Data:   p,
	}

	res, err := f.tree.conn.sendRecv(SMB2_WRITE, req, f.tree.treeConn, ctx)
	if err != nil {
		return 0, err
	}

	r := WriteResponseDecoder(res)
	if r.IsInvalid() {
		return 0, &InvalidResponseError{"broken write response format"}
	}

	n := int(r.Count())
	if n > len(p) {
		return 0, &InvalidResponseError{"write count exceeds request"}
	}

	return n, nil
}

func (f *file) queryDirectory(ctx context.Context, pattern string, flags uint8) ([]byte, error) {
	if err := f.check(); err != nil {
		return nil, err
	}

	bufLen := uint32(ChunkSize)
	if m := f.tree.conn.maxTransactSize; m > 0 && m < bufLen {
		bufLen = m
	}

	req := &QueryDirectoryRequest{
		FileInfoClass:      FileDirectoryInformation,
		Flags:              flags,
		FileId:             f.fd,
		OutputBufferLength: bufLen,
		FileName:           pattern,
	}

	res, err := f.tree.conn.sendRecv(SMB2_QUERY_DIRECTORY, req, f.tree.treeConn, ctx)
	if err != nil {
		return nil, err
	}

	r := QueryDirectoryResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken query directory response format"}
	}

	return r.OutputBuffer(), nil
}
