package smb2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/stats"
	log "github.com/sirupsen/logrus"
)

type TransferState int32

const (
	StateOpening TransferState = iota
	StateTransferring
	StateClosing
	StateDone
	StateFailed
)

func (s TransferState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateTransferring:
		return "transferring"
	case StateClosing:
		return "closing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("TransferState(%d)", int32(s))
}

// transfer tracks one get, put or mkdir through its states.
type transfer struct {
	op     string
	path   string // remote, share relative
	local  string // local file, if any
	policy RetryPolicy

	state int32
	n     int64
}

func newTransfer(op, path string, policy RetryPolicy) *transfer {
	return &transfer{op: op, path: path, policy: policy}
}

func (x *transfer) State() TransferState {
	return TransferState(atomic.LoadInt32(&x.state))
}

func (x *transfer) Bytes() int64 {
	return atomic.LoadInt64(&x.n)
}

func (x *transfer) setState(s TransferState) {
	if x.State() == StateFailed {
		return
	}
	atomic.StoreInt32(&x.state, int32(s))
	log.Debugf("%s %q: %v", x.op, x.path, s)
}

func (x *transfer) fail(err error) error {
	atomic.StoreInt32(&x.state, int32(StateFailed))
	log.Debugf("%s %q: failed: %v", x.op, x.path, err)
	return err
}

func (x *transfer) add(n int) {
	atomic.AddInt64(&x.n, int64(n))
}

func exhausted(err error) error {
	if isRetryable(err) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return err
}

// openForRead opens a regular file for download.
func (t *Tree) openForRead(ctx context.Context, name string) (*file, error) {
	return t.open(ctx, name, &CreateRequest{
		DesiredAccess:     FILE_READ_DATA | FILE_READ_ATTRIBUTES | SYNCHRONIZE,
		ShareAccess:       FILE_SHARE_READ,
		CreateDisposition: FILE_OPEN,
		CreateOptions:     FILE_NON_DIRECTORY_FILE,
	})
}

// download streams the remote file name into the writer returned by sink.
// sink runs only after the remote open succeeded and receives the remote
// size; a sink error is returned as is.
func (t *Tree) download(ctx context.Context, x *transfer, name string, sink func(size int64) (io.Writer, error)) (err error) {
	x.setState(StateOpening)

	f, err := t.openForRead(ctx, name)
	if err != nil {
		return x.fail(err)
	}
	defer func() {
		x.setState(StateClosing)
		f.release(ctx)
		if err != nil {
			x.fail(err)
			return
		}
		x.setState(StateDone)
	}()

	w, err := sink(f.size)
	if err != nil {
		return err
	}

	x.setState(StateTransferring)

	buf := make([]byte, f.maxReadSize())

	var off int64
	for {
		var m int
		err := withRetry(ctx, x.policy, "read", func() error {
			var e error
			m, e = f.readAt(ctx, buf, off)
			if e != nil {
				return e
			}
			if m == 0 && off < f.size {
				return fmt.Errorf("short read at offset %d: %w", off, errTransient)
			}
			return nil
		})
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return exhausted(err)
		}
		if m == 0 {
			return nil
		}

		if _, err := w.Write(buf[:m]); err != nil {
			return &IOError{Op: "write", Path: x.local, Err: err}
		}

		off += int64(m)
		x.add(m)
		stats.AddReadBytes(name, uint64(m))
	}
}

// upload creates or truncates name and streams src into it.
func (t *Tree) upload(ctx context.Context, x *transfer, src io.Reader, name string) (err error) {
	x.setState(StateOpening)

	f, err := t.open(ctx, name, &CreateRequest{
		DesiredAccess:     GENERIC_WRITE | FILE_READ_ATTRIBUTES | SYNCHRONIZE,
		FileAttributes:    FILE_ATTRIBUTE_NORMAL,
		ShareAccess:       FILE_SHARE_READ,
		CreateDisposition: FILE_OVERWRITE_IF,
		CreateOptions:     FILE_NON_DIRECTORY_FILE,
	})
	if err != nil {
		return x.fail(err)
	}
	defer func() {
		x.setState(StateClosing)
		cerr := f.release(ctx)
		if err == nil && cerr != nil && !errors.Is(cerr, ErrHandleClosed) {
			err = cerr
		}
		if err != nil {
			x.fail(err)
			return
		}
		x.setState(StateDone)
	}()

	x.setState(StateTransferring)

	buf := make([]byte, f.maxWriteSize())

	var off int64
	for {
		m, rerr := io.ReadFull(src, buf)

		p := buf[:m]
		for len(p) > 0 {
			var w int
			err := withRetry(ctx, x.policy, "write", func() error {
				var e error
				w, e = f.writeAt(ctx, p, off)
				if e != nil {
					return e
				}
				if w == 0 {
					return fmt.Errorf("zero-count write at offset %d: %w", off, errTransient)
				}
				return nil
			})
			if err != nil {
				return exhausted(err)
			}

			p = p[w:]
			off += int64(w)
			x.add(w)
			stats.AddWriteBytes(name, uint64(w))
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return &IOError{Op: "read", Path: x.local, Err: rerr}
		}
	}
}

// mkdir creates a single directory; its parent must exist.
func (t *Tree) mkdir(ctx context.Context, x *transfer, name string) (err error) {
	x.setState(StateOpening)

	if name == "" {
		return x.fail(ErrAlreadyExists)
	}

	f, err := t.open(ctx, name, &CreateRequest{
		DesiredAccess:     FILE_READ_ATTRIBUTES | SYNCHRONIZE,
		FileAttributes:    FILE_ATTRIBUTE_DIRECTORY,
		ShareAccess:       FILE_SHARE_READ | FILE_SHARE_WRITE | FILE_SHARE_DELETE,
		CreateDisposition: FILE_CREATE,
		CreateOptions:     FILE_DIRECTORY_FILE,
	})
	if err != nil {
		return x.fail(err)
	}

	stats.AddMkdir(name)

	x.setState(StateClosing)
	if err := f.release(ctx); err != nil {
		return x.fail(err)
	}
	x.setState(StateDone)

	return nil
}

// GetTo copies the remote file at path into w.
func (t *Tree) GetTo(ctx context.Context, path string, w io.Writer) (int64, error) {
	x := newTransfer("get", path, t.m.policy)
	err := t.download(ctx, x, normPath(path), func(int64) (io.Writer, error) {
		return w, nil
	})
	return x.Bytes(), wrapPathError("get", path, err)
}

// PutFrom creates or truncates the remote file at path with the contents of r.
func (t *Tree) PutFrom(ctx context.Context, r io.Reader, path string) (int64, error) {
	x := newTransfer("put", path, t.m.policy)
	err := t.upload(ctx, x, r, normPath(path))
	return x.Bytes(), wrapPathError("put", path, err)
}

// Mkdir creates the directory at path. An existing entry yields
// ErrAlreadyExists.
func (t *Tree) Mkdir(ctx context.Context, path string) error {
	x := newTransfer("mkdir", path, t.m.policy)
	return wrapPathError("mkdir", path, t.mkdir(ctx, x, normPath(path)))
}
