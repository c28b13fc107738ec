package smb2

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
)

// kindError is a sentinel that also matches a standard fs error.
type kindError struct {
	msg string
	fs  error
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.fs
}

var (
	ErrProtocolMismatch = errors.New("no common protocol dialect")
	ErrShareNotFound    = errors.New("share not found")
	ErrAccessDenied     error = &kindError{"access denied", fs.ErrPermission}
	ErrNotFound         error = &kindError{"not found", fs.ErrNotExist}
	ErrNotADirectory    = errors.New("not a directory")
	ErrAlreadyExists    error = &kindError{"already exists", fs.ErrExist}
	ErrTimeout          = errors.New("request timed out")
	ErrIO               = errors.New("i/o error")
	ErrServer           = errors.New("server error")

	ErrConnectionClosed = errors.New("connection closed")
	ErrTreeDisconnected = errors.New("tree disconnected")
	ErrHandleClosed     error = &kindError{"handle already closed", fs.ErrClosed}
	ErrSessionExpired   = errors.New("session expired")
)

// TransportError represents a failure of the underlying connection.
// The connection is unusable afterwards.
type TransportError struct {
	Err error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("connection error: %v", err.Err)
}

func (err *TransportError) Unwrap() error {
	return err.Err
}

func (err *TransportError) Is(target error) bool {
	return target == ErrIO
}

// InvalidResponseError represents a protocol violation by the server.
type InvalidResponseError struct {
	Message string
}

func (err *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response error: %s", err.Message)
}

// ResponseError carries a non-success NT status returned by the server.
type ResponseError struct {
	Code uint32
	data [][]byte
}

func (err *ResponseError) Error() string {
	return fmt.Sprintf("response error: %v", NtStatus(err.Code))
}

// kind maps the status to one error of the taxonomy. Statuses with no
// specific kind are ErrServer.
func (err *ResponseError) kind() error {
	switch NtStatus(err.Code) {
	case STATUS_OBJECT_NAME_NOT_FOUND, STATUS_OBJECT_PATH_NOT_FOUND, STATUS_NO_SUCH_FILE:
		return ErrNotFound
	case STATUS_OBJECT_NAME_COLLISION:
		return ErrAlreadyExists
	case STATUS_ACCESS_DENIED, STATUS_CANNOT_DELETE, STATUS_MEDIA_WRITE_PROTECTED:
		return ErrAccessDenied
	case STATUS_NOT_A_DIRECTORY:
		return ErrNotADirectory
	case STATUS_BAD_NETWORK_NAME:
		return ErrShareNotFound
	case STATUS_NETWORK_SESSION_EXPIRED, STATUS_USER_SESSION_DELETED:
		return ErrSessionExpired
	case STATUS_NETWORK_NAME_DELETED:
		return ErrTreeDisconnected
	}
	return ErrServer
}

func (err *ResponseError) Is(target error) bool {
	k := err.kind()
	if target == k {
		return true
	}
	switch target {
	case fs.ErrNotExist:
		return k == ErrNotFound
	case fs.ErrExist:
		return k == ErrAlreadyExists
	case fs.ErrPermission:
		return k == ErrAccessDenied
	}
	return false
}

// ContextError wraps a context error raised while waiting for the server.
type ContextError struct {
	Err error
}

func (err *ContextError) Error() string {
	return fmt.Sprintf("context error: %v", err.Err)
}

func (err *ContextError) Unwrap() error {
	return err.Err
}

func (err *ContextError) Is(target error) bool {
	return target == ErrTimeout && errors.Is(err.Err, context.DeadlineExceeded)
}

// InternalError represents internal error.
type InternalError struct {
	Message string
}

func (err *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", err.Message)
}

// ConnectError reports that the server could not be reached.
type ConnectError struct {
	Addr string
	Err  error
}

func (err *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", err.Addr, err.Err)
}

func (err *ConnectError) Unwrap() error {
	return err.Err
}

type AuthFailure int

const (
	InvalidCredentials AuthFailure = iota
	GuestNotPermitted
	ServerRejected
)

func (r AuthFailure) String() string {
	switch r {
	case InvalidCredentials:
		return "invalid credentials"
	case GuestNotPermitted:
		return "guest not permitted"
	default:
		return "rejected by server"
	}
}

// AuthError reports a failed session setup.
type AuthError struct {
	Reason AuthFailure
	Status uint32
}

func (err *AuthError) Error() string {
	if err.Status != 0 {
		return fmt.Sprintf("authentication failed: %v (%v)", err.Reason, NtStatus(err.Status))
	}
	return fmt.Sprintf("authentication failed: %v", err.Reason)
}

func newAuthError(anonymous bool, err error) error {
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		return err
	}

	if anonymous {
		return &AuthError{Reason: GuestNotPermitted, Status: rerr.Code}
	}

	switch NtStatus(rerr.Code) {
	case STATUS_LOGON_FAILURE, STATUS_WRONG_PASSWORD, STATUS_NO_SUCH_USER,
		STATUS_ACCOUNT_DISABLED, STATUS_PASSWORD_EXPIRED, STATUS_ACCOUNT_RESTRICTION:
		return &AuthError{Reason: InvalidCredentials, Status: rerr.Code}
	}

	return &AuthError{Reason: ServerRejected, Status: rerr.Code}
}

// IOError reports a failure of the local side of a transfer.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (err *IOError) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("%s: %v", err.Op, err.Err)
	}
	return fmt.Sprintf("%s %s: %v", err.Op, err.Path, err.Err)
}

func (err *IOError) Unwrap() error {
	return err.Err
}

func (err *IOError) Is(target error) bool {
	return target == ErrIO
}

// PathError records an error and the operation and remote path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (err *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Op, err.Path, err.Err)
}

func (err *PathError) Unwrap() error {
	return err.Err
}

func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var pe *PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	var ie *IOError
	if errors.As(err, &ie) {
		return err
	}

	return &PathError{Op: op, Path: path, Err: err}
}
