package smb2

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	"github.com/stretchr/testify/assert"
)

func TestResponseErrorKinds(t *testing.T) {
	tests := []struct {
		status NtStatus
		kind   error
	}{
		{STATUS_OBJECT_NAME_NOT_FOUND, ErrNotFound},
		{STATUS_OBJECT_PATH_NOT_FOUND, fs.ErrNotExist},
		{STATUS_NO_SUCH_FILE, ErrNotFound},
		{STATUS_OBJECT_NAME_COLLISION, ErrAlreadyExists},
		{STATUS_OBJECT_NAME_COLLISION, fs.ErrExist},
		{STATUS_ACCESS_DENIED, ErrAccessDenied},
		{STATUS_ACCESS_DENIED, fs.ErrPermission},
		{STATUS_NOT_A_DIRECTORY, ErrNotADirectory},
		{STATUS_BAD_NETWORK_NAME, ErrShareNotFound},
		{STATUS_NETWORK_SESSION_EXPIRED, ErrSessionExpired},
		{STATUS_NETWORK_NAME_DELETED, ErrTreeDisconnected},
		{STATUS_INVALID_DEVICE_REQUEST, ErrServer},
	}

	for _, tt := range tests {
		err := error(&ResponseError{Code: uint32(tt.status)})
		assert.ErrorIs(t, err, tt.kind, "%v", tt.status)
		if tt.kind != ErrServer {
			assert.NotErrorIs(t, err, ErrServer, "%v", tt.status)
		}
	}

	err := &ResponseError{Code: uint32(STATUS_ACCESS_DENIED)}
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrIO)
}

func TestSentinelsMatchFsErrors(t *testing.T) {
	assert.ErrorIs(t, ErrNotFound, fs.ErrNotExist)
	assert.ErrorIs(t, ErrAlreadyExists, fs.ErrExist)
	assert.ErrorIs(t, ErrAccessDenied, fs.ErrPermission)
	assert.ErrorIs(t, ErrHandleClosed, fs.ErrClosed)
}

func TestNewAuthError(t *testing.T) {
	logon := &ResponseError{Code: uint32(STATUS_LOGON_FAILURE)}
	denied := &ResponseError{Code: uint32(STATUS_ACCESS_DENIED)}

	var aerr *AuthError

	assert.ErrorAs(t, newAuthError(false, logon), &aerr)
	assert.Equal(t, InvalidCredentials, aerr.Reason)
	assert.EqualValues(t, STATUS_LOGON_FAILURE, aerr.Status)

	assert.ErrorAs(t, newAuthError(false, denied), &aerr)
	assert.Equal(t, ServerRejected, aerr.Reason)

	assert.ErrorAs(t, newAuthError(true, denied), &aerr)
	assert.Equal(t, GuestNotPermitted, aerr.Reason)

	// non status errors pass through
	terr := &TransportError{errors.New("reset")}
	assert.Same(t, terr, newAuthError(false, terr))

	assert.Contains(t, (&AuthError{Reason: InvalidCredentials}).Error(), "invalid credentials")
}

func TestTimeoutAndIOKinds(t *testing.T) {
	assert.ErrorIs(t, &ContextError{Err: context.DeadlineExceeded}, ErrTimeout)
	assert.NotErrorIs(t, &ContextError{Err: context.Canceled}, ErrTimeout)
	assert.ErrorIs(t, &ContextError{Err: context.Canceled}, context.Canceled)

	assert.ErrorIs(t, &TransportError{errors.New("eof")}, ErrIO)
	assert.ErrorIs(t, &IOError{Op: "write", Err: errors.New("full")}, ErrIO)
	assert.ErrorIs(t, exhausted(fmt.Errorf("short: %w", errTransient)), ErrIO)
}

func TestWrapPathError(t *testing.T) {
	assert.NoError(t, wrapPathError("get", "a", nil))

	base := &ResponseError{Code: uint32(STATUS_OBJECT_NAME_NOT_FOUND)}
	err := wrapPathError("get", "a", base)

	var pe *PathError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "get a: response error: STATUS_OBJECT_NAME_NOT_FOUND", err.Error())

	// not wrapped twice for the same path
	assert.Same(t, err, wrapPathError("get", "a", err))

	// local errors keep their own path
	ioe := &IOError{Op: "create", Path: "/tmp/x", Err: fs.ErrPermission}
	assert.Same(t, ioe, wrapPathError("get", "a", ioe))
}
