package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	smb2 "github.com/macos-fuse-t/smbclient/client"
	"github.com/macos-fuse-t/smbclient/config"
	"github.com/macos-fuse-t/smbclient/internal/smbtest"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *smbtest.Server {
	srv, err := smbtest.NewServer(smbtest.Options{
		Root:     t.TempDir(),
		Accounts: map[string]string{"alice": "secret"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func run(args ...string) (string, error) {
	cmd := NewRootCmd(nil)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func serverArgs(srv *smbtest.Server, args ...string) []string {
	return append([]string{"--address", srv.Addr(), "--share", srv.Share(), "-U", "alice", "--password", "secret"}, args...)
}

func TestPutListGet(t *testing.T) {
	srv := startServer(t)

	local := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello, world"), 0o644))

	out, err := run(serverArgs(srv, "put", local)...)
	require.NoError(t, err)
	assert.Contains(t, out, "put "+local)

	out, err = run(serverArgs(srv, "ls", "--bytes")...)
	require.NoError(t, err)
	assert.Contains(t, out, "hello.txt")
	assert.Contains(t, out, "12")

	dst := t.TempDir()
	out, err = run(serverArgs(srv, "get", "hello.txt", dst)...)
	require.NoError(t, err)
	assert.Contains(t, out, "got hello.txt")

	b, err := os.ReadFile(filepath.Join(dst, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(b))

	out, err = run(serverArgs(srv, "exists", "hello.txt")...)
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(out))

	out, err = run(serverArgs(srv, "exists", "nope.txt")...)
	require.NoError(t, err)
	assert.Equal(t, "false", strings.TrimSpace(out))
}

func TestListMissing(t *testing.T) {
	srv := startServer(t)

	_, err := run(serverArgs(srv, "ls", "missing")...)
	assert.ErrorIs(t, err, smb2.ErrNotFound)
}

func TestMkdirParents(t *testing.T) {
	srv := startServer(t)

	_, err := run(serverArgs(srv, "mkdir", "-p", "a/b/c")...)
	require.NoError(t, err)
	_, err = run(serverArgs(srv, "mkdir", "-p", "a/b/c")...)
	require.NoError(t, err)

	_, err = run(serverArgs(srv, "mkdir", "a")...)
	assert.ErrorIs(t, err, smb2.ErrAlreadyExists)

	_, err = run(serverArgs(srv, "mkdir", "x/y")...)
	assert.ErrorIs(t, err, smb2.ErrNotFound)
}

func TestLocationArgument(t *testing.T) {
	srv := startServer(t)

	_, err := run(serverArgs(srv, "mkdir", "docs")...)
	require.NoError(t, err)

	out, err := run("ls", "smb://alice:secret@"+srv.Addr()+"/"+srv.Share())
	require.NoError(t, err)
	assert.Contains(t, out, "docs")

	local := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	_, err = run("-U", "alice", "--password", "secret", "put", local, "//"+srv.Addr()+"/"+srv.Share()+"/docs/")
	require.NoError(t, err)

	out, err = run(serverArgs(srv, "exists", "docs/note.txt")...)
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(out))
}

func TestShares(t *testing.T) {
	srv := startServer(t)

	out, err := run(serverArgs(srv, "shares", srv.Share())...)
	require.NoError(t, err)
	assert.Contains(t, out, "user session")
	assert.Contains(t, out, "ok")

	out, err = run(serverArgs(srv, "shares", srv.Share(), "nope")...)
	assert.Error(t, err)
	assert.Contains(t, out, "nope")
}

func TestWrongPassword(t *testing.T) {
	srv := startServer(t)

	_, err := run("--address", srv.Addr(), "--share", srv.Share(), "-U", "alice", "--password", "wrong", "ls")

	var aerr *smb2.AuthError
	assert.ErrorAs(t, err, &aerr)
}

func TestNoAddress(t *testing.T) {
	_, err := run("ls")
	assert.ErrorContains(t, err, "no server address")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run("--retries", "0", "ls")
	assert.ErrorContains(t, err, "Retries")
}

func TestPasswordPrompt(t *testing.T) {
	a := &app{
		cfg:          config.NewConfig(nil),
		readPassword: func() (string, error) { return "prompted", nil },
	}
	a.cfg.Address = "nas"
	a.cfg.User = "bob"

	cc, p, err := a.resolve("dir/file")
	require.NoError(t, err)
	assert.Equal(t, "dir/file", p)
	require.NotNil(t, cc.Credentials)
	assert.Equal(t, "prompted", cc.Credentials.Password)

	a.cfg.NoPass = true
	cc, _, err = a.resolve("")
	require.NoError(t, err)
	assert.Empty(t, cc.Credentials.Password)

	a.cfg.User = ""
	cc, _, err = a.resolve("")
	require.NoError(t, err)
	assert.Nil(t, cc.Credentials)
}

func TestResolveLocation(t *testing.T) {
	a := &app{
		cfg:          config.NewConfig(nil),
		readPassword: func() (string, error) { return "", nil },
	}
	a.cfg.Address = "configured"
	a.cfg.Share = "configured"

	cc, p, err := a.resolve(`\\nas\media\movies\`)
	require.NoError(t, err)
	assert.Equal(t, "nas:445", cc.Address)
	assert.Equal(t, "media", cc.Share)
	assert.Equal(t, "movies/", p)

	cc, p, err = a.resolve("smb://CORP;bob:pw@nas:1445/docs")
	require.NoError(t, err)
	assert.Equal(t, "nas:1445", cc.Address)
	assert.Empty(t, p)
	require.NotNil(t, cc.Credentials)
	assert.Equal(t, "CORP", cc.Credentials.Domain)
	assert.Equal(t, "pw", cc.Credentials.Password)

	_, _, err = a.resolve("smb://")
	assert.Error(t, err)
}

func TestInitLogsToFile(t *testing.T) {
	defer InitLogs(config.NewConfig(nil))

	cfg := config.NewConfig(nil)
	cfg.Console = false
	cfg.Debug = true
	cfg.LogFile = filepath.Join(t.TempDir(), "smbclient.log")

	InitLogs(cfg)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.Warn("to the file")

	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to the file")
}

type recorder struct {
	m    sync.Mutex
	puts map[string]string
}

func (r *recorder) Put(ctx context.Context, local, remote string) (int64, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.puts[remote] = local
	return 0, nil
}

func (r *recorder) get(remote string) (string, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	local, ok := r.puts[remote]
	return local, ok
}

func TestWatchLoopUploadsChangedFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{puts: map[string]string{}}
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, w, rec, "backup", 50*time.Millisecond) }()

	local := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("one"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	require.Eventually(t, func() bool {
		got, ok := rec.get("backup/a.txt")
		return ok && got == local
	}, 5*time.Second, 20*time.Millisecond)

	_, ok := rec.get("backup/sub")
	assert.False(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}
