package smb2

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/internal/smbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "alice"
	testPassword = "secret"
)

var testCreds = &Credentials{User: testUser, Password: testPassword}

func startServer(t *testing.T, opts smbtest.Options) *smbtest.Server {
	t.Helper()

	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	if opts.Accounts == nil {
		opts.Accounts = map[string]string{testUser: testPassword}
	}

	srv, err := smbtest.NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return srv
}

func dialServer(t *testing.T, srv *smbtest.Server, cfg Config) *Client {
	t.Helper()

	c, err := dialConfig(srv, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func dialConfig(srv *smbtest.Server, cfg Config) (*Client, error) {
	cfg.Address = srv.Addr()
	if cfg.Share == "" {
		cfg.Share = srv.Share()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return Dial(context.Background(), cfg)
}

func randomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func writeLocal(t *testing.T, dir, name string, data []byte) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

var dialects = []struct {
	name    string
	dialect uint16
}{
	{"2.1", SMB210},
	{"3.1.1", SMB311},
}

func TestPutGetRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 1000, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17}

	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			root := t.TempDir()
			srv := startServer(t, smbtest.Options{Root: root, Dialect: d.dialect})
			c := dialServer(t, srv, Config{Credentials: testCreds})

			assert.Equal(t, d.dialect, c.Dialect())
			assert.False(t, c.IsGuest())

			ctx := context.Background()
			local := t.TempDir()

			for _, size := range sizes {
				name := fmt.Sprintf("f%d.bin", size)
				data := randomBytes(t, size)
				src := writeLocal(t, local, "src-"+name, data)

				n, err := c.Put(ctx, src, name)
				require.NoError(t, err)
				assert.EqualValues(t, size, n)

				onServer, err := os.ReadFile(filepath.Join(root, name))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, onServer), "server copy of %s", name)

				dst := filepath.Join(local, "dst-"+name)
				n, err = c.Get(ctx, name, dst)
				require.NoError(t, err)
				assert.EqualValues(t, size, n)

				got, err := os.ReadFile(dst)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, got), "local copy of %s", name)
			}

			assert.Zero(t, srv.OpenHandles())
		})
	}
}

func TestPutTruncatesExisting(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "f.txt", []byte("a much longer previous content"))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	tree, err := c.Mount(context.Background(), srv.Share())
	require.NoError(t, err)

	n, err := tree.PutFrom(context.Background(), bytes.NewReader([]byte("short")), "f.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	var buf bytes.Buffer
	_, err = tree.GetTo(context.Background(), "/f.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "short", buf.String())
}

func TestGetIntoDirectoryKeepsName(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	writeLocal(t, filepath.Join(root, "docs"), "readme.txt", []byte("hello"))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	local := t.TempDir()
	n, err := c.Get(context.Background(), `docs\readme.txt`, local)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	got, err := os.ReadFile(filepath.Join(local, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPutIntoDirectoryKeepsName(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "in"), 0o755))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	src := writeLocal(t, t.TempDir(), "up.txt", []byte("data"))
	_, err := c.Put(context.Background(), src, "in/")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "in", "up.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestGetMissing(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	local := t.TempDir()

	for _, name := range []string{"nope.txt", "no/such/dir/file.txt"} {
		dst := filepath.Join(local, "out")
		_, err := c.Get(context.Background(), name, dst)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrNotFound, name)
		assert.ErrorIs(t, err, os.ErrNotExist, name)

		var pe *PathError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "get", pe.Op)
		assert.Equal(t, name, pe.Path)

		_, serr := os.Stat(dst)
		assert.True(t, errors.Is(serr, os.ErrNotExist), "no local file for %s", name)
	}
}

func TestPutMissingLocal(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	_, err := c.Put(context.Background(), filepath.Join(t.TempDir(), "missing"), "x")
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.ErrorIs(t, err, ErrIO)
}

func TestList(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	writeLocal(t, root, "a.txt", []byte("abc"))
	writeLocal(t, root, "b.txt", nil)

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	entries, err := c.List(ctx, "/")
	require.NoError(t, err)

	byName := map[string]DirectoryEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	require.Len(t, byName, 4)
	assert.NotContains(t, byName, ".")
	assert.NotContains(t, byName, "..")
	assert.EqualValues(t, 3, byName["a.txt"].Size)
	assert.False(t, byName["a.txt"].IsDirectory)
	assert.True(t, byName["sub"].IsDirectory)
	assert.False(t, byName["a.txt"].ModifiedAt.IsZero())

	empty, err := c.List(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = c.List(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.List(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotADirectory)

	assert.Zero(t, srv.OpenHandles())
}

func TestListPaginates(t *testing.T) {
	root := t.TempDir()
	const n = 25
	for i := 0; i < n; i++ {
		writeLocal(t, root, fmt.Sprintf("file-%02d", i), []byte{byte(i)})
	}

	srv := startServer(t, smbtest.Options{Root: root, PageSize: 3})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	entries, err := c.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("file-%02d", i), e.Name)
	}
	assert.Zero(t, srv.OpenHandles())
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	writeLocal(t, filepath.Join(root, "dir"), "File.txt", []byte("x"))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	for path, want := range map[string]bool{
		"dir":              true,
		"dir/File.txt":     true,
		`dir\file.txt`:     true,
		"dir/other.txt":    false,
		"missing/file.txt": false,
		"/":                true,
	} {
		ok, err := c.Exists(ctx, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, ok, path)
	}
}

func TestMkdir(t *testing.T) {
	root := t.TempDir()
	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, "new"))
	fi, err := os.Stat(filepath.Join(root, "new"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	err = c.Mkdir(ctx, "new")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, err, os.ErrExist)

	require.NoError(t, c.Mkdir(ctx, "new/inner"))

	err = c.Mkdir(ctx, "absent/inner")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, srv.OpenHandles())
}

func TestNoHandleLeakAfterServerReadError(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "big.bin", randomBytes(t, 4*ChunkSize))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	srv.Faults().FailRead(2)

	dst := filepath.Join(t.TempDir(), "big.bin")
	n, err := c.Get(context.Background(), "big.bin", dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.EqualValues(t, ChunkSize, n)

	assert.Zero(t, srv.OpenHandles())

	_, serr := os.Stat(dst)
	assert.True(t, errors.Is(serr, os.ErrNotExist), "partial file removed")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestNoHandleLeakAfterLocalError(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "f.bin", randomBytes(t, 2*ChunkSize))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	tree, err := c.Mount(context.Background(), srv.Share())
	require.NoError(t, err)

	_, err = tree.GetTo(context.Background(), "f.bin", failingWriter{})
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "write", ioe.Op)

	assert.Zero(t, srv.OpenHandles())
}

func TestShortReadIsRetried(t *testing.T) {
	root := t.TempDir()
	data := randomBytes(t, 2*ChunkSize+5)
	writeLocal(t, root, "f.bin", data)

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{
		Credentials: testCreds,
		RetryPolicy: &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})

	srv.Faults().ShortReads(2)

	tree, err := c.Mount(context.Background(), srv.Share())
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := tree.GetTo(context.Background(), "f.bin", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)
	assert.True(t, bytes.Equal(data, buf.Bytes()))
}

func TestShortReadsExhaustRetries(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "f.bin", randomBytes(t, 10))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{
		Credentials: testCreds,
		RetryPolicy: &RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})

	srv.Faults().ShortReads(5)

	_, err := c.Get(context.Background(), "f.bin", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.Zero(t, srv.OpenHandles())
}

func TestConcurrentGets(t *testing.T) {
	root := t.TempDir()
	const n = 8
	files := make([][]byte, n)
	for i := range files {
		files[i] = randomBytes(t, ChunkSize*(i%3)+i*100)
		writeLocal(t, root, fmt.Sprintf("c%d", i), files[i])
	}

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	local := t.TempDir()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), fmt.Sprintf("c%d", i), filepath.Join(local, fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		got, err := os.ReadFile(filepath.Join(local, fmt.Sprintf("c%d", i)))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(files[i], got), "file %d", i)
	}
	assert.Zero(t, srv.OpenHandles())
}

func TestDuplicateReplyFailsConnection(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	srv.Faults().DuplicateReply(SMB2_ECHO)
	require.NoError(t, c.Echo(ctx))

	err := c.Echo(ctx)
	var ierr *InvalidResponseError
	require.ErrorAs(t, err, &ierr)

	// the connection stays unusable
	_, err = c.List(ctx, "")
	require.Error(t, err)
}

func TestAnonymousRejected(t *testing.T) {
	srv := startServer(t, smbtest.Options{AllowGuest: false})

	_, err := dialConfig(srv, Config{})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, GuestNotPermitted, aerr.Reason)
}

func TestAnonymousAsGuest(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "pub.txt", []byte("public"))

	srv := startServer(t, smbtest.Options{Root: root, AllowGuest: true})
	c := dialServer(t, srv, Config{})

	assert.True(t, c.IsGuest())

	entries, err := c.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pub.txt", entries[0].Name)
}

func TestGuestDisallowed(t *testing.T) {
	srv := startServer(t, smbtest.Options{AllowGuest: true})

	_, err := dialConfig(srv, Config{DisallowGuest: true})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, GuestNotPermitted, aerr.Reason)
}

func TestWrongPassword(t *testing.T) {
	srv := startServer(t, smbtest.Options{})

	_, err := dialConfig(srv, Config{Credentials: &Credentials{User: testUser, Password: "wrong"}})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, InvalidCredentials, aerr.Reason)
	assert.Zero(t, srv.OpenHandles())
}

func TestUnknownShare(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds, Share: "nosuch"})

	_, err := c.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrShareNotFound)

	_, err = c.Mount(context.Background(), "nosuch")
	assert.ErrorIs(t, err, ErrShareNotFound)
	assert.Empty(t, c.Shares())
}

func TestMountIsIdempotent(t *testing.T) {
	srv := startServer(t, smbtest.Options{Share: "Data"})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	t1, err := c.Mount(ctx, "Data")
	require.NoError(t, err)
	t2, err := c.Mount(ctx, `\data\`)
	require.NoError(t, err)

	assert.Same(t, t1, t2)
	assert.Equal(t, []string{"Data"}, c.Shares())

	require.NoError(t, t1.Disconnect(ctx))
	assert.Empty(t, c.Shares())

	_, err = t1.List(ctx, "")
	assert.ErrorIs(t, err, ErrTreeDisconnected)

	t3, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	assert.NotSame(t, t1, t3)
}

func TestConcurrentMountSharesOneTree(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	const n = 8
	trees := make([]*Tree, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trees[i], _ = c.Mount(context.Background(), srv.Share())
		}(i)
	}
	wg.Wait()

	for _, tr := range trees {
		require.NotNil(t, tr)
		assert.Same(t, trees[0], tr)
	}
}

func TestRequestTimeout(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds, RequestTimeout: 100 * time.Millisecond})

	srv.Faults().Delay(SMB2_ECHO, 2*time.Second, false)

	err := c.Echo(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	srv.Faults().Reset()

	// the cancelled reply is dropped and the connection keeps working
	require.NoError(t, c.Echo(context.Background()))
}

func TestCallerCancellation(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	srv.Faults().Delay(SMB2_ECHO, 2*time.Second, true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Echo(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	srv.Faults().Reset()
	require.NoError(t, c.Echo(context.Background()))
}

func TestCancelledMountDoesNotFailJoiner(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	srv.Faults().Delay(SMB2_TREE_CONNECT, 300*time.Millisecond, false)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	shortErr := make(chan error, 1)
	go func() {
		_, err := c.Mount(short, srv.Share())
		shortErr <- err
	}()

	// join the TREE_CONNECT already in flight
	time.Sleep(10 * time.Millisecond)

	tr, err := c.Mount(context.Background(), srv.Share())
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.ErrorIs(t, <-shortErr, ErrTimeout)

	again, err := c.Mount(context.Background(), srv.Share())
	require.NoError(t, err)
	assert.Same(t, tr, again)
}

func TestCancelGetClosesHandle(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "big.bin", randomBytes(t, 8*ChunkSize))

	srv := startServer(t, smbtest.Options{Root: root})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	srv.Faults().Delay(SMB2_READ, 100*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(250*time.Millisecond, cancel)

	dst := filepath.Join(t.TempDir(), "big.bin")
	n, err := c.Get(ctx, "big.bin", dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, n, int64(8*ChunkSize))

	require.Eventually(t, func() bool { return srv.OpenHandles() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, serr := os.Stat(dst)
	assert.True(t, errors.Is(serr, os.ErrNotExist), "partial file removed")

	srv.Faults().Reset()
	_, err = c.Get(context.Background(), "big.bin", dst)
	require.NoError(t, err)
}

func TestPendingReply(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})

	srv.Faults().Delay(SMB2_ECHO, 50*time.Millisecond, true)
	require.NoError(t, c.Echo(context.Background()))
}

func TestSigning(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			root := t.TempDir()
			writeLocal(t, root, "s.txt", []byte("signed"))

			srv := startServer(t, smbtest.Options{Root: root, Dialect: d.dialect, RequireSigning: true})
			c := dialServer(t, srv, Config{Credentials: testCreds, RequireSigning: true})
			ctx := context.Background()

			var buf bytes.Buffer
			tree, err := c.Mount(ctx, srv.Share())
			require.NoError(t, err)
			_, err = tree.GetTo(ctx, "s.txt", &buf)
			require.NoError(t, err)
			assert.Equal(t, "signed", buf.String())

			srv.Faults().CorruptSignatures(1)
			err = c.Echo(ctx)
			var ierr *InvalidResponseError
			require.ErrorAs(t, err, &ierr)

			require.NoError(t, c.Echo(ctx))
		})
	}
}

func TestSessionExpired(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c := dialServer(t, srv, Config{Credentials: testCreds})
	ctx := context.Background()

	_, err := c.Mount(ctx, srv.Share())
	require.NoError(t, err)

	srv.Faults().ExpireSessions(true)

	_, err = c.List(ctx, "")
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = c.List(ctx, "")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestDialectMismatch(t *testing.T) {
	srv := startServer(t, smbtest.Options{MaxDialect: SMB210})

	_, err := dialConfig(srv, Config{Credentials: testCreds, MinDialect: SMB300})
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestDialRefused(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	addr := srv.Addr()
	require.NoError(t, srv.Close())

	_, err := Dial(context.Background(), Config{Address: addr, DialTimeout: time.Second})
	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, addr, cerr.Addr)
}

func TestClose(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c, err := dialConfig(srv, Config{Credentials: testCreds})
	require.NoError(t, err)

	_, err = c.List(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err = c.Echo(context.Background())
	assert.ErrorIs(t, err, ErrConnectionClosed)

	require.Eventually(t, func() bool { return srv.Connections() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNoShareConfigured(t *testing.T) {
	srv := startServer(t, smbtest.Options{})
	c, err := Dial(context.Background(), Config{Address: srv.Addr(), Credentials: testCreds})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.List(context.Background(), "")
	assert.Equal(t, errNoShare, err)
}
