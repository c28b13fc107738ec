// Package smb2 is a minimal SMB2/3 client: it negotiates a dialect,
// authenticates with NTLMv2 (or anonymously), connects shares and transfers
// files over a single TCP connection.
package smb2

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

var errNoShare = errors.New("no share configured")

// Client is one authenticated SMB session over one connection.
// It is safe for concurrent use.
type Client struct {
	cfg   Config
	conn  *conn
	s     *session
	trees *treeManager

	closeOnce sync.Once
}

// Dial connects to cfg.Address, negotiates a dialect and sets up a session.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, port, _ := cfg.hostPort()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d := &net.Dialer{Timeout: cfg.DialTimeout}
	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	return newClient(ctx, Direct(tcp), host, cfg)
}

func newClient(ctx context.Context, t Transport, host string, cfg Config) (*Client, error) {
	n := &Negotiator{
		RequireMessageSigning: cfg.RequireSigning,
		MinDialect:            cfg.MinDialect,
		MaxDialect:            cfg.MaxDialect,
	}

	conn, err := n.negotiate(t, openAccount(clientMaxCreditBalance), cfg.RequestTimeout, ctx)
	if err != nil {
		return nil, err
	}

	s, err := sessionSetup(conn, cfg.initiator(), cfg.DisallowGuest, ctx)
	if err != nil {
		conn.close()
		return nil, err
	}

	log.Infof("connected to %s with %s as %s", host, DialectName(conn.dialect), s.user)

	return &Client{
		cfg:   cfg,
		conn:  conn,
		s:     s,
		trees: newTreeManager(s, host, *cfg.RetryPolicy),
	}, nil
}

// Dialect returns the negotiated dialect revision.
func (c *Client) Dialect() uint16 {
	return c.conn.dialect
}

// IsGuest reports whether the server granted a guest or null session.
func (c *Client) IsGuest() bool {
	return c.s.isGuest()
}

// Mount connects share, or returns the tree already connected for it.
func (c *Client) Mount(ctx context.Context, share string) (*Tree, error) {
	return c.trees.connect(ctx, share)
}

// Shares lists the names of the connected shares.
func (c *Client) Shares() []string {
	return c.trees.shares()
}

func (c *Client) tree(ctx context.Context) (*Tree, error) {
	if c.cfg.Share == "" {
		return nil, errNoShare
	}
	return c.Mount(ctx, c.cfg.Share)
}

// List lists the directory at path in the configured share.
func (c *Client) List(ctx context.Context, path string) ([]DirectoryEntry, error) {
	t, err := c.tree(ctx)
	if err != nil {
		return nil, err
	}
	return t.List(ctx, path)
}

// Get downloads remotePath into localPath. When localPath is a directory
// the remote base name is kept. The local file is created only after the
// remote file was opened, and removed again if the transfer fails.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) (int64, error) {
	t, err := c.tree(ctx)
	if err != nil {
		return 0, err
	}

	name := normPath(remotePath)
	if fi, err := os.Stat(localPath); err == nil && fi.IsDir() {
		_, base := parentPath(name)
		localPath = filepath.Join(localPath, base)
	}

	x := newTransfer("get", remotePath, t.m.policy)
	x.local = localPath

	var lf *os.File
	err = t.download(ctx, x, name, func(size int64) (io.Writer, error) {
		if err := checkFreeSpace(filepath.Dir(localPath), size); err != nil {
			return nil, &IOError{Op: "create", Path: localPath, Err: err}
		}
		f, err := os.Create(localPath)
		if err != nil {
			return nil, &IOError{Op: "create", Path: localPath, Err: err}
		}
		lf = f
		return f, nil
	})

	if lf != nil {
		if cerr := lf.Close(); err == nil && cerr != nil {
			err = &IOError{Op: "close", Path: localPath, Err: cerr}
		}
		if err != nil {
			if rerr := os.Remove(localPath); rerr != nil {
				log.Warnf("remove partial %s: %v", localPath, rerr)
			}
		}
	}

	return x.Bytes(), wrapPathError("get", remotePath, err)
}

// Put uploads localPath to remotePath, creating or truncating it. An empty
// remotePath or one ending in a separator receives the local base name.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) (int64, error) {
	t, err := c.tree(ctx)
	if err != nil {
		return 0, err
	}

	lf, err := os.Open(localPath)
	if err != nil {
		return 0, &IOError{Op: "open", Path: localPath, Err: err}
	}
	defer lf.Close()

	if remotePath == "" || strings.HasSuffix(remotePath, "/") || strings.HasSuffix(remotePath, `\`) {
		remotePath += filepath.Base(localPath)
	}

	x := newTransfer("put", remotePath, t.m.policy)
	x.local = localPath

	err = t.upload(ctx, x, lf, normPath(remotePath))

	return x.Bytes(), wrapPathError("put", remotePath, err)
}

// Mkdir creates the directory remotePath in the configured share.
func (c *Client) Mkdir(ctx context.Context, remotePath string) error {
	t, err := c.tree(ctx)
	if err != nil {
		return err
	}
	return t.Mkdir(ctx, remotePath)
}

// Exists reports whether remotePath exists, by listing its parent.
func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	t, err := c.tree(ctx)
	if err != nil {
		return false, err
	}
	return t.Exists(ctx, remotePath)
}

// Echo sends SMB2 ECHO, a cheap liveness probe.
func (c *Client) Echo(ctx context.Context) error {
	res, err := c.conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, ctx)
	if err != nil {
		return err
	}

	r := EchoResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken echo response format"}
	}

	return nil
}

// Close disconnects every tree, logs off and closes the connection. Only
// the first call does any work.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if c.conn.getErr() == nil {
			c.trees.disconnectAll(ctx)

			if err := c.s.logoff(ctx); err != nil {
				log.Debugf("logoff: %v", err)
			}
		}

		c.conn.close()
	})

	return nil
}
