// Package smbtest serves a local directory over SMB2 for tests. It speaks
// just enough of the protocol for the client: negotiate, NTLM session
// setup, signing, tree connect, create, read, write, query directory and
// close. Faults can be injected to exercise error paths.
package smbtest

import (
	"crypto/rand"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

const (
	serverCapabilities    = SMB2_GLOBAL_CAP_LARGE_MTU
	serverMaxTransactSize = 0x100000
	serverMaxReadSize     = 0x100000
	serverMaxWriteSize    = 0x100000
)

// Options configures a Server.
type Options struct {
	// Share is the exported share name; "share" if empty.
	Share string
	// Root is the directory served by Share.
	Root string

	// Accounts maps user names to NTLM passwords.
	Accounts map[string]string
	// AllowGuest admits anonymous logons and unknown users as guest.
	AllowGuest bool

	RequireSigning bool

	// MaxDialect caps the selected dialect; SMB311 if zero.
	MaxDialect uint16
	// Dialect, if set, is selected whatever the client offered.
	Dialect uint16

	// PageSize limits the entries of one QUERY_DIRECTORY reply.
	PageSize int
}

// Server accepts SMB2 connections on a loopback port.
type Server struct {
	opts   Options
	guid   [16]byte
	faults *Faults

	ln    net.Listener
	wg    sync.WaitGroup
	m     sync.Mutex
	conns map[*conn]struct{}

	openHandles int64
	closed      int32
}

// NewServer starts a server on 127.0.0.1 with a random port.
func NewServer(opts Options) (*Server, error) {
	if opts.Root == "" {
		return nil, errors.New("smbtest: root is required")
	}
	fi, err := os.Stat(opts.Root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("smbtest: root is not a directory")
	}
	if opts.Share == "" {
		opts.Share = "share"
	}
	if opts.MaxDialect == 0 {
		opts.MaxDialect = SMB311
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	srv := &Server{
		opts:   opts,
		faults: newFaults(),
		ln:     ln,
		conns:  make(map[*conn]struct{}),
	}
	if _, err := rand.Read(srv.guid[:]); err != nil {
		ln.Close()
		return nil, err
	}

	srv.wg.Add(1)
	go srv.serve()

	return srv, nil
}

func (srv *Server) serve() {
	defer srv.wg.Done()

	for {
		c, err := srv.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&srv.closed) == 0 {
				log.Errorf("smbtest: accept: %v", err)
			}
			return
		}

		conn := newConn(srv, Direct(c))

		srv.m.Lock()
		srv.conns[conn] = struct{}{}
		srv.m.Unlock()

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()

			conn.run()

			srv.m.Lock()
			delete(srv.conns, conn)
			srv.m.Unlock()
		}()
	}
}

// Addr returns the host:port the server listens on.
func (srv *Server) Addr() string {
	return srv.ln.Addr().String()
}

// Share returns the exported share name.
func (srv *Server) Share() string {
	return srv.opts.Share
}

// Faults returns the fault switches of the server.
func (srv *Server) Faults() *Faults {
	return srv.faults
}

// OpenHandles counts the file handles clients hold open right now.
func (srv *Server) OpenHandles() int {
	return int(atomic.LoadInt64(&srv.openHandles))
}

// Connections counts the live client connections.
func (srv *Server) Connections() int {
	srv.m.Lock()
	defer srv.m.Unlock()

	return len(srv.conns)
}

// Close stops accepting, drops every connection and waits for them.
func (srv *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&srv.closed, 0, 1) {
		return nil
	}

	err := srv.ln.Close()

	srv.m.Lock()
	for c := range srv.conns {
		c.shutdown()
	}
	srv.m.Unlock()

	srv.wg.Wait()

	return err
}

func (srv *Server) lookupShare(path string) (string, bool) {
	// \\host\share
	name := path
	if i := strings.LastIndex(path, `\`); i >= 0 {
		name = path[i+1:]
	}
	if strings.EqualFold(name, srv.opts.Share) {
		return srv.opts.Share, true
	}
	return "", false
}

// Faults are injected into the replies of a server. The zero state
// injects nothing. All methods are safe for concurrent use.
type Faults struct {
	m sync.Mutex

	failReadIn  int
	shortReads  int
	expire      bool
	delays      map[uint16]time.Duration
	pending     bool
	duplicates  map[uint16]int
	badSignings int
}

func newFaults() *Faults {
	return &Faults{
		delays:     make(map[uint16]time.Duration),
		duplicates: make(map[uint16]int),
	}
}

// FailRead makes the nth READ from now on fail with an I/O status.
func (f *Faults) FailRead(n int) {
	f.m.Lock()
	defer f.m.Unlock()

	f.failReadIn = n
}

// ShortReads makes the next n READs return no data although the file has
// more.
func (f *Faults) ShortReads(n int) {
	f.m.Lock()
	defer f.m.Unlock()

	f.shortReads = n
}

// Delay holds back every reply to cmd for d. With pending set an interim
// STATUS_PENDING reply goes out first.
func (f *Faults) Delay(cmd uint16, d time.Duration, pending bool) {
	f.m.Lock()
	defer f.m.Unlock()

	if d <= 0 {
		delete(f.delays, cmd)
	} else {
		f.delays[cmd] = d
	}
	f.pending = pending
}

// DuplicateReply sends the next reply to cmd twice.
func (f *Faults) DuplicateReply(cmd uint16) {
	f.m.Lock()
	defer f.m.Unlock()

	f.duplicates[cmd]++
}

// CorruptSignatures damages the signature of the next n signed replies.
func (f *Faults) CorruptSignatures(n int) {
	f.m.Lock()
	defer f.m.Unlock()

	f.badSignings = n
}

// ExpireSessions answers every later session request with
// STATUS_NETWORK_SESSION_EXPIRED.
func (f *Faults) ExpireSessions(expire bool) {
	f.m.Lock()
	defer f.m.Unlock()

	f.expire = expire
}

// Reset clears every fault.
func (f *Faults) Reset() {
	f.m.Lock()
	defer f.m.Unlock()

	f.failReadIn = 0
	f.shortReads = 0
	f.expire = false
	f.pending = false
	f.badSignings = 0
	f.delays = make(map[uint16]time.Duration)
	f.duplicates = make(map[uint16]int)
}

func (f *Faults) takeReadFault() (fail, short bool) {
	f.m.Lock()
	defer f.m.Unlock()

	if f.failReadIn > 0 {
		f.failReadIn--
		if f.failReadIn == 0 {
			return true, false
		}
	}
	if f.shortReads > 0 {
		f.shortReads--
		return false, true
	}
	return false, false
}

func (f *Faults) delay(cmd uint16) (time.Duration, bool) {
	f.m.Lock()
	defer f.m.Unlock()

	return f.delays[cmd], f.pending
}

func (f *Faults) takeDuplicate(cmd uint16) bool {
	f.m.Lock()
	defer f.m.Unlock()

	if f.duplicates[cmd] > 0 {
		f.duplicates[cmd]--
		return true
	}
	return false
}

func (f *Faults) takeBadSigning() bool {
	f.m.Lock()
	defer f.m.Unlock()

	if f.badSignings > 0 {
		f.badSignings--
		return true
	}
	return false
}

func (f *Faults) sessionExpired() bool {
	f.m.Lock()
	defer f.m.Unlock()

	return f.expire
}
