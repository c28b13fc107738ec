package smbtest

import (
	"crypto/sha512"
	"sync"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	"github.com/macos-fuse-t/smbclient/internal/ntlm"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

type connState int

const (
	stateNegotiate = connState(iota)
	stateSessionSetup
	stateSessionSetupChallenge
	stateSessionActive
)

// delayedReply is a reply held back by Faults.Delay.
type delayedReply struct {
	req     []byte
	rsp     Packet
	asyncId uint64
	timer   *time.Timer
}

type conn struct {
	srv *Server
	t   Transport

	// owned by the run goroutine
	ntlm     *ntlm.Server
	trees    map[uint32]*fileTree
	handles  map[uint64]*handle
	lastId   uint64
	setupSid uint64

	m                         sync.Mutex // guards the fields below
	dialect                   uint16
	requireSigning            bool
	preauthIntegrityHashValue [64]byte
	connPreauth               [64]byte
	haveConnPreauth           bool
	state                     connState
	session                   *session
	delayed                   map[uint64]*delayedReply
	asyncSeq                  uint64

	write     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(srv *Server, t Transport) *conn {
	return &conn{
		srv:     srv,
		t:       t,
		trees:   make(map[uint32]*fileTree),
		handles: make(map[uint64]*handle),
		delayed: make(map[uint64]*delayedReply),
		write:   make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.t.Close()
	})
}

func (c *conn) run() {
	go c.runSender()

	defer func() {
		c.shutdown()
		c.releaseAll()
		log.Debugf("smbtest: connection finished")
	}()

	for {
		n, err := c.t.ReadSize()
		if err != nil {
			return
		}

		pkt := make([]byte, n)
		if _, err := c.t.Read(pkt); err != nil {
			return
		}

		p := PacketCodec(pkt)
		if p.IsInvalid() || p.IsResponse() {
			log.Warnf("smbtest: broken request, dropping connection")
			return
		}

		c.dispatch(pkt)
	}
}

func (c *conn) runSender() {
	for {
		select {
		case <-c.done:
			return
		case pkt := <-c.write:
			if _, err := c.t.Write(pkt); err != nil {
				log.Debugf("smbtest: write: %v", err)
				c.shutdown()
				return
			}
		}
	}
}

func (c *conn) releaseAll() {
	for id := range c.handles {
		c.release(id)
	}

	c.m.Lock()
	for id, d := range c.delayed {
		d.timer.Stop()
		delete(c.delayed, id)
	}
	c.m.Unlock()
}

func (c *conn) dispatch(pkt []byte) {
	p := PacketCodec(pkt)
	cmd := p.Command()

	log.Debugf("smbtest: %s msg %d", CommandName(cmd), p.MessageId())

	if p.NextCommand() != 0 {
		c.reply(pkt, nil, STATUS_NOT_SUPPORTED)
		return
	}

	if cmd == SMB2_CANCEL {
		c.cancel(pkt)
		return
	}

	var (
		rsp    Packet
		status NtStatus
	)

	switch cmd {
	case SMB2_NEGOTIATE:
		rsp, status = c.negotiate(pkt)
	case SMB2_SESSION_SETUP:
		rsp, status = c.sessionSetup(pkt)
	case SMB2_ECHO:
		rsp = new(EchoResponse)
	default:
		if status = c.checkSession(pkt); status != STATUS_SUCCESS {
			break
		}

		switch cmd {
		case SMB2_LOGOFF:
			rsp, status = c.logoff(pkt)
		case SMB2_TREE_CONNECT:
			rsp, status = c.treeConnect(pkt)
		case SMB2_TREE_DISCONNECT:
			rsp, status = c.treeDisconnect(pkt)
		default:
			tree, ok := c.trees[p.TreeId()]
			if !ok {
				status = STATUS_NETWORK_NAME_DELETED
				break
			}

			switch cmd {
			case SMB2_CREATE:
				rsp, status = c.create(tree, pkt)
			case SMB2_CLOSE:
				rsp, status = c.close(tree, pkt)
			case SMB2_READ:
				rsp, status = c.read(tree, pkt)
			case SMB2_WRITE:
				rsp, status = c.writeFile(tree, pkt)
			case SMB2_QUERY_DIRECTORY:
				rsp, status = c.queryDirectory(tree, pkt)
			default:
				status = STATUS_NOT_SUPPORTED
			}
		}
	}

	c.reply(pkt, rsp, status)
}

// checkSession admits a request only on the established session, verifying
// its signature when the session signs.
func (c *conn) checkSession(pkt []byte) NtStatus {
	p := PacketCodec(pkt)

	c.m.Lock()
	defer c.m.Unlock()

	s := c.session
	if c.state != stateSessionActive || s == nil || s.sessionId != p.SessionId() {
		return STATUS_USER_SESSION_DELETED
	}

	if c.srv.faults.sessionExpired() {
		return STATUS_NETWORK_SESSION_EXPIRED
	}

	if s.verifier == nil {
		return STATUS_SUCCESS
	}

	if p.Flags()&SMB2_FLAGS_SIGNED != 0 {
		if !s.verify(pkt) {
			log.Warnf("smbtest: bad signature on msg %d", p.MessageId())
			return STATUS_ACCESS_DENIED
		}
	} else if c.requireSigning {
		return STATUS_ACCESS_DENIED
	}

	return STATUS_SUCCESS
}

// reply completes the header of rsp from req and sends it, honouring the
// injected delays and duplicates.
func (c *conn) reply(req []byte, rsp Packet, status NtStatus) {
	if status != STATUS_SUCCESS && status != STATUS_MORE_PROCESSING_REQUIRED {
		if _, ok := rsp.(*ErrorResponse); !ok {
			rsp = new(ErrorResponse)
		}
	}
	if rsp == nil {
		rsp = new(ErrorResponse)
	}

	hdr := rsp.Header()
	sid, tid := hdr.SessionId, hdr.TreeId
	PrepareResponse(hdr, req, uint32(status))
	if sid != 0 {
		hdr.SessionId = sid
	}
	if tid != 0 {
		hdr.TreeId = tid
	}
	if hdr.CreditRequestResponse == 0 {
		hdr.CreditRequestResponse = 1
	}

	cmd := PacketCodec(req).Command()

	if d, pending := c.srv.faults.delay(cmd); d > 0 {
		c.replyLater(req, rsp, d, pending)
		return
	}

	pkt := c.encode(rsp, true)
	c.send(pkt)

	if c.srv.faults.takeDuplicate(cmd) {
		log.Debugf("smbtest: duplicate reply to msg %d", hdr.MessageId)
		c.send(pkt)
	}
}

func (c *conn) replyLater(req []byte, rsp Packet, d time.Duration, pending bool) {
	msgId := PacketCodec(req).MessageId()

	dr := &delayedReply{
		req: req,
		rsp: rsp,
	}

	c.m.Lock()
	if pending {
		c.asyncSeq++
		dr.asyncId = c.asyncSeq
	}
	c.delayed[msgId] = dr
	c.m.Unlock()

	if pending {
		interim := new(ErrorResponse)
		PrepareAsyncResponse(&interim.PacketHeader, req, dr.asyncId, uint32(STATUS_PENDING))
		interim.CreditRequestResponse = 0
		c.send(c.encode(interim, false))

		hdr := rsp.Header()
		hdr.Flags |= SMB2_FLAGS_ASYNC_COMMAND
		hdr.AsyncId = dr.asyncId
	}

	dr.timer = time.AfterFunc(d, func() {
		c.m.Lock()
		if c.delayed[msgId] != dr {
			c.m.Unlock()
			return
		}
		delete(c.delayed, msgId)
		c.m.Unlock()

		c.send(c.encode(rsp, true))
	})
}

// cancel answers a held back request with STATUS_CANCELLED. CANCEL itself
// has no reply.
func (c *conn) cancel(pkt []byte) {
	p := PacketCodec(pkt)

	c.m.Lock()
	var (
		msgId uint64
		dr    *delayedReply
	)
	if p.IsAsync() {
		for id, d := range c.delayed {
			if d.asyncId == p.AsyncId() {
				msgId, dr = id, d
				break
			}
		}
	} else {
		msgId = p.MessageId()
		dr = c.delayed[msgId]
	}
	if dr != nil {
		delete(c.delayed, msgId)
	}
	c.m.Unlock()

	if dr == nil {
		log.Debugf("smbtest: nothing to cancel for msg %d", p.MessageId())
		return
	}

	dr.timer.Stop()

	rsp := new(ErrorResponse)
	PrepareAsyncResponse(&rsp.PacketHeader, dr.req, dr.asyncId, uint32(STATUS_CANCELLED))
	rsp.CreditRequestResponse = 1

	log.Debugf("smbtest: cancelled msg %d", msgId)

	c.send(c.encode(rsp, true))
}

// encode serializes rsp, adds it to the pre-auth hash while the session is
// being set up and signs it once the session signs.
func (c *conn) encode(rsp Packet, sign bool) []byte {
	c.m.Lock()
	defer c.m.Unlock()

	pkt := make([]byte, rsp.Size())
	rsp.Encode(pkt)

	hdr := rsp.Header()

	if c.state != stateSessionActive && c.dialect == SMB311 {
		switch hdr.Command {
		case SMB2_NEGOTIATE, SMB2_SESSION_SETUP:
			if NtStatus(hdr.Status) == STATUS_SUCCESS || NtStatus(hdr.Status) == STATUS_MORE_PROCESSING_REQUIRED {
				c.calcPreauthHash(pkt)
			}
		}
	}

	s := c.session
	if sign && s != nil && s.signer != nil && hdr.SessionId == s.sessionId {
		s.sign(pkt)
		if c.srv.faults.takeBadSigning() {
			PacketCodec(pkt).Signature()[0] ^= 0xff
		}
	}

	return pkt
}

func (c *conn) send(pkt []byte) {
	select {
	case c.write <- pkt:
	case <-c.done:
	}
}

// calcPreauthHash must be called with c.m held.
func (c *conn) calcPreauthHash(pkt []byte) {
	h := sha512.New()
	h.Write(c.preauthIntegrityHashValue[:])
	h.Write(pkt)
	h.Sum(c.preauthIntegrityHashValue[:0])
}

func (c *conn) nextId() uint64 {
	c.lastId++
	return c.lastId
}
