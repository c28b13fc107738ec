package smb2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/stats"
	log "github.com/sirupsen/logrus"
)

type requestResponse struct {
	msgId   uint64
	asyncId uint64
	pkt     []byte // request packet
	ctx     context.Context
	recv    chan []byte
	err     error
}

// outstandingRequests maps message ids to the callers waiting on them.
// abandoned holds ids whose caller gave up; their reply is dropped once.
type outstandingRequests struct {
	m         sync.Mutex
	requests  map[uint64]*requestResponse
	abandoned map[uint64]struct{}
	err       error
}

func newOutstandingRequests() *outstandingRequests {
	return &outstandingRequests{
		requests:  make(map[uint64]*requestResponse),
		abandoned: make(map[uint64]struct{}),
	}
}

func (r *outstandingRequests) set(msgId uint64, rr *requestResponse) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.err != nil {
		return r.err
	}

	r.requests[msgId] = rr
	return nil
}

func (r *outstandingRequests) pop(msgId uint64) (*requestResponse, bool) {
	r.m.Lock()
	defer r.m.Unlock()

	rr, ok := r.requests[msgId]
	if ok {
		delete(r.requests, msgId)
	}
	return rr, ok
}

// markAsync records an interim STATUS_PENDING reply. It reports whether
// msgId belongs to a live or abandoned request.
func (r *outstandingRequests) markAsync(msgId, asyncId uint64) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if rr, ok := r.requests[msgId]; ok {
		rr.asyncId = asyncId
		return true
	}
	_, ok := r.abandoned[msgId]
	return ok
}

// abandon removes a pending entry whose caller stopped waiting. It returns
// false when the reply was already delivered.
func (r *outstandingRequests) abandon(msgId uint64) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.requests[msgId]; !ok {
		return false
	}
	delete(r.requests, msgId)
	r.abandoned[msgId] = struct{}{}
	return true
}

func (r *outstandingRequests) dismiss(msgId uint64) bool {
	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.abandoned[msgId]; !ok {
		return false
	}
	delete(r.abandoned, msgId)
	return true
}

func (r *outstandingRequests) pending() int {
	r.m.Lock()
	defer r.m.Unlock()

	return len(r.requests)
}

func (r *outstandingRequests) shutdown(err error) {
	r.m.Lock()
	defer r.m.Unlock()

	r.err = err

	for msgId, rr := range r.requests {
		rr.err = err
		close(rr.recv)
		delete(r.requests, msgId)
	}
}

type conn struct {
	t Transport

	session                   *session
	outstandingRequests       *outstandingRequests
	sequenceWindow            uint64
	dialect                   uint16
	maxTransactSize           uint32
	maxReadSize               uint32
	maxWriteSize              uint32
	requireSigning            bool
	capabilities              uint32
	preauthIntegrityHashId    uint16
	preauthIntegrityHashValue [64]byte
	gssNegotiateToken         []byte

	account *account
	timeout time.Duration

	done  chan struct{} // closed when the receiver exits
	rdone chan struct{} // closed by close()
	write chan []byte
	werr  chan error

	closeOnce sync.Once

	m sync.Mutex // guards sequenceWindow and the send path

	errm sync.Mutex
	err  error

	_useSession     int32 // receiver use session?
	_sessionExpired int32
}

func newConn(t Transport, a *account, timeout time.Duration) *conn {
	conn := &conn{
		t:                   t,
		outstandingRequests: newOutstandingRequests(),
		account:             a,
		timeout:             timeout,
		done:                make(chan struct{}),
		rdone:               make(chan struct{}),
		write:               make(chan []byte),
		werr:                make(chan error),
	}

	// one credit is implied for NEGOTIATE
	a.charge(1)

	go conn.runSender()
	go conn.runReciever()

	return conn
}

func (conn *conn) useSession() bool {
	return atomic.LoadInt32(&conn._useSession) != 0
}

func (conn *conn) enableSession() {
	atomic.StoreInt32(&conn._useSession, 1)
}

func (conn *conn) resetSession() {
	atomic.StoreInt32(&conn._useSession, 0)
}

func (conn *conn) sessionExpired() bool {
	return atomic.LoadInt32(&conn._sessionExpired) != 0
}

func (conn *conn) getErr() error {
	conn.errm.Lock()
	defer conn.errm.Unlock()

	return conn.err
}

// setErr records the first fatal error of the connection.
func (conn *conn) setErr(err error) {
	conn.errm.Lock()
	defer conn.errm.Unlock()

	if conn.err == nil {
		conn.err = err
	}
}

func (conn *conn) close() error {
	conn.closeOnce.Do(func() {
		close(conn.rdone)
		conn.setErr(ErrConnectionClosed)
		conn.t.Close()
	})

	<-conn.done

	return nil
}

func (conn *conn) sendRecv(cmd uint16, req Packet, tc *treeConn, ctx context.Context) (res []byte, err error) {
	_, res, err = conn.roundTrip(cmd, req, tc, ctx)
	return res, err
}

// roundTrip is sendRecv that also returns the raw reply, header included.
func (conn *conn) roundTrip(cmd uint16, req Packet, tc *treeConn, ctx context.Context) (pkt, res []byte, err error) {
	if conn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conn.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		stats.AddRequest(CommandName(cmd), time.Since(start), errors.Is(err, ErrTimeout), err != nil)
	}()

	rr, err := conn.send(req, tc, ctx)
	if err != nil {
		return nil, nil, err
	}

	pkt, err = conn.recv(rr)
	if err != nil {
		return nil, nil, err
	}

	res, err = accept(cmd, pkt)
	if errors.Is(err, ErrSessionExpired) {
		atomic.StoreInt32(&conn._sessionExpired, 1)
	}
	return pkt, res, err
}

func (conn *conn) send(req Packet, tc *treeConn, ctx context.Context) (rr *requestResponse, err error) {
	if err := conn.getErr(); err != nil {
		return nil, err
	}

	if conn.useSession() && conn.sessionExpired() {
		return nil, ErrSessionExpired
	}

	if _, _, err := conn.account.loan(1, ctx); err != nil {
		return nil, err
	}

	conn.m.Lock()

	hdr := req.Header()
	hdr.MessageId = conn.sequenceWindow
	if conn.dialect != SMB202 && conn.dialect != UnknownSMB {
		hdr.CreditCharge = 1
	}

	pkt := conn.encodePacket(req, tc)

	rr = &requestResponse{
		msgId: hdr.MessageId,
		pkt:   pkt,
		ctx:   ctx,
		recv:  make(chan []byte, 1),
	}

	if err := conn.outstandingRequests.set(rr.msgId, rr); err != nil {
		conn.m.Unlock()
		return nil, err
	}

	conn.sequenceWindow++

	log.Debugf("send %s msg %d", CommandName(hdr.Command), rr.msgId)

	select {
	case conn.write <- pkt:
	case <-conn.done:
		conn.m.Unlock()
		return nil, conn.getErr()
	}

	conn.m.Unlock()

	select {
	case err = <-conn.werr:
		if err != nil {
			conn.outstandingRequests.pop(rr.msgId)
			return nil, &TransportError{err}
		}
	case <-conn.done:
		return nil, conn.getErr()
	}

	return rr, nil
}

func (conn *conn) encodePacket(req Packet, tc *treeConn) []byte {
	hdr := req.Header()

	if _, ok := req.(*CancelRequest); !ok {
		if hdr.CreditRequestResponse == 0 {
			hdr.CreditRequestResponse = 1
		}
		hdr.CreditRequestResponse += conn.account.opening()
	}

	s := conn.session

	if s != nil && conn.useSession() {
		hdr.SessionId = s.sessionId

		if tc != nil {
			hdr.TreeId = tc.treeId
		}
	}

	pkt := make([]byte, req.Size())

	req.Encode(pkt)

	if s != nil && conn.useSession() && s.signer != nil {
		if _, ok := req.(*SessionSetupRequest); !ok {
			pkt = s.sign(pkt)
		}
	}

	return pkt
}

func (conn *conn) recv(rr *requestResponse) ([]byte, error) {
	select {
	case pkt, ok := <-rr.recv:
		if !ok || rr.err != nil {
			return nil, rr.err
		}
		return pkt, nil
	case <-rr.ctx.Done():
		if conn.outstandingRequests.abandon(rr.msgId) {
			log.Warnf("abandon msg %d: %v", rr.msgId, rr.ctx.Err())
			conn.cancel(rr)
			return nil, &ContextError{Err: rr.ctx.Err()}
		}

		// the reply raced with the deadline and is already on its way
		pkt, ok := <-rr.recv
		if !ok || rr.err != nil {
			return nil, rr.err
		}
		return pkt, nil
	}
}

// cancel sends a best effort SMB2 CANCEL for an abandoned request. It
// consumes neither a message id nor a credit.
func (conn *conn) cancel(rr *requestResponse) {
	req := new(CancelRequest)
	req.MessageId = rr.msgId

	conn.m.Lock()
	if asyncId := conn.outstandingAsyncId(rr); asyncId != 0 {
		req.Flags |= SMB2_FLAGS_ASYNC_COMMAND
		req.AsyncId = asyncId
	}
	pkt := conn.encodePacket(req, nil)

	select {
	case conn.write <- pkt:
	case <-conn.done:
		conn.m.Unlock()
		return
	}
	conn.m.Unlock()

	select {
	case err := <-conn.werr:
		if err != nil {
			log.Debugf("cancel msg %d: %v", rr.msgId, err)
		}
	case <-conn.done:
	}
}

func (conn *conn) outstandingAsyncId(rr *requestResponse) uint64 {
	conn.outstandingRequests.m.Lock()
	defer conn.outstandingRequests.m.Unlock()

	return rr.asyncId
}

func (conn *conn) runSender() {
	for {
		select {
		case <-conn.done:
			return
		case pkt := <-conn.write:
			_, err := conn.t.Write(pkt)
			if err != nil {
				conn.setErr(&TransportError{err})
				conn.t.Close()
			}

			select {
			case conn.werr <- err:
			case <-conn.done:
				return
			}
		}
	}
}

func (conn *conn) runReciever() {
	var err error

	for {
		n, e := conn.t.ReadSize()
		if e != nil {
			err = &TransportError{e}

			goto exit
		}

		pkt := make([]byte, n)

		_, e = conn.t.Read(pkt)
		if e != nil {
			err = &TransportError{e}

			goto exit
		}

		var next []byte

		for {
			p := PacketCodec(pkt)
			if p.IsInvalid() {
				if len(pkt) >= 4 && string(pkt[:4]) == MAGIC2 {
					err = &InvalidResponseError{"encrypted reply on an unencrypted session"}
				} else {
					err = &InvalidResponseError{"broken packet header format"}
				}
				stats.AddProtocolError()

				goto exit
			}

			if off := p.NextCommand(); off != 0 {
				if off < 64 || int(off) > len(pkt) {
					err = &InvalidResponseError{"broken compound reply"}
					stats.AddProtocolError()

					goto exit
				}
				pkt, next = pkt[:off], pkt[off:]
			} else {
				next = nil
			}

			if e = conn.deliver(pkt); e != nil {
				err = e

				goto exit
			}

			if next == nil {
				break
			}

			pkt = next
		}
	}

exit:
	select {
	case <-conn.rdone:
		err = ErrConnectionClosed
	default:
		log.Errorln("error:", err)
	}

	conn.setErr(err)
	conn.outstandingRequests.shutdown(conn.getErr())

	close(conn.done)
	log.Debugf("receiver finished")
}

// deliver routes one reply to its waiting caller.
func (conn *conn) deliver(pkt []byte) error {
	p := PacketCodec(pkt)

	msgId := p.MessageId()

	// unsolicited oplock break
	if msgId == 0xFFFFFFFFFFFFFFFF {
		log.Debugf("skip notification %s", CommandName(p.Command()))
		return nil
	}

	conn.account.charge(p.CreditResponse())

	if NtStatus(p.Status()) == STATUS_PENDING && p.IsAsync() {
		if conn.outstandingRequests.markAsync(msgId, p.AsyncId()) {
			log.Debugf("msg %d pending as async %d", msgId, p.AsyncId())
			return nil
		}
	}

	rr, ok := conn.outstandingRequests.pop(msgId)
	if !ok {
		if conn.outstandingRequests.dismiss(msgId) {
			log.Warnf("drop reply to abandoned msg %d", msgId)
			return nil
		}
		stats.AddProtocolError()
		return &InvalidResponseError{fmt.Sprintf("unexpected reply for msg %d", msgId)}
	}

	log.Debugf("recv %s msg %d status %v", CommandName(p.Command()), msgId, NtStatus(p.Status()))

	if conn.useSession() {
		if e := conn.tryVerify(pkt); e != nil {
			log.Errorf("verify msg %d: %v", msgId, e)
			rr.err = e
			close(rr.recv)
			return nil
		}
	}

	rr.recv <- pkt

	return nil
}

func (conn *conn) tryVerify(pkt []byte) error {
	p := PacketCodec(pkt)

	s := conn.session
	if s == nil {
		return nil
	}

	if p.Flags()&SMB2_FLAGS_SIGNED != 0 {
		if s.sessionId != p.SessionId() {
			return &InvalidResponseError{"unknown session id returned"}
		}
		if s.verifier != nil && !s.verify(pkt) {
			return &InvalidResponseError{"unverified packet returned"}
		}
		return nil
	}

	if conn.requireSigning && s.verifier != nil && s.sessionId == p.SessionId() {
		return &InvalidResponseError{"signing required"}
	}

	return nil
}

func accept(cmd uint16, pkt []byte) (res []byte, err error) {
	p := PacketCodec(pkt)
	if command := p.Command(); cmd != command {
		return nil, &InvalidResponseError{fmt.Sprintf("expected command: %v, got %v", CommandName(cmd), CommandName(command))}
	}

	if !p.IsResponse() {
		return nil, &InvalidResponseError{"reply is not flagged as a response"}
	}

	status := NtStatus(p.Status())

	switch status {
	case STATUS_SUCCESS:
		return p.Data(), nil
	case STATUS_MORE_PROCESSING_REQUIRED:
		if cmd == SMB2_SESSION_SETUP {
			return p.Data(), nil
		}
	}

	return nil, acceptError(uint32(status), p.Data())
}

func acceptError(status uint32, res []byte) error {
	r := ErrorResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken error response format"}
	}

	return &ResponseError{Code: status, data: [][]byte{r.ErrorData()}}
}
