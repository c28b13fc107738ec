package smb2

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peer is a scripted server on the far end of a net.Pipe.
type peer struct {
	t Transport
}

func newPipeConn(t *testing.T, timeout time.Duration) (*conn, *peer) {
	c1, c2 := net.Pipe()

	conn := newConn(Direct(c1), openAccount(clientMaxCreditBalance), timeout)
	conn.account.charge(16)

	t.Cleanup(func() {
		c2.Close()
		conn.close()
	})

	return conn, &peer{t: Direct(c2)}
}

func (p *peer) recv(t *testing.T) []byte {
	n, err := p.t.ReadSize()
	require.NoError(t, err)
	pkt := make([]byte, n)
	_, err = p.t.Read(pkt)
	require.NoError(t, err)
	return pkt
}

func (p *peer) send(t *testing.T, rsp Packet) {
	pkt := make([]byte, rsp.Size())
	rsp.Encode(pkt)
	_, err := p.t.Write(pkt)
	require.NoError(t, err)
}

func echoReply(req []byte, status NtStatus) Packet {
	if status != STATUS_SUCCESS {
		rsp := new(ErrorResponse)
		PrepareResponse(&rsp.PacketHeader, req, uint32(status))
		rsp.CreditRequestResponse = 1
		return rsp
	}
	rsp := new(EchoResponse)
	PrepareResponse(&rsp.PacketHeader, req, uint32(status))
	rsp.CreditRequestResponse = 1
	return rsp
}

func TestOutOfOrderRepliesReachTheirCallers(t *testing.T) {
	conn, p := newPipeConn(t, time.Second)

	const n = 4

	type result struct {
		sent, got uint64
		err       error
	}
	results := make(chan result, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr, err := conn.send(new(EchoRequest), nil, context.Background())
			if err != nil {
				results <- result{err: err}
				return
			}
			pkt, err := conn.recv(rr)
			if err != nil {
				results <- result{sent: rr.msgId, err: err}
				return
			}
			results <- result{sent: rr.msgId, got: PacketCodec(pkt).MessageId()}
		}()
	}

	reqs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, p.recv(t))
	}

	// answer in reverse order
	for i := n - 1; i >= 0; i-- {
		p.send(t, echoReply(reqs[i], STATUS_SUCCESS))
	}

	wg.Wait()
	close(results)

	seen := map[uint64]bool{}
	for r := range results {
		require.NoError(t, r.err)
		assert.Equal(t, r.sent, r.got)
		seen[r.got] = true
	}
	assert.Len(t, seen, n)
	assert.Zero(t, conn.outstandingRequests.pending())
}

func TestDuplicateReplyIsProtocolError(t *testing.T) {
	conn, p := newPipeConn(t, time.Second)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	req := p.recv(t)
	rsp := echoReply(req, STATUS_SUCCESS)
	p.send(t, rsp)
	require.NoError(t, <-errc)

	// the same msg id again
	p.send(t, rsp)

	require.Eventually(t, func() bool { return conn.getErr() != nil }, time.Second, time.Millisecond)

	var ierr *InvalidResponseError
	require.ErrorAs(t, conn.getErr(), &ierr)

	_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
	require.ErrorAs(t, err, &ierr)
}

func TestUnknownReplyIsProtocolError(t *testing.T) {
	conn, p := newPipeConn(t, time.Second)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	req := p.recv(t)
	rsp := echoReply(req, STATUS_SUCCESS)
	rsp.Header().MessageId += 100
	p.send(t, rsp)

	err := <-errc
	var ierr *InvalidResponseError
	require.ErrorAs(t, err, &ierr)
}

func TestTimeoutCancelsAndDropsLateReply(t *testing.T) {
	conn, p := newPipeConn(t, 50*time.Millisecond)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	req := p.recv(t)

	// the caller gives up and sends CANCEL with the same msg id
	cancel := p.recv(t)
	cp := PacketCodec(cancel)
	assert.Equal(t, uint16(SMB2_CANCEL), cp.Command())
	assert.Equal(t, PacketCodec(req).MessageId(), cp.MessageId())

	err := <-errc
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	// the late reply is dropped without tearing the connection down
	p.send(t, echoReply(req, STATUS_CANCELLED))

	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()
	next := p.recv(t)
	p.send(t, echoReply(next, STATUS_SUCCESS))

	require.NoError(t, <-errc)
	assert.NoError(t, conn.getErr())
}

func TestPendingReplyIsNotFinal(t *testing.T) {
	conn, p := newPipeConn(t, time.Second)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	req := p.recv(t)

	interim := new(ErrorResponse)
	PrepareAsyncResponse(&interim.PacketHeader, req, 7, uint32(STATUS_PENDING))
	p.send(t, interim)

	rsp := new(EchoResponse)
	PrepareAsyncResponse(&rsp.PacketHeader, req, 7, uint32(STATUS_SUCCESS))
	rsp.CreditRequestResponse = 1
	p.send(t, rsp)

	require.NoError(t, <-errc)
}

func TestStatusErrorKeepsConnection(t *testing.T) {
	conn, p := newPipeConn(t, time.Second)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	req := p.recv(t)
	p.send(t, echoReply(req, STATUS_ACCESS_DENIED))

	err := <-errc
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NotErrorIs(t, err, ErrServer)
	assert.NoError(t, conn.getErr())
}

func TestPeerCloseFailsPending(t *testing.T) {
	c1, c2 := net.Pipe()
	conn := newConn(Direct(c1), openAccount(clientMaxCreditBalance), time.Second)
	defer conn.close()

	p := &peer{t: Direct(c2)}

	errc := make(chan error, 1)
	go func() {
		_, err := conn.sendRecv(SMB2_ECHO, new(EchoRequest), nil, context.Background())
		errc <- err
	}()

	p.recv(t)
	c2.Close()

	err := <-errc
	assert.ErrorIs(t, err, ErrIO)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
}
