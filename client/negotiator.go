package smb2

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/macos-fuse-t/smbclient/internal/spnego"
	log "github.com/sirupsen/logrus"
)

// Negotiator contains options for func (*Dialer) Dial.
type Negotiator struct {
	RequireMessageSigning bool     // enforce signing?
	ClientGuid            [16]byte // if it's zero, generated by crypto/rand.
	MinDialect            uint16   // if it's zero, SMB202 is used.
	MaxDialect            uint16   // if it's zero, SMB311 is used.
}

func (n *Negotiator) dialects() ([]uint16, error) {
	min, max := n.MinDialect, n.MaxDialect
	if min == 0 {
		min = SMB202
	}
	if max == 0 {
		max = SMB311
	}

	var ds []uint16
	for _, d := range clientDialects {
		if d >= min && d <= max {
			ds = append(ds, d)
		}
	}
	if len(ds) == 0 {
		return nil, &InternalError{fmt.Sprintf("empty dialect range %s..%s", DialectName(min), DialectName(max))}
	}
	return ds, nil
}

func (n *Negotiator) makeRequest() (*NegotiateRequest, error) {
	req := new(NegotiateRequest)

	if n.RequireMessageSigning {
		req.SecurityMode = SMB2_NEGOTIATE_SIGNING_REQUIRED
	} else {
		req.SecurityMode = SMB2_NEGOTIATE_SIGNING_ENABLED
	}

	req.Capabilities = clientCapabilities

	if n.ClientGuid == zero {
		_, err := rand.Read(req.ClientGuid[:])
		if err != nil {
			return nil, &InternalError{err.Error()}
		}
	} else {
		req.ClientGuid = n.ClientGuid
	}

	dialects, err := n.dialects()
	if err != nil {
		return nil, err
	}
	req.Dialects = dialects

	if dialects[len(dialects)-1] == SMB311 {
		hc := &HashContext{
			HashAlgorithms: clientHashAlgorithms,
			HashSalt:       make([]byte, 32),
		}
		if _, err := rand.Read(hc.HashSalt); err != nil {
			return nil, &InternalError{err.Error()}
		}
		req.Contexts = append(req.Contexts, hc)
	}

	return req, nil
}

func (n *Negotiator) negotiate(t Transport, a *account, timeout time.Duration, ctx context.Context) (*conn, error) {
	conn := newConn(t, a, timeout)

	if err := n.run(conn, ctx); err != nil {
		conn.close()
		return nil, err
	}

	return conn, nil
}

func (n *Negotiator) run(conn *conn, ctx context.Context) error {
	req, err := n.makeRequest()
	if err != nil {
		return err
	}

	req.CreditRequestResponse = conn.account.initRequest()

	if conn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conn.timeout)
		defer cancel()
	}

	rr, err := conn.send(req, nil, ctx)
	if err != nil {
		return err
	}

	pkt, err := conn.recv(rr)
	if err != nil {
		return err
	}

	res, err := accept(SMB2_NEGOTIATE, pkt)
	if err != nil {
		var rerr *ResponseError
		if errors.As(err, &rerr) {
			return fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
		}
		return err
	}

	r := NegotiateResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken negotiate response format"}
	}

	dialect := r.DialectRevision()

	offered := false
	for _, d := range req.Dialects {
		if d == dialect {
			offered = true
			break
		}
	}
	if !offered {
		return fmt.Errorf("%w: server selected %s (0x%x)", ErrProtocolMismatch, DialectName(dialect), dialect)
	}

	conn.dialect = dialect
	conn.maxTransactSize = r.MaxTransactSize()
	conn.maxReadSize = r.MaxReadSize()
	conn.maxWriteSize = r.MaxWriteSize()
	conn.capabilities = clientCapabilities & r.Capabilities()
	conn.requireSigning = n.RequireMessageSigning || r.SecurityMode()&SMB2_NEGOTIATE_SIGNING_REQUIRED != 0
	conn.gssNegotiateToken = r.SecurityBuffer()

	if dialect == SMB311 {
		if err := conn.acceptNegotiateContexts(r); err != nil {
			return err
		}

		conn.calcPreauthHash(rr.pkt)
		conn.calcPreauthHash(pkt)
	}

	if len(conn.gssNegotiateToken) > 0 {
		if hint, err := spnego.DecodeNegTokenInit(conn.gssNegotiateToken); err != nil {
			log.Debugf("ignore negotiate hint: %v", err)
		} else if !spnego.HasMech(hint.MechTypes, spnego.NlmpOid) {
			log.Warnf("server does not advertise NTLM")
		}
	}

	log.Debugf("negotiated %s, signing required: %v", DialectName(dialect), conn.requireSigning)

	return nil
}

func (conn *conn) acceptNegotiateContexts(r NegotiateResponseDecoder) error {
	list := r.NegotiateContextList()

	for count := r.NegotiateContextCount(); count > 0; count-- {
		ctx := NegotiateContextDecoder(list)
		if ctx.IsInvalid() {
			return &InvalidResponseError{"broken negotiate context format"}
		}

		switch ctx.ContextType() {
		case SMB2_PREAUTH_INTEGRITY_CAPABILITIES:
			d := HashContextDataDecoder(ctx.Data())
			if d.IsInvalid() {
				return &InvalidResponseError{"broken hash context format"}
			}

			algs := d.HashAlgorithms()
			if len(algs) != 1 || algs[0] != SHA512 {
				return &InvalidResponseError{"unsupported preauth integrity hash"}
			}
			conn.preauthIntegrityHashId = algs[0]
		case SMB2_ENCRYPTION_CAPABILITIES:
			return fmt.Errorf("%w: server selected a cipher", ErrProtocolMismatch)
		}

		next := ctx.Next()
		if next >= len(list) {
			break
		}
		list = list[next:]
	}

	if conn.preauthIntegrityHashId != SHA512 {
		return &InvalidResponseError{"missing preauth integrity context"}
	}

	return nil
}

func (conn *conn) calcPreauthHash(pkt []byte) {
	h := sha512.New()
	h.Write(conn.preauthIntegrityHashValue[:])
	h.Write(pkt)
	h.Sum(conn.preauthIntegrityHashValue[:0])
}
