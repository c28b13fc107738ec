package smb2

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/macos-fuse-t/smbclient/internal/crypto/cmac"
	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

var zero [16]byte

type session struct {
	conn                      *conn
	sessionFlags              uint16
	sessionId                 uint64
	preauthIntegrityHashValue [64]byte

	signer   hash.Hash
	verifier hash.Hash

	user string
}

func (s *session) sign(pkt []byte) []byte {
	p := PacketCodec(pkt)

	p.SetFlags(p.Flags() | SMB2_FLAGS_SIGNED)

	h := s.signer

	h.Reset()

	h.Write(pkt)

	p.SetSignature(h.Sum(nil))

	return pkt
}

func (s *session) verify(pkt []byte) (ok bool) {
	p := PacketCodec(pkt)

	signature := append([]byte{}, p.Signature()...)

	p.SetSignature(zero[:])

	h := s.verifier

	h.Reset()

	h.Write(pkt)

	p.SetSignature(h.Sum(nil))

	return bytes.Equal(signature, p.Signature())
}

func (s *session) isGuest() bool {
	return s.sessionFlags&(SMB2_SESSION_FLAG_IS_GUEST|SMB2_SESSION_FLAG_IS_NULL) != 0
}

func (s *session) calcPreauthHash(pkt []byte) {
	h := sha512.New()
	h.Write(s.preauthIntegrityHashValue[:])
	h.Write(pkt)
	h.Sum(s.preauthIntegrityHashValue[:0])
}

func (s *session) deriveSigner(sessionKey []byte) error {
	switch s.conn.dialect {
	case SMB202, SMB210:
		s.signer = hmac.New(sha256.New, sessionKey)
		s.verifier = hmac.New(sha256.New, sessionKey)
	case SMB300, SMB302, SMB311:
		var signingKey []byte
		if s.conn.dialect == SMB311 {
			signingKey = KDF(sessionKey, LabelSigningKey311, s.preauthIntegrityHashValue[:])
		} else {
			signingKey = KDF(sessionKey, LabelSMB2AESCMAC, ContextSmbSign)
		}

		ciph, err := aes.NewCipher(signingKey)
		if err != nil {
			return &InternalError{err.Error()}
		}
		s.signer = cmac.New(ciph)
		s.verifier = cmac.New(ciph)
	default:
		return &InternalError{fmt.Sprintf("unsupported dialect 0x%x", s.conn.dialect)}
	}
	return nil
}

func (s *session) securityMode() uint8 {
	if s.conn.requireSigning {
		return SMB2_NEGOTIATE_SIGNING_REQUIRED
	}
	return SMB2_NEGOTIATE_SIGNING_ENABLED
}

func sessionSetup(conn *conn, i Initiator, disallowGuest bool, ctx context.Context) (*session, error) {
	spnego := newSpnegoClient([]Initiator{i})

	if conn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conn.timeout)
		defer cancel()
	}

	s := &session{
		conn:                      conn,
		preauthIntegrityHashValue: conn.preauthIntegrityHashValue,
		user:                      i.user(),
	}

	outputToken, err := spnego.initSecContext()
	if err != nil {
		return nil, &InvalidResponseError{err.Error()}
	}

	req := &SessionSetupRequest{
		SecurityMode:   s.securityMode(),
		Capabilities:   conn.capabilities,
		SecurityBuffer: outputToken,
	}

	rr, err := conn.send(req, nil, ctx)
	if err != nil {
		return nil, err
	}

	pkt, err := conn.recv(rr)
	if err != nil {
		return nil, err
	}

	res, err := accept(SMB2_SESSION_SETUP, pkt)
	if err != nil {
		return nil, newAuthError(i.anonymous(), err)
	}

	p := PacketCodec(pkt)
	if NtStatus(p.Status()) != STATUS_MORE_PROCESSING_REQUIRED {
		return nil, &InvalidResponseError{"session setup completed without a challenge"}
	}

	r := SessionSetupResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken session setup response format"}
	}

	s.sessionId = p.SessionId()

	if conn.dialect == SMB311 {
		s.calcPreauthHash(rr.pkt)
		s.calcPreauthHash(pkt)
	}

	outputToken, err = spnego.acceptSecContext(r.SecurityBuffer())
	if err != nil {
		return nil, &InvalidResponseError{err.Error()}
	}

	req = &SessionSetupRequest{
		SecurityMode:   s.securityMode(),
		Capabilities:   conn.capabilities,
		SecurityBuffer: outputToken,
	}
	req.SessionId = s.sessionId

	rr, err = conn.send(req, nil, ctx)
	if err != nil {
		return nil, err
	}

	if conn.dialect == SMB311 {
		s.calcPreauthHash(rr.pkt)
	}

	pkt, err = conn.recv(rr)
	if err != nil {
		return nil, err
	}

	res, err = accept(SMB2_SESSION_SETUP, pkt)
	if err != nil {
		return nil, newAuthError(i.anonymous(), err)
	}

	r = SessionSetupResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken session setup response format"}
	}

	s.sessionFlags = r.SessionFlags()

	if s.sessionFlags&SMB2_SESSION_FLAG_ENCRYPT_DATA != 0 {
		return nil, fmt.Errorf("%w: server requires encryption", ErrProtocolMismatch)
	}

	if s.isGuest() {
		if disallowGuest {
			return nil, &AuthError{Reason: GuestNotPermitted}
		}
	} else {
		if err := s.deriveSigner(spnego.sessionKey()); err != nil {
			return nil, err
		}

		p = PacketCodec(pkt)
		if p.Flags()&SMB2_FLAGS_SIGNED != 0 {
			if !s.verify(pkt) {
				return nil, &InvalidResponseError{"unverified session setup response"}
			}
		} else if conn.requireSigning {
			return nil, &InvalidResponseError{"signing required"}
		}
	}

	log.Debugf("session 0x%x established for %q (flags 0x%x)", s.sessionId, s.user, s.sessionFlags)

	conn.session = s
	conn.enableSession()

	return s, nil
}

func (s *session) logoff(ctx context.Context) error {
	req := new(LogoffRequest)

	res, err := s.conn.sendRecv(SMB2_LOGOFF, req, nil, ctx)
	if err != nil {
		return err
	}

	r := LogoffResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken logoff response format"}
	}

	s.conn.resetSession()

	return nil
}
