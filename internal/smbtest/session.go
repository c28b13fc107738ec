package smbtest

import (
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/macos-fuse-t/smbclient/internal/crypto/cmac"
	. "github.com/macos-fuse-t/smbclient/internal/erref"
	"github.com/macos-fuse-t/smbclient/internal/ntlm"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

var ntlmOid = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}

var supportedDialects = []uint16{SMB202, SMB210, SMB300, SMB302, SMB311}

var zero [16]byte

type session struct {
	sessionId    uint64
	sessionFlags uint16
	user         string

	signer   hash.Hash
	verifier hash.Hash
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

func (s *session) verify(pkt []byte) bool {
	p := PacketCodec(pkt)

	signature := append([]byte{}, p.Signature()...)

	p.SetSignature(zero[:])

	h := s.verifier

	h.Reset()

	h.Write(pkt)

	p.SetSignature(h.Sum(nil))

	return bytes.Equal(signature, p.Signature())
}

func (s *session) deriveSigner(dialect uint16, sessionKey []byte, preauth []byte) error {
	switch dialect {
	case SMB202, SMB210:
		s.signer = hmac.New(sha256.New, sessionKey)
		s.verifier = hmac.New(sha256.New, sessionKey)
	default:
		var signingKey []byte
		if dialect == SMB311 {
			signingKey = KDF(sessionKey, LabelSigningKey311, preauth)
		} else {
			signingKey = KDF(sessionKey, LabelSMB2AESCMAC, ContextSmbSign)
		}
		ciph, err := aes.NewCipher(signingKey)
		if err != nil {
			return err
		}
		s.signer = cmac.New(ciph)
		s.verifier = cmac.New(ciph)
	}
	return nil
}

func (c *conn) selectDialect(offered []uint16) uint16 {
	if d := c.srv.opts.Dialect; d != 0 {
		return d
	}

	selected := uint16(UnknownSMB)
	for _, d := range offered {
		if d > c.srv.opts.MaxDialect || d <= selected {
			continue
		}
		for _, s := range supportedDialects {
			if d == s {
				selected = d
			}
		}
	}
	return selected
}

func (c *conn) negotiate(pkt []byte) (Packet, NtStatus) {
	r := NegotiateRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	c.m.Lock()
	state := c.state
	c.m.Unlock()

	if state != stateNegotiate {
		return nil, STATUS_REQUEST_NOT_ACCEPTED
	}

	dialect := c.selectDialect(r.Dialects())
	if dialect == UnknownSMB {
		log.Debugf("smbtest: no common dialect in %x", r.Dialects())
		return nil, STATUS_NOT_SUPPORTED
	}

	rsp := &NegotiateResponse{
		DialectRevision: dialect,
		ServerGuid:      c.srv.guid,
		Capabilities:    serverCapabilities,
		MaxTransactSize: serverMaxTransactSize,
		MaxReadSize:     serverMaxReadSize,
		MaxWriteSize:    serverMaxWriteSize,
		SystemTime:      TimeToFiletime(time.Now()),
		ServerStartTime: &Filetime{},
		SecurityBuffer:  negotiateHint(),
	}

	if c.srv.opts.RequireSigning {
		rsp.SecurityMode = SMB2_NEGOTIATE_SIGNING_REQUIRED
	} else {
		rsp.SecurityMode = SMB2_NEGOTIATE_SIGNING_ENABLED
	}

	if dialect == SMB311 {
		if err := checkPreauthContext(r); err != nil {
			log.Debugf("smbtest: %v", err)
			return nil, STATUS_INVALID_PARAMETER
		}

		hc := &HashContext{
			HashAlgorithms: []uint16{SHA512},
			HashSalt:       make([]byte, 32),
		}
		rand.Read(hc.HashSalt)
		rsp.Contexts = []Encoder{hc}
	}

	c.m.Lock()
	c.dialect = dialect
	c.requireSigning = c.srv.opts.RequireSigning || r.SecurityMode()&SMB2_NEGOTIATE_SIGNING_REQUIRED != 0
	if dialect == SMB311 {
		c.calcPreauthHash(pkt)
	}
	c.state = stateSessionSetup
	c.m.Unlock()

	return rsp, STATUS_SUCCESS
}

// checkPreauthContext requires SHA-512 among the offered pre-auth hashes
// when the client offered 3.1.1 at all.
func checkPreauthContext(r NegotiateRequestDecoder) error {
	offered := false
	for _, d := range r.Dialects() {
		if d == SMB311 {
			offered = true
		}
	}
	if !offered {
		return nil
	}

	list := r.NegotiateContextList()
	for count := r.NegotiateContextCount(); count > 0; count-- {
		ctx := NegotiateContextDecoder(list)
		if ctx.IsInvalid() {
			return errors.New("broken negotiate context")
		}

		if ctx.ContextType() == SMB2_PREAUTH_INTEGRITY_CAPABILITIES {
			d := HashContextDataDecoder(ctx.Data())
			if d.IsInvalid() {
				return errors.New("broken hash context")
			}
			for _, alg := range d.HashAlgorithms() {
				if alg == SHA512 {
					return nil
				}
			}
			return errors.New("no supported preauth hash")
		}

		next := ctx.Next()
		if next >= len(list) {
			break
		}
		list = list[next:]
	}

	return errors.New("missing preauth integrity context")
}

// negotiateHint is the SPNEGO token advertised in the NEGOTIATE reply.
func negotiateHint() []byte {
	tok := spnego.SPNEGOToken{
		Init: true,
		NegTokenInit: spnego.NegTokenInit{
			MechTypes: []asn1.ObjectIdentifier{ntlmOid},
		},
	}
	bs, err := tok.Marshal()
	if err != nil {
		log.Warnf("smbtest: negotiate hint: %v", err)
		return nil
	}
	return bs
}

func (c *conn) sessionSetup(pkt []byte) (Packet, NtStatus) {
	p := PacketCodec(pkt)

	r := SessionSetupRequestDecoder(p.Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	c.m.Lock()
	state := c.state
	c.m.Unlock()

	switch state {
	case stateSessionSetup:
		return c.sessionSetupNegotiate(pkt, r)
	case stateSessionSetupChallenge:
		if p.SessionId() != c.setupSid {
			return nil, STATUS_USER_SESSION_DELETED
		}
		return c.sessionSetupAuthenticate(pkt, r)
	}

	return nil, STATUS_REQUEST_NOT_ACCEPTED
}

func (c *conn) sessionSetupNegotiate(pkt []byte, r SessionSetupRequestDecoder) (Packet, NtStatus) {
	var tok spnego.SPNEGOToken
	if err := tok.Unmarshal(r.SecurityBuffer()); err != nil || !tok.Init {
		log.Debugf("smbtest: bad negTokenInit: %v", err)
		return nil, STATUS_INVALID_PARAMETER
	}

	found := false
	for _, mech := range tok.NegTokenInit.MechTypes {
		if mech.Equal(ntlmOid) {
			found = true
		}
	}
	if !found {
		return nil, STATUS_NOT_SUPPORTED
	}

	c.ntlm = ntlm.NewServer("smbtest")
	for u, pw := range c.srv.opts.Accounts {
		c.ntlm.AddAccount(u, pw)
	}
	c.ntlm.AllowGuest(c.srv.opts.AllowGuest)

	cmsg, err := c.ntlm.Challenge(tok.NegTokenInit.MechTokenBytes)
	if err != nil {
		log.Debugf("smbtest: challenge: %v", err)
		return nil, STATUS_INVALID_PARAMETER
	}

	out, err := (&spnego.SPNEGOToken{
		Resp: true,
		NegTokenResp: spnego.NegTokenResp{
			NegState:      asn1.Enumerated(spnego.NegStateAcceptIncomplete),
			SupportedMech: ntlmOid,
			ResponseToken: cmsg,
		},
	}).Marshal()
	if err != nil {
		return nil, STATUS_INSUFFICIENT_RESOURCES
	}

	var b [8]byte
	rand.Read(b[:])
	c.setupSid = binary.LittleEndian.Uint64(b[:]) | 1

	c.m.Lock()
	if c.dialect == SMB311 {
		if c.haveConnPreauth {
			c.preauthIntegrityHashValue = c.connPreauth
		} else {
			c.connPreauth = c.preauthIntegrityHashValue
			c.haveConnPreauth = true
		}
		c.calcPreauthHash(pkt)
	}
	c.state = stateSessionSetupChallenge
	c.m.Unlock()

	rsp := &SessionSetupResponse{
		SecurityBuffer: out,
	}
	rsp.SessionId = c.setupSid

	return rsp, STATUS_MORE_PROCESSING_REQUIRED
}

func (c *conn) sessionSetupAuthenticate(pkt []byte, r SessionSetupRequestDecoder) (Packet, NtStatus) {
	c.m.Lock()
	if c.dialect == SMB311 {
		c.calcPreauthHash(pkt)
	}
	preauth := c.preauthIntegrityHashValue
	dialect := c.dialect
	c.m.Unlock()

	var tok spnego.SPNEGOToken
	if err := tok.Unmarshal(r.SecurityBuffer()); err != nil || !tok.Resp {
		log.Debugf("smbtest: bad negTokenResp: %v", err)
		return c.failSetup(STATUS_INVALID_PARAMETER)
	}

	if err := c.ntlm.Authenticate(tok.NegTokenResp.ResponseToken); err != nil {
		log.Debugf("smbtest: authenticate: %v", err)
		switch {
		case errors.Is(err, ntlm.ErrAnonymousDenied):
			return c.failSetup(STATUS_ACCESS_DENIED)
		case errors.Is(err, ntlm.ErrLogonFailure):
			return c.failSetup(STATUS_LOGON_FAILURE)
		}
		return c.failSetup(STATUS_INVALID_PARAMETER)
	}

	ns := c.ntlm.Session()

	s := &session{
		sessionId: c.setupSid,
		user:      ns.User(),
	}

	switch {
	case ns.IsAnonymous():
		s.sessionFlags = SMB2_SESSION_FLAG_IS_NULL
	case ns.IsGuest():
		s.sessionFlags = SMB2_SESSION_FLAG_IS_GUEST
	default:
		if err := s.deriveSigner(dialect, ns.SessionKey(), preauth[:]); err != nil {
			return c.failSetup(STATUS_INSUFFICIENT_RESOURCES)
		}
	}

	out, err := (&spnego.SPNEGOToken{
		Resp: true,
		NegTokenResp: spnego.NegTokenResp{
			NegState:      asn1.Enumerated(spnego.NegStateAcceptCompleted),
			SupportedMech: ntlmOid,
		},
	}).Marshal()
	if err != nil {
		return c.failSetup(STATUS_INSUFFICIENT_RESOURCES)
	}

	c.m.Lock()
	c.session = s
	c.state = stateSessionActive
	c.m.Unlock()

	log.Debugf("smbtest: session 0x%x for %q (flags 0x%x)", s.sessionId, s.user, s.sessionFlags)

	rsp := &SessionSetupResponse{
		SessionFlags:   s.sessionFlags,
		SecurityBuffer: out,
	}
	rsp.SessionId = s.sessionId

	return rsp, STATUS_SUCCESS
}

// failSetup rewinds to the first leg so the client may retry.
func (c *conn) failSetup(status NtStatus) (Packet, NtStatus) {
	c.m.Lock()
	c.state = stateSessionSetup
	c.m.Unlock()

	rsp := new(ErrorResponse)
	rsp.SessionId = c.setupSid

	return rsp, status
}

func (c *conn) logoff(pkt []byte) (Packet, NtStatus) {
	for id := range c.handles {
		c.release(id)
	}
	c.trees = make(map[uint32]*fileTree)

	// c.session stays so the reply is still signed
	c.m.Lock()
	c.state = stateSessionSetup
	c.m.Unlock()

	return new(LogoffResponse), STATUS_SUCCESS
}
