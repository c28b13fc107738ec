package ntlm

import (
	"crypto/hmac"
	"crypto/rand"
	"strings"
	"time"

	"github.com/macos-fuse-t/smbclient/internal/utf16le"
)

// Server is the accepting side of one exchange. It is not safe for concurrent use.
type Server struct {
	targetName string
	accounts   map[string]string
	allowGuest bool

	nflags  uint32
	cmsg    []byte
	session *Session
}

func NewServer(targetName string) *Server {
	return &Server{
		targetName: targetName,
		accounts:   make(map[string]string),
	}
}

func (s *Server) AddAccount(user, password string) {
	s.accounts[strings.ToLower(user)] = password
}

// AllowGuest admits anonymous logons and unknown users as guest.
func (s *Server) AllowGuest(allow bool) {
	s.allowGuest = allow
}

// Challenge consumes a NEGOTIATE_MESSAGE and returns the CHALLENGE_MESSAGE.
func (s *Server) Challenge(nmsg []byte) ([]byte, error) {
	if !checkHeader(nmsg, NtLmNegotiate) || len(nmsg) < 16 {
		return nil, ErrInvalidMessage
	}

	s.nflags = le.Uint32(nmsg[12:16])

	target := utf16le.EncodeStringToBytes(strings.ToUpper(s.targetName))
	targetInfo := encodeAvPairs([]avPair{
		{MsvAvNbDomainName, target},
		{MsvAvNbComputerName, target},
		{MsvAvDnsDomainName, target},
		{MsvAvDnsComputerName, target},
		{MsvAvTimestamp, filetime(time.Now())},
	})

	cmsg := make([]byte, 56+len(target)+len(targetInfo))
	copy(cmsg, signature)
	le.PutUint32(cmsg[8:12], NtLmChallenge)

	flags := s.nflags&defaultClientFlags | NTLMSSP_TARGET_TYPE_SERVER | NTLMSSP_NEGOTIATE_TARGET_INFO
	le.PutUint32(cmsg[20:24], flags)

	if _, err := rand.Read(cmsg[24:32]); err != nil {
		return nil, err
	}

	off := putField(cmsg, 12, 56, target)
	putField(cmsg, 40, off, targetInfo)
	copy(cmsg[48:56], version[:])

	s.cmsg = cmsg
	return cmsg, nil
}

// Authenticate verifies an AUTHENTICATE_MESSAGE against the challenge sent earlier.
func (s *Server) Authenticate(amsg []byte) error {
	if s.cmsg == nil || !checkHeader(amsg, NtLmAuthenticate) || len(amsg) < 64 {
		return ErrInvalidMessage
	}

	lm, ok1 := field(amsg, 12)
	nt, ok2 := field(amsg, 20)
	domain, ok3 := field(amsg, 28)
	user, ok4 := field(amsg, 36)
	encryptedKey, ok5 := field(amsg, 52)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return ErrInvalidMessage
	}
	_ = lm

	flags := le.Uint32(amsg[60:64])
	userName := utf16le.DecodeToString(user)
	domainName := utf16le.DecodeToString(domain)

	if userName == "" && len(nt) == 0 {
		if !s.allowGuest {
			return ErrAnonymousDenied
		}
		s.session = &Session{isAnonymous: true, isGuest: true}
		return nil
	}

	password, known := s.accounts[strings.ToLower(userName)]
	if !known {
		if !s.allowGuest {
			return ErrLogonFailure
		}
		s.session = &Session{user: userName, domain: domainName, isGuest: true}
		return nil
	}

	if len(nt) < 16+28 {
		return ErrLogonFailure
	}

	ntowf := ntowfv2(userName, password, domainName)
	ntProof := nt[:16]
	expected := hmacMD5(ntowf, s.cmsg[24:32], nt[16:])
	if !hmac.Equal(ntProof, expected) {
		return ErrLogonFailure
	}

	sessionKey := hmacMD5(ntowf, ntProof)
	if flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 && len(encryptedKey) == 16 {
		sessionKey = rc4XOR(sessionKey, encryptedKey)
	}

	s.session = &Session{
		user:       userName,
		domain:     domainName,
		sessionKey: sessionKey,
	}
	return nil
}

func (s *Server) Session() *Session {
	return s.session
}
