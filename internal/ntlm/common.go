// Package ntlm implements the NTLMv2 exchange used inside SPNEGO.
package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/md4"

	"github.com/macos-fuse-t/smbclient/internal/utf16le"
)

var le = binary.LittleEndian

var signature = []byte("NTLMSSP\x00")

// Message types
const (
	NtLmNegotiate    = 0x00000001
	NtLmChallenge    = 0x00000002
	NtLmAuthenticate = 0x00000003
)

// Negotiate flags
const (
	NTLMSSP_NEGOTIATE_UNICODE = 1 << iota
	NTLM_NEGOTIATE_OEM
	NTLMSSP_REQUEST_TARGET
	_
	NTLMSSP_NEGOTIATE_SIGN
	NTLMSSP_NEGOTIATE_SEAL
	NTLMSSP_NEGOTIATE_DATAGRAM
	NTLMSSP_NEGOTIATE_LM_KEY
	_
	NTLMSSP_NEGOTIATE_NTLM
	_
	NTLMSSP_ANONYMOUS
	NTLMSSP_NEGOTIATE_OEM_DOMAIN_SUPPLIED
	NTLMSSP_NEGOTIATE_OEM_WORKSTATION_SUPPLIED
	_
	NTLMSSP_NEGOTIATE_ALWAYS_SIGN
	NTLMSSP_TARGET_TYPE_DOMAIN
	NTLMSSP_TARGET_TYPE_SERVER
	_
	NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY
	NTLMSSP_NEGOTIATE_IDENTIFY
	_
	NTLMSSP_REQUEST_NON_NT_SESSION_KEY
	NTLMSSP_NEGOTIATE_TARGET_INFO
	_
	NTLMSSP_NEGOTIATE_VERSION
	_
	_
	_
	NTLMSSP_NEGOTIATE_128
	NTLMSSP_NEGOTIATE_KEY_EXCH
	NTLMSSP_NEGOTIATE_56
)

// AV pair ids
const (
	MsvAvEOL = iota
	MsvAvNbComputerName
	MsvAvNbDomainName
	MsvAvDnsComputerName
	MsvAvDnsDomainName
	MsvAvDnsTreeName
	MsvAvFlags
	MsvAvTimestamp
)

var (
	ErrInvalidMessage  = errors.New("ntlm: invalid message")
	ErrLogonFailure    = errors.New("ntlm: logon failure")
	ErrAnonymousDenied = errors.New("ntlm: anonymous logon not permitted")
)

// version is the 8-byte VERSION structure; 10.0 build 0, NTLM revision 15.
var version = [8]byte{10, 0, 0, 0, 0, 0, 0, 15}

func ntowfv2(user, password, domain string) []byte {
	h := md4.New()
	h.Write(utf16le.EncodeStringToBytes(password))
	hash := h.Sum(nil)

	mac := hmac.New(md5.New, hash)
	mac.Write(utf16le.EncodeStringToBytes(strings.ToUpper(user) + domain))
	return mac.Sum(nil)
}

func hmacMD5(key []byte, data ...[]byte) []byte {
	mac := hmac.New(md5.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

func rc4XOR(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// field reads a (len, maxlen, offset) security buffer descriptor.
func field(msg []byte, off int) ([]byte, bool) {
	if len(msg) < off+8 {
		return nil, false
	}
	l := int(le.Uint16(msg[off : off+2]))
	o := int(le.Uint32(msg[off+4 : off+8]))
	if l == 0 {
		return nil, true
	}
	if o < 0 || len(msg) < o+l {
		return nil, false
	}
	return msg[o : o+l], true
}

func putField(msg []byte, off int, payloadOff int, data []byte) int {
	le.PutUint16(msg[off:off+2], uint16(len(data)))
	le.PutUint16(msg[off+2:off+4], uint16(len(data)))
	le.PutUint32(msg[off+4:off+8], uint32(payloadOff))
	copy(msg[payloadOff:], data)
	return payloadOff + len(data)
}

func checkHeader(msg []byte, typ uint32) bool {
	if len(msg) < 12 {
		return false
	}
	for i, b := range signature {
		if msg[i] != b {
			return false
		}
	}
	return le.Uint32(msg[8:12]) == typ
}

type avPair struct {
	id    uint16
	value []byte
}

func encodeAvPairs(pairs []avPair) []byte {
	size := 4
	for _, p := range pairs {
		size += 4 + len(p.value)
	}
	bs := make([]byte, size)
	off := 0
	for _, p := range pairs {
		le.PutUint16(bs[off:off+2], p.id)
		le.PutUint16(bs[off+2:off+4], uint16(len(p.value)))
		copy(bs[off+4:], p.value)
		off += 4 + len(p.value)
	}
	// MsvAvEOL is already zeroed
	return bs
}

func lookupAvPair(info []byte, id uint16) ([]byte, bool) {
	for len(info) >= 4 {
		aid := le.Uint16(info[:2])
		l := int(le.Uint16(info[2:4]))
		if aid == MsvAvEOL || len(info) < 4+l {
			return nil, false
		}
		if aid == id {
			return info[4 : 4+l], true
		}
		info = info[4+l:]
	}
	return nil, false
}

func filetime(t time.Time) []byte {
	bs := make([]byte, 8)
	le.PutUint64(bs, uint64(t.UnixNano()/100+116444736000000000))
	return bs
}

// Session is the outcome of a completed exchange.
type Session struct {
	user        string
	domain      string
	sessionKey  []byte
	isAnonymous bool
	isGuest     bool
}

func (s *Session) User() string {
	return s.user
}

func (s *Session) Domain() string {
	return s.domain
}

// SessionKey returns the exported session key; nil for anonymous and guest logons.
func (s *Session) SessionKey() []byte {
	return s.sessionKey
}

func (s *Session) IsAnonymous() bool {
	return s.isAnonymous
}

func (s *Session) IsGuest() bool {
	return s.isGuest
}
