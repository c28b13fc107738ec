package ntlm

import (
	"crypto/rand"
	"time"

	"github.com/macos-fuse-t/smbclient/internal/utf16le"
)

const defaultClientFlags = NTLMSSP_NEGOTIATE_UNICODE |
	NTLMSSP_REQUEST_TARGET |
	NTLMSSP_NEGOTIATE_SIGN |
	NTLMSSP_NEGOTIATE_NTLM |
	NTLMSSP_NEGOTIATE_ALWAYS_SIGN |
	NTLMSSP_NEGOTIATE_EXTENDED_SESSIONSECURITY |
	NTLMSSP_NEGOTIATE_TARGET_INFO |
	NTLMSSP_NEGOTIATE_VERSION |
	NTLMSSP_NEGOTIATE_128 |
	NTLMSSP_NEGOTIATE_KEY_EXCH |
	NTLMSSP_NEGOTIATE_56

// Client is the initiating side. An empty User performs an anonymous logon.
type Client struct {
	User        string
	Password    string
	Domain      string
	Workstation string

	nmsg    []byte
	session *Session
}

// Negotiate returns the NEGOTIATE_MESSAGE.
func (c *Client) Negotiate() ([]byte, error) {
	//        NegotiateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-16: NegotiateFlags
	// 16-24: DomainNameFields
	// 24-32: WorkstationFields
	// 32-40: Version
	//   40-: Payload

	nmsg := make([]byte, 40)
	copy(nmsg, signature)
	le.PutUint32(nmsg[8:12], NtLmNegotiate)

	flags := uint32(defaultClientFlags)
	if c.User == "" {
		flags |= NTLMSSP_ANONYMOUS
	}
	le.PutUint32(nmsg[12:16], flags)
	copy(nmsg[32:40], version[:])

	c.nmsg = nmsg
	return nmsg, nil
}

// Authenticate consumes the server CHALLENGE_MESSAGE and returns the AUTHENTICATE_MESSAGE.
func (c *Client) Authenticate(cmsg []byte) ([]byte, error) {
	//       ChallengeMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: TargetNameFields
	// 20-24: NegotiateFlags
	// 24-32: ServerChallenge
	// 32-40: _
	// 40-48: TargetInfoFields
	// 48-56: Version
	//   56-: Payload

	if !checkHeader(cmsg, NtLmChallenge) || len(cmsg) < 48 {
		return nil, ErrInvalidMessage
	}

	flags := le.Uint32(cmsg[20:24]) & defaultClientFlags
	serverChallenge := cmsg[24:32]

	targetInfo, ok := field(cmsg, 40)
	if !ok {
		return nil, ErrInvalidMessage
	}

	var (
		lmResponse          []byte
		ntResponse          []byte
		encryptedSessionKey []byte
		sessionKey          []byte
	)

	anonymous := c.User == ""

	if anonymous {
		flags |= NTLMSSP_ANONYMOUS
		flags &^= NTLMSSP_NEGOTIATE_KEY_EXCH
		lmResponse = []byte{0}
	} else {
		ntowf := ntowfv2(c.User, c.Password, c.Domain)

		timestamp, ok := lookupAvPair(targetInfo, MsvAvTimestamp)
		if !ok {
			timestamp = filetime(time.Now())
		}

		clientChallenge := make([]byte, 8)
		if _, err := rand.Read(clientChallenge); err != nil {
			return nil, err
		}

		//  temp
		//   0-1: RespType
		//   1-2: HiRespType
		//   2-8: _
		//  8-16: TimeStamp
		// 16-24: ChallengeFromClient
		// 24-28: _
		//   28-: AvPairs, then 4 zero bytes
		temp := make([]byte, 28+len(targetInfo)+4)
		temp[0] = 1
		temp[1] = 1
		copy(temp[8:16], timestamp)
		copy(temp[16:24], clientChallenge)
		copy(temp[28:], targetInfo)

		ntProof := hmacMD5(ntowf, serverChallenge, temp)
		ntResponse = append(ntProof, temp...)
		lmResponse = make([]byte, 24)

		sessionBaseKey := hmacMD5(ntowf, ntProof)
		sessionKey = sessionBaseKey

		if flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
			exported := make([]byte, 16)
			if _, err := rand.Read(exported); err != nil {
				return nil, err
			}
			encryptedSessionKey = rc4XOR(sessionBaseKey, exported)
			sessionKey = exported
		}
	}

	domain := utf16le.EncodeStringToBytes(c.Domain)
	user := utf16le.EncodeStringToBytes(c.User)
	workstation := utf16le.EncodeStringToBytes(c.Workstation)

	//       AuthenticateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: LmChallengeResponseFields
	// 20-28: NtChallengeResponseFields
	// 28-36: DomainNameFields
	// 36-44: UserNameFields
	// 44-52: WorkstationFields
	// 52-60: EncryptedRandomSessionKeyFields
	// 60-64: NegotiateFlags
	// 64-72: Version
	//   72-: Payload

	size := 72 + len(lmResponse) + len(ntResponse) + len(domain) + len(user) + len(workstation) + len(encryptedSessionKey)
	amsg := make([]byte, size)
	copy(amsg, signature)
	le.PutUint32(amsg[8:12], NtLmAuthenticate)

	off := 72
	off = putField(amsg, 28, off, domain)
	off = putField(amsg, 36, off, user)
	off = putField(amsg, 44, off, workstation)
	off = putField(amsg, 12, off, lmResponse)
	off = putField(amsg, 20, off, ntResponse)
	putField(amsg, 52, off, encryptedSessionKey)

	le.PutUint32(amsg[60:64], flags)
	copy(amsg[64:72], version[:])

	c.session = &Session{
		user:        c.User,
		domain:      c.Domain,
		sessionKey:  sessionKey,
		isAnonymous: anonymous,
	}

	return amsg, nil
}

// Session is nil until Authenticate succeeds.
func (c *Client) Session() *Session {
	return c.session
}
