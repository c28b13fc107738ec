package smb2

import (
	"encoding/asn1"

	"github.com/macos-fuse-t/smbclient/internal/ntlm"
	"github.com/macos-fuse-t/smbclient/internal/spnego"
)

// Initiator is the client side of one GSS mechanism.
type Initiator interface {
	oid() asn1.ObjectIdentifier
	initSecContext() ([]byte, error)            // GSS_Init_sec_context
	acceptSecContext(sc []byte) ([]byte, error) // GSS_Init_sec_context
	sessionKey() []byte
	anonymous() bool
	user() string
}

// NTLMInitiator implements session-setup through NTLMv2.
// An empty User authenticates anonymously.
type NTLMInitiator struct {
	User        string
	Password    string
	Domain      string
	Workstation string

	ntlm *ntlm.Client
}

func (i *NTLMInitiator) oid() asn1.ObjectIdentifier {
	return spnego.NlmpOid
}

func (i *NTLMInitiator) initSecContext() ([]byte, error) {
	i.ntlm = &ntlm.Client{
		User:        i.User,
		Password:    i.Password,
		Domain:      i.Domain,
		Workstation: i.Workstation,
	}
	nmsg, err := i.ntlm.Negotiate()
	if err != nil {
		return nil, err
	}
	return nmsg, nil
}

func (i *NTLMInitiator) acceptSecContext(sc []byte) ([]byte, error) {
	amsg, err := i.ntlm.Authenticate(sc)
	if err != nil {
		return nil, err
	}
	return amsg, nil
}

func (i *NTLMInitiator) sessionKey() []byte {
	if s := i.ntlm.Session(); s != nil {
		return s.SessionKey()
	}
	return nil
}

func (i *NTLMInitiator) anonymous() bool {
	return i.User == ""
}

func (i *NTLMInitiator) user() string {
	if i.User == "" {
		return "anonymous"
	}
	if i.Domain != "" {
		return i.Domain + `\` + i.User
	}
	return i.User
}
