// Package spnego encodes the SPNEGO tokens carried in SESSION_SETUP.
package spnego

import (
	"encoding/asn1"
	"errors"

	"github.com/geoffgarside/ber"
)

var (
	SpnegoOid     = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 5, 5, 2})
	MsKerberosOid = asn1.ObjectIdentifier([]int{1, 2, 840, 48018, 1, 2, 2})
	KerberosOid   = asn1.ObjectIdentifier([]int{1, 2, 840, 113554, 1, 2, 2})
	NlmpOid       = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 4, 1, 311, 2, 2, 10})
)

// NegState values
const (
	AcceptCompleted  = 0
	AcceptIncomplete = 1
	Reject           = 2
	RequestMIC       = 3
)

var ErrInvalidToken = errors.New("spnego: invalid token")

// initialContextToken ::= [APPLICATION 0] IMPLICIT SEQUENCE {
//   thisMech          MechType
//   innerContextToken negotiateToken
// }
type initialContextToken struct {
	ThisMech asn1.ObjectIdentifier
	Init     asn1.RawValue
}

type NegTokenInit struct {
	MechTypes   []asn1.ObjectIdentifier `asn1:"explicit,tag:0"`
	ReqFlags    asn1.BitString          `asn1:"explicit,optional,tag:1"`
	MechToken   []byte                  `asn1:"explicit,optional,tag:2"`
	MechListMIC []byte                  `asn1:"explicit,optional,tag:3"`
}

// negTokenInit2 is the server hint form; [3] carries negHints there.
type negTokenInit2 struct {
	MechTypes   []asn1.ObjectIdentifier `asn1:"explicit,optional,tag:0"`
	ReqFlags    asn1.BitString          `asn1:"explicit,optional,tag:1"`
	MechToken   []byte                  `asn1:"explicit,optional,tag:2"`
	NegHints    asn1.RawValue           `asn1:"explicit,optional,tag:3"`
	MechListMIC []byte                  `asn1:"explicit,optional,tag:4"`
}

type NegTokenResp struct {
	NegState      asn1.Enumerated       `asn1:"explicit,optional,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"explicit,optional,tag:1"`
	ResponseToken []byte                `asn1:"explicit,optional,tag:2"`
	MechListMIC   []byte                `asn1:"explicit,optional,tag:3"`
}

// EncodeNegTokenInit wraps token in a GSS-API InitialContextToken.
func EncodeNegTokenInit(types []asn1.ObjectIdentifier, token []byte) ([]byte, error) {
	inner, err := asn1.Marshal(NegTokenInit{
		MechTypes: types,
		MechToken: token,
	})
	if err != nil {
		return nil, err
	}

	choice, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      inner,
	})
	if err != nil {
		return nil, err
	}

	oid, err := asn1.Marshal(SpnegoOid)
	if err != nil {
		return nil, err
	}

	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        0,
		IsCompound: true,
		Bytes:      append(oid, choice...),
	})
}

// DecodeNegTokenInit parses a GSS-API wrapped init token, either a client
// NegTokenInit or a server NegTokenInit2 hint.
func DecodeNegTokenInit(bs []byte) (*NegTokenInit, error) {
	var tok initialContextToken
	if _, err := ber.UnmarshalWithParams(bs, &tok, "application,tag:0"); err != nil {
		return nil, err
	}

	if !tok.ThisMech.Equal(SpnegoOid) {
		return nil, ErrInvalidToken
	}

	if tok.Init.Class != asn1.ClassContextSpecific || tok.Init.Tag != 0 {
		return nil, ErrInvalidToken
	}

	var init negTokenInit2
	if _, err := ber.Unmarshal(tok.Init.Bytes, &init); err != nil {
		return nil, err
	}

	return &NegTokenInit{
		MechTypes:   init.MechTypes,
		ReqFlags:    init.ReqFlags,
		MechToken:   init.MechToken,
		MechListMIC: init.MechListMIC,
	}, nil
}

func EncodeNegTokenResp(state asn1.Enumerated, typ asn1.ObjectIdentifier, token, mechListMIC []byte) ([]byte, error) {
	inner, err := asn1.Marshal(NegTokenResp{
		NegState:      state,
		SupportedMech: typ,
		ResponseToken: token,
		MechListMIC:   mechListMIC,
	})
	if err != nil {
		return nil, err
	}

	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        1,
		IsCompound: true,
		Bytes:      inner,
	})
}

func DecodeNegTokenResp(bs []byte) (*NegTokenResp, error) {
	var resp NegTokenResp
	if _, err := ber.UnmarshalWithParams(bs, &resp, "explicit,tag:1"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HasMech reports whether oid is among types.
func HasMech(types []asn1.ObjectIdentifier, oid asn1.ObjectIdentifier) bool {
	for _, t := range types {
		if t.Equal(oid) {
			return true
		}
	}
	return false
}
