package spnego

import (
	"encoding/asn1"
	"testing"

	gofork "github.com/jcmturner/gofork/encoding/asn1"
	krb "github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ntlmOid = gofork.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}

func TestEncodeNegTokenInitInterop(t *testing.T) {
	token := []byte("NTLMSSP\x00\x01\x00\x00\x00")

	bs, err := EncodeNegTokenInit([]asn1.ObjectIdentifier{NlmpOid}, token)
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), bs[0])

	var tok krb.SPNEGOToken
	require.NoError(t, tok.Unmarshal(bs))
	require.True(t, tok.Init)
	assert.Equal(t, token, tok.NegTokenInit.MechTokenBytes)
	require.Len(t, tok.NegTokenInit.MechTypes, 1)
	assert.True(t, tok.NegTokenInit.MechTypes[0].Equal(ntlmOid))

	init, err := DecodeNegTokenInit(bs)
	require.NoError(t, err)
	assert.Equal(t, token, init.MechToken)
}

func TestDecodeServerHint(t *testing.T) {
	hint := krb.SPNEGOToken{
		Init: true,
		NegTokenInit: krb.NegTokenInit{
			MechTypes: []gofork.ObjectIdentifier{ntlmOid},
		},
	}
	bs, err := hint.Marshal()
	require.NoError(t, err)

	init, err := DecodeNegTokenInit(bs)
	require.NoError(t, err)
	assert.True(t, HasMech(init.MechTypes, NlmpOid))
	assert.False(t, HasMech(init.MechTypes, KerberosOid))
}

func TestDecodeNegTokenRespInterop(t *testing.T) {
	resp := krb.NegTokenResp{
		NegState:      gofork.Enumerated(AcceptIncomplete),
		SupportedMech: ntlmOid,
		ResponseToken: []byte("challenge"),
	}
	bs, err := resp.Marshal()
	require.NoError(t, err)

	r, err := DecodeNegTokenResp(bs)
	require.NoError(t, err)
	assert.EqualValues(t, AcceptIncomplete, r.NegState)
	assert.True(t, r.SupportedMech.Equal(NlmpOid))
	assert.Equal(t, []byte("challenge"), r.ResponseToken)
}

func TestEncodeNegTokenRespInterop(t *testing.T) {
	bs, err := EncodeNegTokenResp(AcceptIncomplete, nil, []byte("authenticate"), nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0xa1), bs[0])

	var tok krb.SPNEGOToken
	require.NoError(t, tok.Unmarshal(bs))
	require.True(t, tok.Resp)
	assert.Equal(t, []byte("authenticate"), tok.NegTokenResp.ResponseToken)
	assert.EqualValues(t, AcceptIncomplete, tok.NegTokenResp.NegState)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeNegTokenInit([]byte{0x01, 0x02})
	assert.Error(t, err)

	_, err = DecodeNegTokenResp(nil)
	assert.Error(t, err)
}
