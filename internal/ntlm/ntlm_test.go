package ntlm

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(t *testing.T, c *Client, s *Server) error {
	t.Helper()

	nmsg, err := c.Negotiate()
	require.NoError(t, err)

	cmsg, err := s.Challenge(nmsg)
	require.NoError(t, err)

	amsg, err := c.Authenticate(cmsg)
	require.NoError(t, err)

	return s.Authenticate(amsg)
}

func TestNTOWFv2(t *testing.T) {
	// MS-NLMP 4.2.4.1.1
	got := ntowfv2("User", "Password", "Domain")
	assert.Equal(t, "0c868a403bfd7a93a3001ef22ef02e3f", hex.EncodeToString(got))
}

func TestAuthenticateSharesSessionKey(t *testing.T) {
	s := NewServer("fileserver")
	s.AddAccount("alice", "s3cret")

	c := &Client{User: "alice", Password: "s3cret", Domain: "WORKGROUP"}
	require.NoError(t, exchange(t, c, s))

	require.NotNil(t, s.Session())
	assert.Equal(t, "alice", s.Session().User())
	assert.False(t, s.Session().IsGuest())
	assert.Len(t, c.Session().SessionKey(), 16)
	assert.Equal(t, c.Session().SessionKey(), s.Session().SessionKey())
}

func TestWrongPassword(t *testing.T) {
	s := NewServer("fileserver")
	s.AddAccount("alice", "s3cret")

	err := exchange(t, &Client{User: "alice", Password: "nope"}, s)
	assert.ErrorIs(t, err, ErrLogonFailure)
}

func TestUnknownUser(t *testing.T) {
	s := NewServer("fileserver")
	assert.ErrorIs(t, exchange(t, &Client{User: "bob", Password: "x"}, s), ErrLogonFailure)

	s = NewServer("fileserver")
	s.AllowGuest(true)
	require.NoError(t, exchange(t, &Client{User: "bob", Password: "x"}, s))
	assert.True(t, s.Session().IsGuest())
	assert.Nil(t, s.Session().SessionKey())
}

func TestAnonymous(t *testing.T) {
	s := NewServer("fileserver")
	assert.ErrorIs(t, exchange(t, &Client{}, s), ErrAnonymousDenied)

	s = NewServer("fileserver")
	s.AllowGuest(true)
	c := &Client{}
	require.NoError(t, exchange(t, c, s))
	assert.True(t, s.Session().IsAnonymous())
	assert.True(t, c.Session().IsAnonymous())
	assert.Nil(t, c.Session().SessionKey())
}

func TestRejectsMalformedChallenge(t *testing.T) {
	c := &Client{User: "alice"}
	_, err := c.Authenticate([]byte("NTLMSSP\x00\x01\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
