package smb2

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: "nas"}
	cfg.setDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
	assert.EqualValues(t, SMB202, cfg.MinDialect)
	assert.EqualValues(t, SMB311, cfg.MaxDialect)
	require.NotNil(t, cfg.RetryPolicy)
	assert.Equal(t, defaultRetryPolicy, *cfg.RetryPolicy)

	host, port, err := cfg.hostPort()
	require.NoError(t, err)
	assert.Equal(t, "nas", host)
	assert.Equal(t, defaultPort, port)
}

func TestConfigHostPort(t *testing.T) {
	for addr, want := range map[string]struct {
		host string
		port int
	}{
		"nas":            {"nas", defaultPort},
		"nas:1445":       {"nas", 1445},
		"10.0.0.1":       {"10.0.0.1", defaultPort},
		"[::1]":          {"::1", defaultPort},
		"[fe80::1]:1445": {"fe80::1", 1445},
		"::1":            {"::1", defaultPort},
	} {
		cfg := Config{Address: addr}
		host, port, err := cfg.hostPort()
		require.NoError(t, err, addr)
		assert.Equal(t, want.host, host, addr)
		assert.Equal(t, want.port, port, addr)
	}
}

func TestConfigValidate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"no address":     {},
		"bad port":       {Address: "nas:http"},
		"dialect range":  {Address: "nas", MinDialect: SMB311, MaxDialect: SMB210},
		"negative delay": {Address: "nas", RequestTimeout: -time.Second},
	} {
		cfg.setDefaults()
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestConfigInitiator(t *testing.T) {
	anon := (&Config{}).initiator()
	assert.True(t, anon.anonymous())
	assert.Equal(t, "anonymous", anon.user())

	cfg := Config{Credentials: &Credentials{User: "bob", Password: "pw", Domain: "CORP"}}
	i := cfg.initiator()
	assert.False(t, i.anonymous())
	assert.Equal(t, `CORP\bob`, i.user())
}

func TestDialInvalidConfig(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	require.Error(t, err)

	var cerr *ConnectError
	assert.False(t, errors.As(err, &cerr))
}
