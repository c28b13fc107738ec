package bonjour

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAddr(t *testing.T) {
	s := Server{Host: "nas.local.", Port: 445}
	assert.Equal(t, "nas.local:445", s.Addr())

	s.Addrs = []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.1.5")}
	assert.Equal(t, "192.168.1.5:445", s.Addr())

	s = Server{Port: 1445, Addrs: []net.IP{net.ParseIP("fe80::1")}}
	assert.Equal(t, "[fe80::1]:1445", s.Addr())
}

func TestFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("Office NAS", smbService, mdnsDomain)
	e.HostName = "office.local."
	e.Port = 445
	e.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.7")}
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::7")}
	e.Text = []string{"model=Xserve"}

	s := fromEntry(e)
	assert.Equal(t, "Office NAS", s.Instance)
	assert.Equal(t, "office.local.", s.Host)
	require.Len(t, s.Addrs, 2)
	assert.Equal(t, "10.0.0.7:445", s.Addr())
	assert.Equal(t, []string{"model=Xserve"}, s.Text)
}

func TestFindInterfaceByAddress(t *testing.T) {
	ifaces, err := findInterfaceByAddress("")
	assert.NoError(t, err)
	assert.Nil(t, ifaces)

	_, err = findInterfaceByAddress("203.0.113.254")
	assert.Error(t, err)
}
