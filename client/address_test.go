package smb2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want Location
	}{
		{"//nas/share", Location{Host: "nas", Share: "share"}},
		{"//nas:1445/share/a/b.txt", Location{Host: "nas", Port: 1445, Share: "share", Path: "a/b.txt"}},
		{`\\nas\share\dir`, Location{Host: "nas", Share: "share", Path: "dir"}},
		{"smb://bob:pw@10.0.0.2/media", Location{Host: "10.0.0.2", Share: "media", User: "bob", Password: "pw"}},
		{`smb://CORP;bob@nas/s`, Location{Host: "nas", Share: "s", User: "bob", Domain: "CORP"}},
		{"smb://[::1]:445/s/", Location{Host: "::1", Port: 445, Share: "s"}},
		{"//nas", Location{Host: "nas"}},
	}

	for _, tt := range tests {
		l, err := ParseLocation(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, *l, tt.in)
	}
}

func TestParseLocationErrors(t *testing.T) {
	for _, in := range []string{
		"http://nas/share",
		"smb:///share",
		"//nas:0/share",
		"//nas:99999/share",
		"smb://nas:x/share",
	} {
		_, err := ParseLocation(in)
		assert.Error(t, err, in)
	}
}

func TestLocationHelpers(t *testing.T) {
	l, err := ParseLocation("smb://bob:pw@nas/share/dir")
	require.NoError(t, err)

	assert.Equal(t, "nas:445", l.Addr())
	assert.Equal(t, "//nas/share/dir", l.String())
	assert.Equal(t, &Credentials{User: "bob", Password: "pw"}, l.Credentials())

	l, err = ParseLocation("//nas:1445/share")
	require.NoError(t, err)
	assert.Equal(t, "nas:1445", l.Addr())
	assert.Equal(t, "//nas:1445/share", l.String())
	assert.Nil(t, l.Credentials())
}
