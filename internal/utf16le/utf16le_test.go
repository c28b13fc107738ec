package utf16le

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"", "share", `\\host\share`, "résumé.txt", "😀.bin"} {
		bs := EncodeStringToBytes(s)
		assert.Equal(t, EncodedStringLen(s), len(bs), s)
		assert.Equal(t, s, DecodeToString(bs))
	}
}

func TestEncodeStringIntoBuffer(t *testing.T) {
	buf := make([]byte, 8)
	n := EncodeString(buf, "ab")
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{'a', 0, 'b', 0}, buf[:n])
}

func TestDecodeDropsTrailingNul(t *testing.T) {
	assert.Equal(t, "a", DecodeToString([]byte{'a', 0, 0, 0}))
}
