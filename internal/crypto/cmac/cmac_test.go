package cmac

import (
	"crypto/aes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const msg64 = "6bc1bee22e409f96e93d7e117393172a" +
	"ae2d8a571e03ac9c9eb76fac45af8e51" +
	"30c81c46a35ce411e5fbc1191a0a52ef" +
	"f69f2445df4f9b17ad2b417be66c3710"

func unhex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestRFC4493(t *testing.T) {
	block, err := aes.NewCipher(unhex("2b7e151628aed2a6abf7158809cf4f3c"))
	require.NoError(t, err)

	msg := unhex(msg64)

	tests := []struct {
		n   int
		mac string
	}{
		{0, "bb1d6929e95937287fa37d129b756746"},
		{16, "070a16b46b4d4144f79bdd9dd04a287c"},
		{40, "dfa66747de9ae63030ca32611497c827"},
		{64, "51f0bebf7e3b9d92fc49741779363cfe"},
	}

	for _, tt := range tests {
		h := New(block)
		h.Write(msg[:tt.n])
		assert.Equal(t, tt.mac, hex.EncodeToString(h.Sum(nil)), "len %d", tt.n)
	}
}

func TestStreamingWrites(t *testing.T) {
	block, err := aes.NewCipher(unhex("2b7e151628aed2a6abf7158809cf4f3c"))
	require.NoError(t, err)

	msg := unhex(msg64)

	h := New(block)
	for i := 0; i < 40; i += 3 {
		end := i + 3
		if end > 40 {
			end = 40
		}
		h.Write(msg[i:end])
	}
	assert.Equal(t, "dfa66747de9ae63030ca32611497c827", hex.EncodeToString(h.Sum(nil)))

	h.Reset()
	h.Write(msg[:16])
	assert.Equal(t, "070a16b46b4d4144f79bdd9dd04a287c", hex.EncodeToString(h.Sum(nil)))
}
