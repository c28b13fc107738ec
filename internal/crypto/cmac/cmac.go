// Package cmac implements the CMAC message authentication code (RFC 4493).
package cmac

import (
	"crypto/cipher"
	"crypto/subtle"
	"hash"
)

const rb = 0x87

type cmac struct {
	c      cipher.Block
	k1, k2 []byte
	x      []byte
	buf    []byte
	n      int
}

// New returns a hash.Hash computing CMAC over the given block cipher.
// The block size must be 16 bytes.
func New(c cipher.Block) hash.Hash {
	bs := c.BlockSize()

	l := make([]byte, bs)
	c.Encrypt(l, l)

	k1 := shift(l)
	k2 := shift(k1)

	return &cmac{
		c:   c,
		k1:  k1,
		k2:  k2,
		x:   make([]byte, bs),
		buf: make([]byte, bs),
	}
}

// shift doubles b in GF(2^128).
func shift(b []byte) []byte {
	out := make([]byte, len(b))
	var carry byte
	for i := len(b) - 1; i >= 0; i-- {
		out[i] = b[i]<<1 | carry
		carry = b[i] >> 7
	}
	if b[0]&0x80 != 0 {
		out[len(out)-1] ^= rb
	}
	return out
}

func (h *cmac) Write(p []byte) (int, error) {
	total := len(p)
	bs := len(h.buf)

	for len(p) > 0 {
		// the last block is held back until Sum
		if h.n == bs {
			subtle.XORBytes(h.x, h.x, h.buf)
			h.c.Encrypt(h.x, h.x)
			h.n = 0
		}
		m := copy(h.buf[h.n:], p)
		h.n += m
		p = p[m:]
	}

	return total, nil
}

func (h *cmac) Sum(b []byte) []byte {
	bs := len(h.buf)
	last := make([]byte, bs)
	copy(last, h.buf[:h.n])

	if h.n == bs {
		subtle.XORBytes(last, last, h.k1)
	} else {
		last[h.n] = 0x80
		subtle.XORBytes(last, last, h.k2)
	}

	x := make([]byte, bs)
	subtle.XORBytes(x, h.x, last)
	h.c.Encrypt(x, x)

	return append(b, x...)
}

func (h *cmac) Reset() {
	for i := range h.x {
		h.x[i] = 0
	}
	h.n = 0
}

func (h *cmac) Size() int {
	return len(h.buf)
}

func (h *cmac) BlockSize() int {
	return len(h.buf)
}
