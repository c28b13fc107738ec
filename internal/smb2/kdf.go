package smb2

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// Signing key labels.
var (
	LabelSMB2AESCMAC   = []byte("SMB2AESCMAC\x00")
	ContextSmbSign     = []byte("SmbSign\x00")
	LabelSigningKey311 = []byte("SMBSigningKey\x00")
)

// KDF derives a 128-bit key using SP800-108 in counter mode with HMAC-SHA256.
func KDF(ki, label, context []byte) []byte {
	h := hmac.New(sha256.New, ki)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 1)
	h.Write(buf[:])
	h.Write(label)
	h.Write([]byte{0})
	h.Write(context)
	binary.BigEndian.PutUint32(buf[:], 128)
	h.Write(buf[:])

	return h.Sum(nil)[:16]
}
