package smb2

import (
	"github.com/macos-fuse-t/smbclient/internal/utf16le"
)

type Packet interface {
	Encoder
	Header() *PacketHeader
}

type Encoder interface {
	Size() int
	Encode(b []byte)
}

// ----------------------------------------------------------------------------
// SMB2 Packet Header
//

type PacketHeader struct {
	CreditCharge          uint16
	ChannelSequence       uint16
	Status                uint32
	Command               uint16
	CreditRequestResponse uint16
	Flags                 uint32
	NextCommand           uint32
	MessageId             uint64
	AsyncId               uint64
	TreeId                uint32
	SessionId             uint64
}

func (hdr *PacketHeader) encodeHeader(pkt []byte) {
	p := PacketCodec(pkt)

	p.SetProtocolId()
	p.SetStructureSize()
	p.SetCreditCharge(hdr.CreditCharge)
	if hdr.Flags&SMB2_FLAGS_SERVER_TO_REDIR != 0 {
		p.SetStatus(hdr.Status)
	} else {
		p.SetChannelSequence(hdr.ChannelSequence)
	}
	p.SetCommand(hdr.Command)
	p.SetCreditRequest(hdr.CreditRequestResponse)
	p.SetFlags(hdr.Flags)
	p.SetNextCommand(hdr.NextCommand)
	p.SetMessageId(hdr.MessageId)
	if hdr.Flags&SMB2_FLAGS_ASYNC_COMMAND != 0 {
		p.SetAsyncId(hdr.AsyncId)
	} else {
		p.SetTreeId(hdr.TreeId)
	}
	p.SetSessionId(hdr.SessionId)
}

func (hdr *PacketHeader) Header() *PacketHeader {
	return hdr
}

// PacketCodec is a view over a raw packet, header included.
type PacketCodec []byte

func (p PacketCodec) IsInvalid() bool {
	if len(p) < 64 {
		return true
	}

	if p.ProtocolId() != MAGIC {
		return true
	}

	if p.StructureSize() != 64 {
		return true
	}

	return false
}

func (p PacketCodec) ProtocolId() string {
	return string(p[:4])
}

func (p PacketCodec) SetProtocolId() {
	copy(p[:4], MAGIC)
}

func (p PacketCodec) StructureSize() uint16 {
	return le.Uint16(p[4:6])
}

func (p PacketCodec) SetStructureSize() {
	le.PutUint16(p[4:6], 64)
}

func (p PacketCodec) CreditCharge() uint16 {
	return le.Uint16(p[6:8])
}

func (p PacketCodec) SetCreditCharge(u uint16) {
	le.PutUint16(p[6:8], u)
}

func (p PacketCodec) ChannelSequence() uint16 {
	return le.Uint16(p[8:10])
}

func (p PacketCodec) SetChannelSequence(u uint16) {
	le.PutUint16(p[8:10], u)
}

func (p PacketCodec) Status() uint32 {
	return le.Uint32(p[8:12])
}

func (p PacketCodec) SetStatus(u uint32) {
	le.PutUint32(p[8:12], u)
}

func (p PacketCodec) Command() uint16 {
	return le.Uint16(p[12:14])
}

func (p PacketCodec) SetCommand(u uint16) {
	le.PutUint16(p[12:14], u)
}

func (p PacketCodec) CreditRequest() uint16 {
	return le.Uint16(p[14:16])
}

func (p PacketCodec) SetCreditRequest(u uint16) {
	le.PutUint16(p[14:16], u)
}

func (p PacketCodec) CreditResponse() uint16 {
	return le.Uint16(p[14:16])
}

func (p PacketCodec) SetCreditResponse(u uint16) {
	le.PutUint16(p[14:16], u)
}

func (p PacketCodec) Flags() uint32 {
	return le.Uint32(p[16:20])
}

func (p PacketCodec) SetFlags(u uint32) {
	le.PutUint32(p[16:20], u)
}

func (p PacketCodec) NextCommand() uint32 {
	return le.Uint32(p[20:24])
}

func (p PacketCodec) SetNextCommand(u uint32) {
	le.PutUint32(p[20:24], u)
}

func (p PacketCodec) MessageId() uint64 {
	return le.Uint64(p[24:32])
}

func (p PacketCodec) SetMessageId(u uint64) {
	le.PutUint64(p[24:32], u)
}

func (p PacketCodec) AsyncId() uint64 {
	return le.Uint64(p[32:40])
}

func (p PacketCodec) SetAsyncId(u uint64) {
	le.PutUint64(p[32:40], u)
}

func (p PacketCodec) TreeId() uint32 {
	return le.Uint32(p[36:40])
}

func (p PacketCodec) SetTreeId(u uint32) {
	le.PutUint32(p[36:40], u)
}

func (p PacketCodec) SessionId() uint64 {
	return le.Uint64(p[40:48])
}

func (p PacketCodec) SetSessionId(u uint64) {
	le.PutUint64(p[40:48], u)
}

func (p PacketCodec) Signature() []byte {
	return p[48:64]
}

func (p PacketCodec) SetSignature(bs []byte) {
	copy(p[48:64], bs)
}

func (p PacketCodec) Data() []byte {
	return p[64:]
}

func (p PacketCodec) IsAsync() bool {
	return p.Flags()&SMB2_FLAGS_ASYNC_COMMAND != 0
}

func (p PacketCodec) IsResponse() bool {
	return p.Flags()&SMB2_FLAGS_SERVER_TO_REDIR != 0
}

// ----------------------------------------------------------------------------
// Common Data Types
//

type Filetime struct {
	LowDateTime  uint32
	HighDateTime uint32
}

func (ft *Filetime) Size() int {
	return 8
}

func (ft *Filetime) Encode(p []byte) {
	le.PutUint32(p[:4], ft.LowDateTime)
	le.PutUint32(p[4:8], ft.HighDateTime)
}

func (ft *Filetime) IsZero() bool {
	return ft.LowDateTime == 0 && ft.HighDateTime == 0
}

func (ft *Filetime) Nanoseconds() int64 {
	nsec := int64(ft.HighDateTime)<<32 + int64(ft.LowDateTime)
	nsec -= 116444736000000000
	nsec *= 100
	return nsec
}

func NsecToFiletime(nsec int64) (ft *Filetime) {
	nsec /= 100
	nsec += 116444736000000000

	return &Filetime{
		LowDateTime:  uint32(nsec & 0xffffffff),
		HighDateTime: uint32(nsec >> 32 & 0xffffffff),
	}
}

type FiletimeDecoder []byte

func (ft FiletimeDecoder) LowDateTime() uint32 {
	return le.Uint32(ft[:4])
}

func (ft FiletimeDecoder) HighDateTime() uint32 {
	return le.Uint32(ft[4:8])
}

func (ft FiletimeDecoder) Decode() *Filetime {
	return &Filetime{
		LowDateTime:  ft.LowDateTime(),
		HighDateTime: ft.HighDateTime(),
	}
}

type FileId struct {
	Persistent [8]byte
	Volatile   [8]byte
}

func (fd *FileId) Size() int {
	return 16
}

func (fd *FileId) Encode(p []byte) {
	copy(p[:8], fd.Persistent[:])
	copy(p[8:16], fd.Volatile[:])
}

type FileIdDecoder []byte

func (fd FileIdDecoder) Persistent() []byte {
	return fd[:8]
}

func (fd FileIdDecoder) Volatile() []byte {
	return fd[8:16]
}

func (fd FileIdDecoder) Decode() *FileId {
	ret := new(FileId)
	copy(ret.Persistent[:], fd.Persistent())
	copy(ret.Volatile[:], fd.Volatile())
	return ret
}

// ----------------------------------------------------------------------------
// Negotiate Contexts
//

type HashContext struct {
	HashAlgorithms []uint16
	HashSalt       []byte
}

func (c *HashContext) Size() int {
	return 8 + 4 + len(c.HashAlgorithms)*2 + len(c.HashSalt)
}

func (c *HashContext) Encode(p []byte) {
	d := p[8:]

	le.PutUint16(d[:2], uint16(len(c.HashAlgorithms)))
	le.PutUint16(d[2:4], uint16(len(c.HashSalt)))

	off := 4
	for _, alg := range c.HashAlgorithms {
		le.PutUint16(d[off:off+2], alg)
		off += 2
	}

	copy(d[off:], c.HashSalt)

	le.PutUint16(p[:2], SMB2_PREAUTH_INTEGRITY_CAPABILITIES)
	le.PutUint16(p[2:4], uint16(c.Size()-8))
}

type NegotiateContextDecoder []byte

func (ctx NegotiateContextDecoder) IsInvalid() bool {
	if len(ctx) < 8 {
		return true
	}

	if len(ctx) < 8+int(ctx.DataLength()) {
		return true
	}

	return false
}

func (ctx NegotiateContextDecoder) ContextType() uint16 {
	return le.Uint16(ctx[:2])
}

func (ctx NegotiateContextDecoder) DataLength() uint16 {
	return le.Uint16(ctx[2:4])
}

func (ctx NegotiateContextDecoder) Data() []byte {
	return ctx[8 : 8+ctx.DataLength()]
}

// Next returns the offset of the following context, 8-byte aligned.
func (ctx NegotiateContextDecoder) Next() int {
	return Align(8+int(ctx.DataLength()), 8)
}

type HashContextDataDecoder []byte

func (h HashContextDataDecoder) IsInvalid() bool {
	if len(h) < 4 {
		return true
	}

	if len(h) < 4+int(h.HashAlgorithmCount())*2+int(h.SaltLength()) {
		return true
	}

	return false
}

func (h HashContextDataDecoder) HashAlgorithmCount() uint16 {
	return le.Uint16(h[:2])
}

func (h HashContextDataDecoder) SaltLength() uint16 {
	return le.Uint16(h[2:4])
}

func (h HashContextDataDecoder) HashAlgorithms() []uint16 {
	algs := make([]uint16, h.HashAlgorithmCount())
	for i := range algs {
		algs[i] = le.Uint16(h[4+2*i : 4+2*i+2])
	}
	return algs
}

func (h HashContextDataDecoder) Salt() []byte {
	off := 4 + len(h.HashAlgorithms())*2
	return h[off : off+int(h.SaltLength())]
}

// ----------------------------------------------------------------------------
// File Information
//

type FileDirectoryInfo struct {
	NextEntryOffset uint32
	FileIndex       uint32
	CreationTime    *Filetime
	LastAccessTime  *Filetime
	LastWriteTime   *Filetime
	ChangeTime      *Filetime
	EndOfFile       int64
	AllocationSize  int64
	FileAttributes  uint32
	FileName        string
}

func (c *FileDirectoryInfo) Size() int {
	return 64 + utf16le.EncodedStringLen(c.FileName)
}

func (c *FileDirectoryInfo) Encode(p []byte) {
	le.PutUint32(p[:4], c.NextEntryOffset)
	le.PutUint32(p[4:8], c.FileIndex)
	encodeFiletime(p[8:16], c.CreationTime)
	encodeFiletime(p[16:24], c.LastAccessTime)
	encodeFiletime(p[24:32], c.LastWriteTime)
	encodeFiletime(p[32:40], c.ChangeTime)
	le.PutUint64(p[40:48], uint64(c.EndOfFile))
	le.PutUint64(p[48:56], uint64(c.AllocationSize))
	le.PutUint32(p[56:60], c.FileAttributes)
	n := utf16le.EncodeString(p[64:], c.FileName)
	le.PutUint32(p[60:64], uint32(n))
}

func encodeFiletime(p []byte, ft *Filetime) {
	if ft != nil {
		ft.Encode(p)
	}
}

type FileDirectoryInformationDecoder []byte

func (c FileDirectoryInformationDecoder) IsInvalid() bool {
	if len(c) < 64 {
		return true
	}

	if len(c) < 64+int(c.FileNameLength()) {
		return true
	}

	return false
}

func (c FileDirectoryInformationDecoder) NextEntryOffset() uint32 {
	return le.Uint32(c[:4])
}

func (c FileDirectoryInformationDecoder) FileIndex() uint32 {
	return le.Uint32(c[4:8])
}

func (c FileDirectoryInformationDecoder) CreationTime() FiletimeDecoder {
	return FiletimeDecoder(c[8:16])
}

func (c FileDirectoryInformationDecoder) LastAccessTime() FiletimeDecoder {
	return FiletimeDecoder(c[16:24])
}

func (c FileDirectoryInformationDecoder) LastWriteTime() FiletimeDecoder {
	return FiletimeDecoder(c[24:32])
}

func (c FileDirectoryInformationDecoder) ChangeTime() FiletimeDecoder {
	return FiletimeDecoder(c[32:40])
}

func (c FileDirectoryInformationDecoder) EndOfFile() int64 {
	return int64(le.Uint64(c[40:48]))
}

func (c FileDirectoryInformationDecoder) AllocationSize() int64 {
	return int64(le.Uint64(c[48:56]))
}

func (c FileDirectoryInformationDecoder) FileAttributes() uint32 {
	return le.Uint32(c[56:60])
}

func (c FileDirectoryInformationDecoder) FileNameLength() uint32 {
	return le.Uint32(c[60:64])
}

func (c FileDirectoryInformationDecoder) FileName() string {
	return utf16le.DecodeToString(c[64 : 64+c.FileNameLength()])
}
