package smb2

// ----------------------------------------------------------------------------
// SMB2 Error Response
//

type ErrorResponse struct {
	PacketHeader

	ErrorData Encoder
}

func (c *ErrorResponse) Size() int {
	if c.ErrorData == nil {
		return 64 + 8 + 1
	}
	return 64 + 8 + c.ErrorData.Size()
}

func (c *ErrorResponse) Encode(pkt []byte) {
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 9)

	if c.ErrorData != nil {
		c.ErrorData.Encode(rsp[8:])
		le.PutUint32(rsp[4:8], uint32(c.ErrorData.Size()))
	}
}

type ErrorResponseDecoder []byte

func (r ErrorResponseDecoder) IsInvalid() bool {
	if len(r) < 8 {
		return true
	}

	if r.StructureSize() != 9 {
		return true
	}

	if len(r) < 8+int(r.ByteCount()) {
		return true
	}

	return false
}

func (r ErrorResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r ErrorResponseDecoder) ErrorContextCount() uint8 {
	return r[2]
}

func (r ErrorResponseDecoder) ByteCount() uint32 {
	return le.Uint32(r[4:8])
}

func (r ErrorResponseDecoder) ErrorData() []byte {
	return r[8 : 8+r.ByteCount()]
}

// ----------------------------------------------------------------------------
// SMB2 NEGOTIATE Response Packet
//

type NegotiateResponse struct {
	PacketHeader

	SecurityMode    uint16
	DialectRevision uint16
	ServerGuid      [16]byte
	Capabilities    uint32
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      *Filetime
	ServerStartTime *Filetime
	SecurityBuffer  []byte
	Contexts        []Encoder
}

func (c *NegotiateResponse) Size() int {
	size := 64 + 64 + len(c.SecurityBuffer)
	for _, ctx := range c.Contexts {
		size = Roundup(size, 8) + ctx.Size()
	}
	return size
}

func (c *NegotiateResponse) Encode(pkt []byte) {
	c.Command = SMB2_NEGOTIATE
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 65)
	le.PutUint16(rsp[2:4], c.SecurityMode)
	le.PutUint16(rsp[4:6], c.DialectRevision)
	copy(rsp[8:24], c.ServerGuid[:])
	le.PutUint32(rsp[24:28], c.Capabilities)
	le.PutUint32(rsp[28:32], c.MaxTransactSize)
	le.PutUint32(rsp[32:36], c.MaxReadSize)
	le.PutUint32(rsp[36:40], c.MaxWriteSize)
	encodeFiletime(rsp[40:48], c.SystemTime)
	encodeFiletime(rsp[48:56], c.ServerStartTime)

	off := 64
	copy(rsp[off:], c.SecurityBuffer)
	le.PutUint16(rsp[56:58], uint16(off+64))
	le.PutUint16(rsp[58:60], uint16(len(c.SecurityBuffer)))
	off += len(c.SecurityBuffer)

	if len(c.Contexts) == 0 {
		return
	}

	off = Roundup(off+64, 8) - 64
	le.PutUint16(rsp[6:8], uint16(len(c.Contexts)))
	le.PutUint32(rsp[60:64], uint32(off+64))

	for i, ctx := range c.Contexts {
		if i > 0 {
			off = Roundup(off+64, 8) - 64
		}
		ctx.Encode(rsp[off:])
		off += ctx.Size()
	}
}

type NegotiateResponseDecoder []byte

func (r NegotiateResponseDecoder) IsInvalid() bool {
	if len(r) < 64 {
		return true
	}

	if r.StructureSize() != 65 {
		return true
	}

	off := int(r.SecurityBufferOffset())
	if r.SecurityBufferLength() > 0 && (off < 64+64 || len(r) < off-64+int(r.SecurityBufferLength())) {
		return true
	}

	if r.NegotiateContextCount() > 0 {
		coff := int(r.NegotiateContextOffset())
		if coff < 64+64 || len(r) < coff-64 {
			return true
		}
	}

	return false
}

func (r NegotiateResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r NegotiateResponseDecoder) SecurityMode() uint16 {
	return le.Uint16(r[2:4])
}

func (r NegotiateResponseDecoder) DialectRevision() uint16 {
	return le.Uint16(r[4:6])
}

func (r NegotiateResponseDecoder) NegotiateContextCount() uint16 {
	return le.Uint16(r[6:8])
}

func (r NegotiateResponseDecoder) ServerGuid() []byte {
	return r[8:24]
}

func (r NegotiateResponseDecoder) Capabilities() uint32 {
	return le.Uint32(r[24:28])
}

func (r NegotiateResponseDecoder) MaxTransactSize() uint32 {
	return le.Uint32(r[28:32])
}

func (r NegotiateResponseDecoder) MaxReadSize() uint32 {
	return le.Uint32(r[32:36])
}

func (r NegotiateResponseDecoder) MaxWriteSize() uint32 {
	return le.Uint32(r[36:40])
}

func (r NegotiateResponseDecoder) SystemTime() FiletimeDecoder {
	return FiletimeDecoder(r[40:48])
}

func (r NegotiateResponseDecoder) ServerStartTime() FiletimeDecoder {
	return FiletimeDecoder(r[48:56])
}

func (r NegotiateResponseDecoder) SecurityBufferOffset() uint16 {
	return le.Uint16(r[56:58])
}

func (r NegotiateResponseDecoder) SecurityBufferLength() uint16 {
	return le.Uint16(r[58:60])
}

func (r NegotiateResponseDecoder) NegotiateContextOffset() uint32 {
	return le.Uint32(r[60:64])
}

func (r NegotiateResponseDecoder) SecurityBuffer() []byte {
	if r.SecurityBufferLength() == 0 {
		return nil
	}
	off := r.SecurityBufferOffset() - 64
	return r[off : off+r.SecurityBufferLength()]
}

func (r NegotiateResponseDecoder) NegotiateContextList() []byte {
	if r.NegotiateContextCount() == 0 {
		return nil
	}
	return r[r.NegotiateContextOffset()-64:]
}

// ----------------------------------------------------------------------------
// SMB2 SESSION_SETUP Response Packet
//

type SessionSetupResponse struct {
	PacketHeader

	SessionFlags   uint16
	SecurityBuffer []byte
}

func (c *SessionSetupResponse) Size() int {
	return 64 + 8 + len(c.SecurityBuffer)
}

func (c *SessionSetupResponse) Encode(pkt []byte) {
	c.Command = SMB2_SESSION_SETUP
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 9)
	le.PutUint16(rsp[2:4], c.SessionFlags)

	off := 8
	copy(rsp[off:], c.SecurityBuffer)
	le.PutUint16(rsp[4:6], uint16(off+64))
	le.PutUint16(rsp[6:8], uint16(len(c.SecurityBuffer)))
}

type SessionSetupResponseDecoder []byte

func (r SessionSetupResponseDecoder) IsInvalid() bool {
	if len(r) < 8 {
		return true
	}

	if r.StructureSize() != 9 {
		return true
	}

	if r.SecurityBufferLength() > 0 {
		off := int(r.SecurityBufferOffset())
		if off < 64+8 || len(r) < off-64+int(r.SecurityBufferLength()) {
			return true
		}
	}

	return false
}

func (r SessionSetupResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r SessionSetupResponseDecoder) SessionFlags() uint16 {
	return le.Uint16(r[2:4])
}

func (r SessionSetupResponseDecoder) SecurityBufferOffset() uint16 {
	return le.Uint16(r[4:6])
}

func (r SessionSetupResponseDecoder) SecurityBufferLength() uint16 {
	return le.Uint16(r[6:8])
}

func (r SessionSetupResponseDecoder) SecurityBuffer() []byte {
	if r.SecurityBufferLength() == 0 {
		return nil
	}
	off := r.SecurityBufferOffset() - 64
	return r[off : off+r.SecurityBufferLength()]
}

// ----------------------------------------------------------------------------
// SMB2 LOGOFF Response Packet
//

type LogoffResponse struct {
	PacketHeader
}

func (c *LogoffResponse) Size() int {
	return 64 + 4
}

func (c *LogoffResponse) Encode(pkt []byte) {
	c.Command = SMB2_LOGOFF
	c.encodeHeader(pkt)

	le.PutUint16(pkt[64:66], 4)
}

type LogoffResponseDecoder []byte

func (r LogoffResponseDecoder) IsInvalid() bool {
	return len(r) < 4 || le.Uint16(r[:2]) != 4
}

// ----------------------------------------------------------------------------
// SMB2 TREE_CONNECT Response Packet
//

type TreeConnectResponse struct {
	PacketHeader

	ShareType     uint8
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
}

func (c *TreeConnectResponse) Size() int {
	return 64 + 16
}

func (c *TreeConnectResponse) Encode(pkt []byte) {
	c.Command = SMB2_TREE_CONNECT
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 16)
	rsp[2] = c.ShareType
	le.PutUint32(rsp[4:8], c.ShareFlags)
	le.PutUint32(rsp[8:12], c.Capabilities)
	le.PutUint32(rsp[12:16], c.MaximalAccess)
}

type TreeConnectResponseDecoder []byte

func (r TreeConnectResponseDecoder) IsInvalid() bool {
	if len(r) < 16 {
		return true
	}

	if r.StructureSize() != 16 {
		return true
	}

	return false
}

func (r TreeConnectResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r TreeConnectResponseDecoder) ShareType() uint8 {
	return r[2]
}

func (r TreeConnectResponseDecoder) ShareFlags() uint32 {
	return le.Uint32(r[4:8])
}

func (r TreeConnectResponseDecoder) Capabilities() uint32 {
	return le.Uint32(r[8:12])
}

func (r TreeConnectResponseDecoder) MaximalAccess() uint32 {
	return le.Uint32(r[12:16])
}

// ----------------------------------------------------------------------------
// SMB2 TREE_DISCONNECT Response Packet
//

type TreeDisconnectResponse struct {
	PacketHeader
}

func (c *TreeDisconnectResponse) Size() int {
	return 64 + 4
}

func (c *TreeDisconnectResponse) Encode(pkt []byte) {
	c.Command = SMB2_TREE_DISCONNECT
	c.encodeHeader(pkt)

	le.PutUint16(pkt[64:66], 4)
}

type TreeDisconnectResponseDecoder []byte

func (r TreeDisconnectResponseDecoder) IsInvalid() bool {
	return len(r) < 4 || le.Uint16(r[:2]) != 4
}

// ----------------------------------------------------------------------------
// SMB2 CREATE Response Packet
//

type CreateResponse struct {
	PacketHeader

	OplockLevel    uint8
	Flags          uint8
	CreateAction   uint32
	CreationTime   *Filetime
	LastAccessTime *Filetime
	LastWriteTime  *Filetime
	ChangeTime     *Filetime
	AllocationSize int64
	EndofFile      int64
	FileAttributes uint32
	FileId         *FileId
}

func (c *CreateResponse) Size() int {
	return 64 + 88 + 1
}

func (c *CreateResponse) Encode(pkt []byte) {
	c.Command = SMB2_CREATE
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 89)
	rsp[2] = c.OplockLevel
	rsp[3] = c.Flags
	le.PutUint32(rsp[4:8], c.CreateAction)
	encodeFiletime(rsp[8:16], c.CreationTime)
	encodeFiletime(rsp[16:24], c.LastAccessTime)
	encodeFiletime(rsp[24:32], c.LastWriteTime)
	encodeFiletime(rsp[32:40], c.ChangeTime)
	le.PutUint64(rsp[40:48], uint64(c.AllocationSize))
	le.PutUint64(rsp[48:56], uint64(c.EndofFile))
	le.PutUint32(rsp[56:60], c.FileAttributes)
	c.FileId.Encode(rsp[64:80])
}

type CreateResponseDecoder []byte

func (r CreateResponseDecoder) IsInvalid() bool {
	if len(r) < 88 {
		return true
	}

	if r.StructureSize() != 89 {
		return true
	}

	return false
}

func (r CreateResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r CreateResponseDecoder) OplockLevel() uint8 {
	return r[2]
}

func (r CreateResponseDecoder) Flags() uint8 {
	return r[3]
}

func (r CreateResponseDecoder) CreateAction() uint32 {
	return le.Uint32(r[4:8])
}

func (r CreateResponseDecoder) CreationTime() FiletimeDecoder {
	return FiletimeDecoder(r[8:16])
}

func (r CreateResponseDecoder) LastAccessTime() FiletimeDecoder {
	return FiletimeDecoder(r[16:24])
}

func (r CreateResponseDecoder) LastWriteTime() FiletimeDecoder {
	return FiletimeDecoder(r[24:32])
}

func (r CreateResponseDecoder) ChangeTime() FiletimeDecoder {
	return FiletimeDecoder(r[32:40])
}

func (r CreateResponseDecoder) AllocationSize() int64 {
	return int64(le.Uint64(r[40:48]))
}

func (r CreateResponseDecoder) EndofFile() int64 {
	return int64(le.Uint64(r[48:56]))
}

func (r CreateResponseDecoder) FileAttributes() uint32 {
	return le.Uint32(r[56:60])
}

func (r CreateResponseDecoder) FileId() FileIdDecoder {
	return FileIdDecoder(r[64:80])
}

// ----------------------------------------------------------------------------
// SMB2 CLOSE Response Packet
//

type CloseResponse struct {
	PacketHeader

	Flags          uint16
	CreationTime   *Filetime
	LastAccessTime *Filetime
	LastWriteTime  *Filetime
	ChangeTime     *Filetime
	AllocationSize int64
	EndofFile      int64
	FileAttributes uint32
}

func (c *CloseResponse) Size() int {
	return 64 + 60
}

func (c *CloseResponse) Encode(pkt []byte) {
	c.Command = SMB2_CLOSE
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 60)
	le.PutUint16(rsp[2:4], c.Flags)
	encodeFiletime(rsp[8:16], c.CreationTime)
	encodeFiletime(rsp[16:24], c.LastAccessTime)
	encodeFiletime(rsp[24:32], c.LastWriteTime)
	encodeFiletime(rsp[32:40], c.ChangeTime)
	le.PutUint64(rsp[40:48], uint64(c.AllocationSize))
	le.PutUint64(rsp[48:56], uint64(c.EndofFile))
	le.PutUint32(rsp[56:60], c.FileAttributes)
}

type CloseResponseDecoder []byte

func (r CloseResponseDecoder) IsInvalid() bool {
	if len(r) < 60 {
		return true
	}

	if r.StructureSize() != 60 {
		return true
	}

	return false
}

func (r CloseResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r CloseResponseDecoder) Flags() uint16 {
	return le.Uint16(r[2:4])
}

func (r CloseResponseDecoder) EndofFile() int64 {
	return int64(le.Uint64(r[48:56]))
}

func (r CloseResponseDecoder) FileAttributes() uint32 {
	return le.Uint32(r[56:60])
}

// ----------------------------------------------------------------------------
// SMB2 READ Response Packet
//

type ReadResponse struct {
	PacketHeader

	Data          []byte
	DataRemaining uint32
}

func (c *ReadResponse) Size() int {
	return 64 + 16 + len(c.Data)
}

func (c *ReadResponse) Encode(pkt []byte) {
	c.Command = SMB2_READ
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 17)

	off := 16
	copy(rsp[off:], c.Data)
	rsp[2] = uint8(off + 64)
	le.PutUint32(rsp[4:8], uint32(len(c.Data)))
	le.PutUint32(rsp[8:12], c.DataRemaining)
}

type ReadResponseDecoder []byte

func (r ReadResponseDecoder) IsInvalid() bool {
	if len(r) < 16 {
		return true
	}

	if r.StructureSize() != 17 {
		return true
	}

	if r.DataLength() > 0 {
		off := int(r.DataOffset())
		if off < 64+16 || len(r) < off-64+int(r.DataLength()) {
			return true
		}
	}

	return false
}

func (r ReadResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r ReadResponseDecoder) DataOffset() uint8 {
	return r[2]
}

func (r ReadResponseDecoder) DataLength() uint32 {
	return le.Uint32(r[4:8])
}

func (r ReadResponseDecoder) DataRemaining() uint32 {
	return le.Uint32(r[8:12])
}

func (r ReadResponseDecoder) Data() []byte {
	if r.DataLength() == 0 {
		return nil
	}
	off := uint32(r.DataOffset()) - 64
	return r[off : off+r.DataLength()]
}

// ----------------------------------------------------------------------------
// SMB2 WRITE Response Packet
//

type WriteResponse struct {
	PacketHeader

	Count     uint32
	Remaining uint32
}

func (c *WriteResponse) Size() int {
	return 64 + 16
}

func (c *WriteResponse) Encode(pkt []byte) {
	c.Command = SMB2_WRITE
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 17)
	le.PutUint32(rsp[4:8], c.Count)
	le.PutUint32(rsp[8:12], c.Remaining)
}

type WriteResponseDecoder []byte

func (r WriteResponseDecoder) IsInvalid() bool {
	if len(r) < 16 {
		return true
	}

	if r.StructureSize() != 17 {
		return true
	}

	return false
}

func (r WriteResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r WriteResponseDecoder) Count() uint32 {
	return le.Uint32(r[4:8])
}

func (r WriteResponseDecoder) Remaining() uint32 {
	return le.Uint32(r[8:12])
}

// ----------------------------------------------------------------------------
// SMB2 ECHO Response Packet
//

type EchoResponse struct {
	PacketHeader
}

func (c *EchoResponse) Size() int {
	return 64 + 4
}

func (c *EchoResponse) Encode(pkt []byte) {
	c.Command = SMB2_ECHO
	c.encodeHeader(pkt)

	le.PutUint16(pkt[64:66], 4)
}

type EchoResponseDecoder []byte

func (r EchoResponseDecoder) IsInvalid() bool {
	return len(r) < 4 || le.Uint16(r[:2]) != 4
}

// ----------------------------------------------------------------------------
// SMB2 QUERY_DIRECTORY Response Packet
//

type QueryDirectoryResponse struct {
	PacketHeader

	Output Encoder
}

func (c *QueryDirectoryResponse) Size() int {
	return 64 + 8 + c.Output.Size()
}

func (c *QueryDirectoryResponse) Encode(pkt []byte) {
	c.Command = SMB2_QUERY_DIRECTORY
	c.encodeHeader(pkt)

	rsp := pkt[64:]
	le.PutUint16(rsp[:2], 9)

	off := 8
	c.Output.Encode(rsp[off:])
	le.PutUint16(rsp[2:4], uint16(off+64))
	le.PutUint32(rsp[4:8], uint32(c.Output.Size()))
}

type QueryDirectoryResponseDecoder []byte

func (r QueryDirectoryResponseDecoder) IsInvalid() bool {
	if len(r) < 8 {
		return true
	}

	if r.StructureSize() != 9 {
		return true
	}

	if r.OutputBufferLength() > 0 {
		off := int(r.OutputBufferOffset())
		if off < 64+8 || len(r) < off-64+int(r.OutputBufferLength()) {
			return true
		}
	}

	return false
}

func (r QueryDirectoryResponseDecoder) StructureSize() uint16 {
	return le.Uint16(r[:2])
}

func (r QueryDirectoryResponseDecoder) OutputBufferOffset() uint16 {
	return le.Uint16(r[2:4])
}

func (r QueryDirectoryResponseDecoder) OutputBufferLength() uint32 {
	return le.Uint32(r[4:8])
}

func (r QueryDirectoryResponseDecoder) OutputBuffer() []byte {
	if r.OutputBufferLength() == 0 {
		return nil
	}
	off := uint32(r.OutputBufferOffset()) - 64
	return r[off : off+r.OutputBufferLength()]
}

// FileDirectoryInfoList encodes a chain of entries, each 8-byte aligned.
type FileDirectoryInfoList []*FileDirectoryInfo

func (l FileDirectoryInfoList) Size() int {
	size := 0
	for i, e := range l {
		if i > 0 {
			size = Align(size, 8)
		}
		size += e.Size()
	}
	return size
}

func (l FileDirectoryInfoList) Encode(p []byte) {
	off := 0
	for i, e := range l {
		e.NextEntryOffset = 0
		if i < len(l)-1 {
			e.NextEntryOffset = uint32(Align(e.Size(), 8))
		}
		e.Encode(p[off:])
		off += int(e.NextEntryOffset)
	}
}
