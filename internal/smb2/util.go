package smb2

import (
	"encoding/binary"
	"regexp"
	"strings"
	"time"
)

var (
	le = binary.LittleEndian
)

func Roundup(x, align int) int {
	return (x + (align - 1)) &^ (align - 1)
}

func Align(n int, a int) int {
	return (n + a - 1) &^ (a - 1)
}

func wildcardToRegexp(pattern string) string {
	return "(?i)^" + strings.ReplaceAll(strings.ReplaceAll(regexp.QuoteMeta(pattern), `\?`, "."), `\*`, ".*") + "$"
}

// MatchWildcard reports whether s matches a DOS style pattern, case-insensitively.
func MatchWildcard(s, pattern string) bool {
	r, err := regexp.Compile(wildcardToRegexp(pattern))
	if err != nil {
		return false
	}
	return r.MatchString(s)
}

func ContainsWildcard(s string) bool {
	return strings.Contains(s, "*") || strings.Contains(s, "?")
}

func (f *FileId) HandleId() uint64 {
	return le.Uint64(f.Volatile[:])
}

func (f *FileId) SetHandleId(n uint64) {
	le.PutUint64(f.Volatile[:], n)
}

func (f *FileId) NodeId() uint64 {
	return le.Uint64(f.Persistent[:])
}

func (f *FileId) SetNodeId(n uint64) {
	le.PutUint64(f.Persistent[:], n)
}

func IsInvalidFileId(f *FileId) bool {
	return f == nil || (f.HandleId() == ^uint64(0) && f.NodeId() == ^uint64(0))
}

func TimeToFiletime(t time.Time) *Filetime {
	if t.IsZero() {
		return &Filetime{}
	}
	return NsecToFiletime(t.UnixNano())
}

func FiletimeToTime(ft *Filetime) time.Time {
	if ft.IsZero() {
		return time.Time{}
	}
	return time.Unix(0, ft.Nanoseconds())
}

// PrepareResponse fills the header of a reply to req.
func PrepareResponse(rsp *PacketHeader, req []byte, status uint32) {
	p := PacketCodec(req)
	rsp.Command = p.Command()
	rsp.CreditRequestResponse = p.CreditRequest()
	rsp.MessageId = p.MessageId()
	rsp.Flags = SMB2_FLAGS_SERVER_TO_REDIR | (p.Flags() & SMB2_FLAGS_PRIORITY_MASK)
	rsp.TreeId = p.TreeId()
	rsp.SessionId = p.SessionId()
	rsp.Status = status
}

func PrepareAsyncResponse(rsp *PacketHeader, req []byte, asyncId uint64, status uint32) {
	PrepareResponse(rsp, req, status)
	if asyncId != 0 {
		rsp.Flags |= SMB2_FLAGS_ASYNC_COMMAND
	}
	rsp.AsyncId = asyncId
}
