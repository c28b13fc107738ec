package smb2

import (
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
)

const (
	clientCapabilities = SMB2_GLOBAL_CAP_LARGE_MTU
)

var (
	clientHashAlgorithms = []uint16{SHA512}
	clientDialects       = []uint16{SMB202, SMB210, SMB300, SMB302, SMB311}
)

const (
	clientMaxCreditBalance = 128
)

// ChunkSize is the unit of every READ and WRITE issued by transfers.
const ChunkSize = 64 * 1024

const (
	defaultPort           = 445
	defaultRequestTimeout = 30 * time.Second
	defaultDialTimeout    = 10 * time.Second
	closeTimeout          = 5 * time.Second
)
