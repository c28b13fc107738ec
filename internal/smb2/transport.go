package smb2

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFrameSize bounds a single session-service frame.
const MaxFrameSize = 1<<24 - 1

const keepAliveFrame = 0x85

var ErrFrameTooLarge = errors.New("frame too large")

// Transport moves length-prefixed SMB2 messages over a byte stream.
// ReadSize and Read must be called in pairs from a single goroutine.
type Transport interface {
	Write(p []byte) (n int, err error)
	ReadSize() (n int, err error)
	Read(p []byte) (n int, err error)
	SetDeadline(t time.Time) error
	Close() error
}

type direct struct {
	tcp net.Conn
	bw  *bufio.Writer
	br  *bufio.Reader
	hdr [4]byte
}

// Direct wraps a stream connection with direct TCP (port 445) framing.
func Direct(tcp net.Conn) Transport {
	return &direct{
		tcp: tcp,
		bw:  bufio.NewWriter(tcp),
		br:  bufio.NewReader(tcp),
	}
}

func (t *direct) Write(p []byte) (n int, err error) {
	if len(p) > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(p))
	}

	t.hdr[0] = 0
	t.hdr[1] = byte(len(p) >> 16)
	t.hdr[2] = byte(len(p) >> 8)
	t.hdr[3] = byte(len(p))

	if _, err = t.bw.Write(t.hdr[:]); err != nil {
		return 0, err
	}

	n, err = t.bw.Write(p)
	if err != nil {
		return n, err
	}

	return n, t.bw.Flush()
}

func (t *direct) ReadSize() (n int, err error) {
	for {
		if _, err = io.ReadFull(t.br, t.hdr[:]); err != nil {
			return 0, err
		}

		switch t.hdr[0] {
		case 0:
			return int(t.hdr[1])<<16 | int(t.hdr[2])<<8 | int(t.hdr[3]), nil
		case keepAliveFrame:
			continue
		default:
			return 0, fmt.Errorf("unexpected frame type 0x%02x", t.hdr[0])
		}
	}
}

func (t *direct) Read(p []byte) (n int, err error) {
	return io.ReadFull(t.br, p)
}

func (t *direct) SetDeadline(deadline time.Time) error {
	return t.tcp.SetDeadline(deadline)
}

func (t *direct) Close() error {
	return t.tcp.Close()
}
