package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrConnClosed         = errors.New("connection is closed")
	ErrConnListenerClosed = errors.New("conn listener is closed")
	ErrDeadLineExceeded   = errors.New("deadline exceeded")
	ErrNetUnreachable     = errors.New("network is unreachable")
	ErrConnRefused        = errors.New("connection refused")
	ErrAddrAlreadyInUse   = errors.New("address already in use")
)

// Conn is a bidirectional byte stream.
// Read returns [ErrConnClosed] once either side has closed and nothing is left to read.
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	LocalAddr() Addr
	RemoteAddr() Addr

	// Zero time means no deadline.
	SetReadDeadLine(t time.Time)
	SetWriteDeadLine(t time.Time)
}

type ConnListener interface {
	// Accept blocks until a connection arrives or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Addr() Addr
	Close() error
}

type ConnDialer interface {
	Dial(ctx context.Context, addr Addr) (Conn, error)
}
