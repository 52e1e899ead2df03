// Package peer wraps one transport connection with message framing.
package peer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"peer-node/message"
	"peer-node/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// ErrClosed is returned by every operation on a closed [Conn].
var ErrClosed = errors.New("peer connection is closed")

type Options struct {
	Decode message.DecodeOptions

	// ReadTimeout bounds each Receive, WriteTimeout each Send. 0 means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

var DefaultOptions = Options{
	Decode: message.DefaultDecodeOptions,
}

// Conn is an open connection to a peer, either dialed or accepted.
// Sends are serialized; receives are meant to be done by one goroutine.
// A closed Conn stays inert.
type Conn struct {
	id   string
	con  transport.Conn
	opts Options

	clock clock.Clock

	sendMu sync.Mutex
	enc    *message.Encoder

	recvMu sync.Mutex
	dec    *message.Decoder

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial opens a new connection to the peer id at addr.
func Dial(ctx context.Context, d transport.ConnDialer, id string, addr transport.Addr, clock clock.Clock, opts Options) (*Conn, error) {
	con, err := d.Dial(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing peer %q", id)
	}
	return newConn(id, con, clock, opts), nil
}

// Accept wraps a connection a listener returned.
// The remote's identity is unknown at this layer, so ID is empty.
func Accept(con transport.Conn, clock clock.Clock, opts Options) *Conn {
	return newConn("", con, clock, opts)
}

func newConn(id string, con transport.Conn, clock clock.Clock, opts Options) *Conn {
	return &Conn{
		id:    id,
		con:   con,
		opts:  opts,
		clock: clock,
		enc:   message.NewEncoder(con),
		dec:   message.NewDecoder(con, opts.Decode),
	}
}

func (c *Conn) ID() string                 { return c.id }
func (c *Conn) RemoteAddr() transport.Addr { return c.con.RemoteAddr() }
func (c *Conn) LocalAddr() transport.Addr  { return c.con.LocalAddr() }

// Send writes one frame. Concurrent Sends never interleave their bytes.
// A failed send is not retried.
func (c *Conn) Send(t message.Type, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	if timeout := c.opts.WriteTimeout; timeout > 0 {
		c.con.SetWriteDeadLine(c.clock.Now().Add(timeout))
	}

	if err := c.enc.Encode(message.Message{Type: t, Payload: payload}); err != nil {
		return errors.Wrapf(err, "sending %s", t)
	}
	return nil
}

// EndReplies tells the remote that no more replies follow.
func (c *Conn) EndReplies() error {
	return c.Send(message.TypeEndOfReplies, nil)
}

// Receive reads one frame.
//
// It returns [io.EOF] once the remote closed the connection between frames,
// and an error wrapping [message.ErrShortRead] if it closed inside one.
// Use [IsEnd] when both simply mean "no more messages".
func (c *Conn) Receive() (message.Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.closed.Load() {
		return message.Message{}, ErrClosed
	}

	if timeout := c.opts.ReadTimeout; timeout > 0 {
		c.con.SetReadDeadLine(c.clock.Now().Add(timeout))
	}

	m, err := c.dec.Decode()
	if err != nil {
		if c.closed.Load() {
			// Closed under our feet by another goroutine.
			return message.Message{}, ErrClosed
		}
		if err == io.EOF {
			return message.Message{}, io.EOF
		}
		return message.Message{}, errors.Wrap(err, "receiving")
	}
	return m, nil
}

// Close releases the transport. Calling it again is a no-op returning the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.con.Close()
	})
	return c.closeErr
}

// IsEnd reports whether err from [Conn.Receive] means no further message can be trusted:
// a clean end of stream, a truncated frame or a closed connection.
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, message.ErrShortRead) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, transport.ErrConnClosed)
}
