package pipe

import (
	"context"
	"math/rand/v2"
	"sync"

	"peer-node/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type pipeRequest struct {
	conn     *pipe
	accepted chan struct{}
}

// PipeTransport is an in-memory [transport.Transport].
// Listeners are keyed by address; dialing an address nobody listens on
// fails with [transport.ErrNetUnreachable].
type PipeTransport struct {
	listeners map[transport.Addr]*pipeListener
	ports     *transport.PortTable
	clock     clock.Clock

	// Host given to dialing endpoints.
	localHost string

	mu sync.Mutex
}

var _ transport.Transport = (*PipeTransport)(nil)

func NewPipeTransport(clock clock.Clock) *PipeTransport {
	return &PipeTransport{
		listeners: make(map[transport.Addr]*pipeListener),
		ports: transport.NewPortTable(transport.EphemeralPortOptions{
			Range:  [2]uint16{49152, 65535},
			Rand:   func() uint16 { return uint16(rand.UintN(1 << 16)) },
			MaxTry: 64,
		}),
		clock:     clock,
		localHost: "pipe",
	}
}

func (pt *PipeTransport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	pt.mu.Lock()
	listener, ok := pt.listeners[addr]
	pt.mu.Unlock()

	if !ok {
		return nil, errors.Wrap(transport.ErrNetUnreachable, addr.String())
	}

	ok, port, release := pt.ports.Occupy(0)
	if !ok {
		return nil, errors.New("no ephemeral port left")
	}

	p1, p2 := Pipe(transport.Addr{Host: pt.localHost, Port: port}, addr, pt.clock)
	p1.onClose = release

	req := pipeRequest{
		conn:     p2,
		accepted: make(chan struct{}, 1),
	}

	fail := func(err error) (transport.Conn, error) {
		p1.Close()
		return nil, err
	}

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-listener.closed:
		return fail(transport.ErrConnRefused)
	case listener.requests <- req:
	}

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-listener.closed:
		return fail(transport.ErrConnRefused)
	case <-req.accepted:
	}

	return p1, nil
}

// Listen starts listening on addr. Port 0 picks an ephemeral port.
func (pt *PipeTransport) Listen(ctx context.Context, addr transport.Addr) (transport.ConnListener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if addr.Host == "" {
		addr.Host = pt.localHost
	}

	ok, port, release := pt.ports.Occupy(addr.Port)
	if !ok {
		return nil, errors.Wrap(transport.ErrAddrAlreadyInUse, addr.String())
	}
	addr.Port = port

	if _, ok := pt.listeners[addr]; ok {
		release()
		return nil, errors.Wrap(transport.ErrAddrAlreadyInUse, addr.String())
	}

	pl := &pipeListener{
		addr:      addr,
		transport: pt,
		requests:  make(chan pipeRequest),
		closed:    make(chan struct{}),
		release:   release,
	}
	pt.listeners[addr] = pl

	return pl, nil
}

type pipeListener struct {
	addr transport.Addr

	transport *PipeTransport
	release   func()

	requests chan pipeRequest
	closed   chan struct{}

	mu sync.Mutex
}

var _ transport.ConnListener = (*pipeListener)(nil)

func (pl *pipeListener) Addr() transport.Addr { return pl.addr }

func (pl *pipeListener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pl.closed:
		return nil, transport.ErrConnListenerClosed
	case request := <-pl.requests:
		// accepted is buffered, so this never blocks.
		request.accepted <- struct{}{}
		return request.conn, nil
	}
}

func (pl *pipeListener) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if isClosed(pl.closed) {
		return transport.ErrConnListenerClosed
	}

	close(pl.closed)

	pl.transport.mu.Lock()
	delete(pl.transport.listeners, pl.addr)
	pl.transport.mu.Unlock()

	if pl.release != nil {
		pl.release()
	}

	return nil
}
