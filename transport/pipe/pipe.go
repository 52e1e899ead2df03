// Borrowed the idea from net.Pipe, but deadlines run on an injected clock
// and the endpoints carry transport addresses.
package pipe

import (
	"sync"
	"time"

	"peer-node/transport"

	"github.com/benbjohnson/clock"
)

type pipe struct {
	stream chan []byte // stream that this pipe reads from.
	nc     chan int    // counterpart's respond will be sent here.

	writeMu sync.Mutex

	closed  chan struct{}
	once    sync.Once
	onClose func()

	rdeadLine *chanDeadLine
	wdeadLine *chanDeadLine

	// the opposite pipe.
	counterpart *pipe

	addr transport.Addr
}

var _ transport.Conn = (*pipe)(nil)

// Pipe creates a pair of connected, synchronous, unbuffered conns.
// A write returns only after the counterpart has read every byte.
func Pipe(addr1, addr2 transport.Addr, clock clock.Clock) (c1, c2 *pipe) {
	c1, c2 = newPipe(addr1, clock), newPipe(addr2, clock)
	c1.counterpart, c2.counterpart = c2, c1
	return
}

func newPipe(addr transport.Addr, clock clock.Clock) *pipe {
	return &pipe{
		stream:    make(chan []byte),
		nc:        make(chan int),
		closed:    make(chan struct{}),
		rdeadLine: newChanDeadLine(clock),
		wdeadLine: newChanDeadLine(clock),
		addr:      addr,
	}
}

func (p *pipe) LocalAddr() transport.Addr  { return p.addr }
func (p *pipe) RemoteAddr() transport.Addr { return p.counterpart.addr }

func (p *pipe) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.rdeadLine.stop()
		p.wdeadLine.stop()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

func (p *pipe) Read(b []byte) (n int, err error) {
	if err := p.checkOK(p.rdeadLine); err != nil {
		return 0, err
	}

	select {
	case received := <-p.stream:
		n := copy(b, received)
		p.counterpart.nc <- n
		return n, nil
	case <-p.closed:
		return 0, transport.ErrConnClosed
	case <-p.counterpart.closed:
		return 0, transport.ErrConnClosed
	case <-p.rdeadLine.wait():
		return 0, transport.ErrDeadLineExceeded
	}
}

func (p *pipe) Write(b []byte) (n int, err error) {
	if err := p.checkOK(p.wdeadLine); err != nil {
		return 0, err
	}

	if len(b) == 0 {
		return 0, nil
	}

	// Serialize writes so two writers never interleave.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	nn := 0
	for len(b) > 0 {
		select {
		case p.counterpart.stream <- b:
			n := <-p.nc
			b = b[n:]
			nn += n
		case <-p.closed:
			return nn, transport.ErrConnClosed
		case <-p.counterpart.closed:
			return nn, transport.ErrConnClosed
		case <-p.wdeadLine.wait():
			return nn, transport.ErrDeadLineExceeded
		}
	}

	return nn, nil
}

func (p *pipe) checkOK(d *chanDeadLine) error {
	switch {
	case isClosed(p.closed), isClosed(p.counterpart.closed):
		return transport.ErrConnClosed
	case isClosed(d.wait()):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

func (p *pipe) SetReadDeadLine(t time.Time)  { p.rdeadLine.set(t) }
func (p *pipe) SetWriteDeadLine(t time.Time) { p.wdeadLine.set(t) }

type chanDeadLine struct {
	clock clock.Clock

	t *clock.Timer
	m sync.Mutex

	fired chan struct{}
}

func newChanDeadLine(clock clock.Clock) *chanDeadLine {
	return &chanDeadLine{
		clock: clock,
		fired: make(chan struct{}),
	}
}

func (d *chanDeadLine) set(t time.Time) {
	d.m.Lock()
	defer d.m.Unlock()

	d.stopLocked()

	if isClosed(d.fired) {
		d.fired = make(chan struct{})
	}

	if t.IsZero() {
		return
	}

	if d.clock.Until(t) <= 0 {
		close(d.fired)
		return
	}

	fired := d.fired
	d.t = d.clock.AfterFunc(d.clock.Until(t), func() {
		d.m.Lock()
		defer d.m.Unlock()
		if !isClosed(fired) {
			close(fired)
		}
	})
}

func (d *chanDeadLine) stop() {
	d.m.Lock()
	defer d.m.Unlock()
	d.stopLocked()
}

func (d *chanDeadLine) stopLocked() {
	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}
}

func (d *chanDeadLine) wait() <-chan struct{} {
	d.m.Lock()
	defer d.m.Unlock()
	return d.fired
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
