// Package tcp adapts the operating system's TCP stack to [transport.Transport].
package tcp

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"peer-node/transport"

	"github.com/pkg/errors"
)

// DefaultAcceptPollInterval bounds each blocking accept,
// so a listener notices a done context without a connection arriving.
const DefaultAcceptPollInterval = 250 * time.Millisecond

type Options struct {
	AcceptPollInterval time.Duration
	KeepAlive          time.Duration
}

type Transport struct {
	opts   Options
	dialer net.Dialer
}

var _ transport.Transport = (*Transport)(nil)

func New(opts Options) *Transport {
	if opts.AcceptPollInterval <= 0 {
		opts.AcceptPollInterval = DefaultAcceptPollInterval
	}
	return &Transport{
		opts:   opts,
		dialer: net.Dialer{KeepAlive: opts.KeepAlive},
	}
}

func (t *Transport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrap(convertErr(err), "dialing "+addr.String())
	}
	return &conn{c: c}, nil
}

func (t *Transport) Listen(ctx context.Context, addr transport.Addr) (transport.ConnListener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrap(convertErr(err), "listening on "+addr.String())
	}

	return &listener{
		l:            l.(*net.TCPListener),
		pollInterval: t.opts.AcceptPollInterval,
	}, nil
}

type listener struct {
	l            *net.TCPListener
	pollInterval time.Duration
}

func (l *listener) Addr() transport.Addr { return fromNetAddr(l.l.Addr()) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(l.pollInterval)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := l.l.SetDeadline(deadline); err != nil {
			return nil, l.convertErr(err)
		}

		c, err := l.l.Accept()
		if err == nil {
			return &conn{c: c}, nil
		}

		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}

		return nil, l.convertErr(err)
	}
}

func (l *listener) Close() error {
	return l.convertErr(l.l.Close())
}

func (l *listener) convertErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return errors.Wrap(transport.ErrConnListenerClosed, err.Error())
	}
	return convertErr(err)
}

type conn struct {
	c net.Conn
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.c.Read(p)
	return n, convertErr(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.c.Write(p)
	return n, convertErr(err)
}

func (c *conn) Close() error {
	err := c.c.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *conn) LocalAddr() transport.Addr  { return fromNetAddr(c.c.LocalAddr()) }
func (c *conn) RemoteAddr() transport.Addr { return fromNetAddr(c.c.RemoteAddr()) }

func (c *conn) SetReadDeadLine(t time.Time)  { _ = c.c.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { _ = c.c.SetWriteDeadline(t) }

// convertErr maps OS level errors onto transport's sentinel errors,
// keeping the original as context.
func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return errors.Wrap(transport.ErrConnClosed, err.Error())
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errors.Wrap(transport.ErrDeadLineExceeded, err.Error())
	case errors.Is(err, syscall.ECONNREFUSED):
		return errors.Wrap(transport.ErrConnRefused, err.Error())
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return errors.Wrap(transport.ErrNetUnreachable, err.Error())
	case errors.Is(err, syscall.EADDRINUSE):
		return errors.Wrap(transport.ErrAddrAlreadyInUse, err.Error())
	}
	return err
}

func fromNetAddr(a net.Addr) transport.Addr {
	if tcpAddr, ok := a.(*net.TCPAddr); ok {
		return transport.Addr{Host: tcpAddr.IP.String(), Port: uint16(tcpAddr.Port)}
	}

	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return transport.Addr{Host: a.String()}
	}
	p, _ := strconv.ParseUint(port, 10, 16)
	return transport.Addr{Host: host, Port: uint16(p)}
}
