package node

import (
	"context"
	"io"

	"peer-node/peer"
	"peer-node/transport"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Run listens on the node's port and serves inbound connections until
// Shutdown is called or ctx is done. Cancelling ctx also shuts the node
// down. Connections already accepted keep being served; use Wait for them.
func (n *Node) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	l, err := n.transport.Listen(ctx, transport.Addr{Host: n.opts.ListenHost, Port: n.opts.Port})
	if err != nil {
		n.running.Store(false)
		return errors.Wrap(err, "binding listener")
	}

	n.mu.Lock()
	if n.opts.Port == 0 {
		n.addr.Port = l.Addr().Port
	}
	n.logger = n.base.With("node", n.addr.String())
	n.mu.Unlock()

	logger := n.log().With("listen", l.Addr().String())
	logger.Info("server started")
	close(n.listening)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-n.shutdown:
			cancel()
		case <-runCtx.Done():
			n.Shutdown()
		}
	}()

	loopErr := n.acceptLoop(runCtx, l)

	cancel()
	<-watcherDone

	closeErr := l.Close()
	if errors.Is(closeErr, transport.ErrConnListenerClosed) {
		closeErr = nil
	}

	logger.Info("server stopped")
	return multierr.Combine(loopErr, errors.Wrap(closeErr, "closing listener"))
}

func (n *Node) acceptLoop(ctx context.Context, l transport.ConnListener) error {
	for {
		if n.sem != nil {
			if err := n.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		con, err := n.accept(ctx, l)
		if err != nil {
			n.release()

			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				n.log().Debug("listening")
				continue
			case errors.Is(err, transport.ErrConnListenerClosed):
				return errors.Wrap(err, "accepting")
			default:
				n.log().Error("unexpected error when accepting connection", "error", err.Error())
				continue
			}
		}

		n.metrics.ConnsAccepted.Inc()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer n.release()
			n.serve(con)
		}()
	}
}

func (n *Node) accept(ctx context.Context, l transport.ConnListener) (transport.Conn, error) {
	ctx, cancel := n.clock.WithTimeout(ctx, n.opts.AcceptTimeout)
	defer cancel()
	return l.Accept(ctx)
}

func (n *Node) release() {
	if n.sem != nil {
		n.sem.Release(1)
	}
}

// serve reads exactly one message from con, dispatches it and closes con,
// whatever happened in between.
func (n *Node) serve(con transport.Conn) {
	n.metrics.HandlersInFlight.Inc()
	defer n.metrics.HandlersInFlight.Dec()

	conn := peer.Accept(con, n.clock, n.opts.peerOptions())
	logger := n.log().With("remote", conn.RemoteAddr().String())

	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("closing connection", "error", err.Error())
		}
	}()

	m, err := conn.Receive()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			logger.Debug("peer closed without sending")
		case peer.IsEnd(err):
			logger.Warn("malformed frame", "error", err.Error())
		default:
			logger.Error("receiving message", "error", err.Error())
		}
		return
	}

	logger = logger.With("type", m.Type.String())
	logger.Debug("handling message", "payload_len", len(m.Payload))

	if err := n.dispatch(conn, m); err != nil {
		switch {
		case errors.Is(err, ErrUnknownType):
			logger.Warn("no handler for message type")
		case errors.Is(err, ErrHandlerPanic):
			logger.Error("handler panicked", "error", err.Error())
		default:
			logger.Error("handler failed", "error", err.Error())
		}
	}
}
