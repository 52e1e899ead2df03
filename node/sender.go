package node

import (
	"context"
	"io"

	"peer-node/message"
	"peer-node/peer"
	"peer-node/transport"

	"github.com/pkg/errors"
)

// SendTo opens a fresh connection to addr, sends one message and, if
// expectReplies is set, collects replies until the remote closes or ends
// them explicitly. The connection is always closed before returning.
//
// When the reply stream breaks mid-frame, the replies collected so far are
// returned along with the error.
func (n *Node) SendTo(ctx context.Context, addr transport.Addr, t string, payload []byte, expectReplies bool) ([]message.Message, error) {
	typ, err := message.NewType(t)
	if err != nil {
		return nil, err
	}
	return n.exchange(ctx, "", addr, typ, payload, expectReplies)
}

// SendToPeer routes a message toward the peer id through the registered
// router, failing with ErrNoRoute and no I/O when none applies.
func (n *Node) SendToPeer(ctx context.Context, id string, t string, payload []byte, expectReplies bool) ([]message.Message, error) {
	typ, err := message.NewType(t)
	if err != nil {
		return nil, err
	}

	next, ok := n.route(id)
	if !ok {
		n.log().Debug("unable to route", "type", typ.String(), "target", id)
		return nil, errors.Wrap(ErrNoRoute, id)
	}

	return n.exchange(ctx, next.ID, next.Addr, typ, payload, expectReplies)
}

func (n *Node) exchange(ctx context.Context, id string, addr transport.Addr, t message.Type, payload []byte, expectReplies bool) ([]message.Message, error) {
	logger := n.log().With("remote", addr.String(), "type", t.String())

	conn, err := n.dial(ctx, id, addr)
	if err != nil {
		n.metrics.OutboundSends.WithLabelValues(sendDialError).Inc()
		logger.Debug("dial failed", "error", err.Error())
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(t, payload); err != nil {
		n.metrics.OutboundSends.WithLabelValues(sendError).Inc()
		logger.Debug("send failed", "error", err.Error())
		return nil, err
	}

	if !expectReplies {
		n.metrics.OutboundSends.WithLabelValues(sendOK).Inc()
		return nil, nil
	}

	var replies []message.Message
	for {
		m, err := conn.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			n.metrics.OutboundSends.WithLabelValues(sendRecvError).Inc()
			logger.Debug("receiving replies", "error", err.Error(), "received", len(replies))
			return replies, err
		}
		if m.Type == message.TypeEndOfReplies {
			break
		}
		replies = append(replies, m)
	}

	n.metrics.OutboundSends.WithLabelValues(sendOK).Inc()
	return replies, nil
}

func (n *Node) dial(ctx context.Context, id string, addr transport.Addr) (*peer.Conn, error) {
	if n.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = n.clock.WithTimeout(ctx, n.opts.DialTimeout)
		defer cancel()
	}
	return peer.Dial(ctx, n.transport, id, addr, n.clock, n.opts.peerOptions())
}
