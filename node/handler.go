package node

import (
	"fmt"

	"peer-node/message"
	"peer-node/peer"
	"peer-node/registry"

	"github.com/pkg/errors"
)

// HandlerFunc serves one inbound message. conn stays open until it returns,
// so replies are sent on it; the node closes it afterwards.
type HandlerFunc func(conn *peer.Conn, payload []byte) error

// RouteFunc picks the next hop toward target.
type RouteFunc func(target string) (next registry.Entry, ok bool)

// RegisterHandler binds h to t, replacing any earlier handler for it.
func (n *Node) RegisterHandler(t string, h HandlerFunc) error {
	typ, err := message.NewType(t)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.Wrap(ErrNilHandler, t)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
	return nil
}

func (n *Node) RegisterRouter(r RouteFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.router = r
}

func (n *Node) handler(t message.Type) (HandlerFunc, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.handlers[t]
	return h, ok
}

func (n *Node) route(target string) (registry.Entry, bool) {
	n.mu.RLock()
	r := n.router
	n.mu.RUnlock()

	if r == nil {
		return registry.Entry{}, false
	}
	return r(target)
}

func (n *Node) dispatch(conn *peer.Conn, m message.Message) (err error) {
	t := m.Type
	if n.opts.Dispatch.FoldCase {
		t = t.Upper()
	}

	h, ok := n.handler(t)
	if !ok {
		n.metrics.MessagesUnhandled.Inc()
		return errors.Wrap(ErrUnknownType, t.String())
	}

	label := t.String()
	n.metrics.MessagesDispatched.WithLabelValues(label).Inc()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(ErrHandlerPanic, fmt.Sprint(r))
		}
		if err != nil {
			n.metrics.HandlerErrors.WithLabelValues(label).Inc()
		}
	}()

	return h(conn, m.Payload)
}
