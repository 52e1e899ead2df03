// Package node ties the peer registry, the handler table and the
// transport together into a running peer.
//
// A node accepts one message per inbound connection, hands it to the
// handler registered for its type and closes the connection afterwards.
// Outbound traffic uses a fresh connection per exchange.
package node

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"peer-node/message"
	"peer-node/registry"
	"peer-node/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNoRoute        = errors.New("no route to peer")
	ErrUnknownType    = errors.New("no handler for message type")
	ErrAlreadyRunning = errors.New("node is already running")
	ErrHandlerPanic   = errors.New("handler panicked")
	ErrNilHandler     = errors.New("handler must not be nil")
)

// PingType is what liveness probes send, with an empty payload.
var PingType = message.MustType("PING")

type Node struct {
	transport transport.Transport
	clock     clock.Clock
	opts      Options
	metrics   *Metrics

	peers *registry.Registry

	mu       sync.RWMutex
	base     *slog.Logger
	logger   *slog.Logger // base plus the node's id, refreshed once Run binds.
	handlers map[message.Type]HandlerFunc
	router   RouteFunc
	addr     transport.Addr

	running      atomic.Bool
	listening    chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	sem *semaphore.Weighted
}

func New(t transport.Transport, logger *slog.Logger, clock clock.Clock, opts Options) (*Node, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	if !opts.Debug {
		logger = slog.New(withLevelFloor(logger.Handler(), slog.LevelInfo))
	}

	host := opts.Host
	if host == "" {
		ctx := context.Background()
		if opts.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = clock.WithTimeout(ctx, opts.DialTimeout)
			defer cancel()
		}

		h, err := opts.HostResolver(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolving advertised host")
		}
		host = h
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry(), "peernode")
	}

	n := &Node{
		transport: t,
		base:      logger,
		clock:     clock,
		opts:      opts,
		metrics:   metrics,
		peers:     registry.New(),
		handlers:  make(map[message.Type]HandlerFunc),
		addr:      transport.Addr{Host: host, Port: opts.Port},
		listening: make(chan struct{}),
		shutdown:  make(chan struct{}),
	}
	n.peers.OnChange(func(count int) { metrics.Peers.Set(float64(count)) })

	if opts.MaxConcurrentConns > 0 {
		n.sem = semaphore.NewWeighted(opts.MaxConcurrentConns)
	}

	n.logger = n.base.With("node", n.addr.String())

	return n, nil
}

// ID is the node's identity, its advertised host:port.
func (n *Node) ID() string { return n.Addr().String() }

func (n *Node) Addr() transport.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.addr
}

func (n *Node) Port() uint16 { return n.Addr().Port }

func (n *Node) log() *slog.Logger {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.logger
}

// Listening is closed once Run has bound its listener.
func (n *Node) Listening() <-chan struct{} { return n.listening }

// Shutdown asks Run, every stabilizer and the liveness checker to stop.
// Connections already being served run to completion.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() { close(n.shutdown) })
}

func (n *Node) isShutdown() bool {
	select {
	case <-n.shutdown:
		return true
	default:
		return false
	}
}

// Wait blocks until every handler and stabilizer goroutine has exited.
func (n *Node) Wait() { n.wg.Wait() }

func (n *Node) Peers() *registry.Registry { return n.peers }

func (n *Node) AddPeer(id string, addr transport.Addr) bool { return n.peers.Add(id, addr) }

func (n *Node) GetPeer(id string) (transport.Addr, error) { return n.peers.Get(id) }

func (n *Node) RemovePeer(id string) { n.peers.Remove(id) }

func (n *Node) AddPeerAt(slot int, id string, addr transport.Addr) { n.peers.AddAt(slot, id, addr) }

func (n *Node) GetPeerAt(slot int) (registry.Entry, bool) { return n.peers.GetAt(slot) }

func (n *Node) RemovePeerAt(slot int) { n.peers.RemoveAt(slot) }

func (n *Node) PeerIDs() []string { return n.peers.IDs() }

func (n *Node) PeerCount() int { return n.peers.Count() }
