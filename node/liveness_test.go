package node

import (
	"context"
	"sync/atomic"
	"time"

	"peer-node/peer"
	"peer-node/transport"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func (s *NodeTestSuite) TestCheckLivePeers() {
	var pings atomic.Int32

	alive := s.newNode(5001)
	s.Require().NoError(alive.RegisterHandler(PingType.String(), func(_ *peer.Conn, payload []byte) error {
		if len(payload) == 0 {
			pings.Add(1)
		}
		return nil
	}))
	s.start(alive)

	checker := s.newNode(5002)
	checker.AddPeer(alive.ID(), alive.Addr())
	checker.AddPeer("pipe:5003", transport.Addr{Host: "pipe", Port: 5003})

	pruned := checker.CheckLivePeers(context.Background())
	s.Equal([]string{"pipe:5003"}, pruned)
	s.Equal([]string{alive.ID()}, checker.PeerIDs())
	s.Equal(1.0, testutil.ToFloat64(checker.metrics.PeersPruned))

	s.Eventually(func() bool { return pings.Load() == 1 }, time.Second, time.Millisecond)
}

func (s *NodeTestSuite) TestCheckLivePeersWithoutPingHandler() {
	alive := s.newNode(5001)
	s.start(alive)

	checker := s.newNode(5002)
	checker.AddPeer(alive.ID(), alive.Addr())

	s.Empty(checker.CheckLivePeers(context.Background()))
	s.Equal(1, checker.PeerCount())
}

func (s *NodeTestSuite) TestCheckLivePeersLeavesSlots() {
	checker := s.newNode(5002)
	dead := transport.Addr{Host: "pipe", Port: 5003}
	checker.AddPeer(dead.String(), dead)
	checker.AddPeerAt(0, dead.String(), dead)

	s.Equal([]string{dead.String()}, checker.CheckLivePeers(context.Background()))
	s.Zero(checker.PeerCount())

	_, ok := checker.GetPeerAt(0)
	s.True(ok)
}

func (s *NodeTestSuite) TestCheckLivePeersInParallel() {
	checker := s.newNode(5002, func(o *Options) { o.LivenessParallelism = 4 })

	var expected []string
	for port := uint16(6001); port <= 6008; port++ {
		addr := transport.Addr{Host: "pipe", Port: port}
		checker.AddPeer(addr.String(), addr)
		expected = append(expected, addr.String())
	}

	s.Equal(expected, checker.CheckLivePeers(context.Background()))
	s.Zero(checker.PeerCount())
	s.Equal(8.0, testutil.ToFloat64(checker.metrics.PeersPruned))
}

func (s *NodeTestSuite) TestCheckLivePeersCancelled() {
	checker := s.newNode(5002)
	checker.AddPeer("pipe:5003", transport.Addr{Host: "pipe", Port: 5003})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Nil(checker.CheckLivePeers(ctx))
	s.Equal(1, checker.PeerCount())
}

func (s *NodeTestSuite) TestStartLivenessChecker() {
	alive := s.newNode(5001)
	s.start(alive)

	checker := s.newNode(5002)
	checker.AddPeer(alive.ID(), alive.Addr())
	checker.AddPeer("pipe:5003", transport.Addr{Host: "pipe", Port: 5003})

	checker.StartLivenessChecker(10 * time.Millisecond)

	s.Eventually(func() bool {
		return checker.PeerCount() == 1
	}, time.Second, 5*time.Millisecond)
	s.Equal([]string{alive.ID()}, checker.PeerIDs())
}
