package node

import (
	"context"
	"slices"
	"sync"
	"time"

	"peer-node/registry"

	"golang.org/x/sync/errgroup"
)

// CheckLivePeers probes every known peer with a PING on a fresh connection
// and drops the ones that could not be reached. It returns the dropped ids.
//
// Peers are not retried. If ctx ends while probing, nothing is dropped.
func (n *Node) CheckLivePeers(ctx context.Context) []string {
	entries := n.peers.Entries()

	var (
		mu   sync.Mutex
		dead []string
	)

	var g errgroup.Group
	g.SetLimit(n.opts.LivenessParallelism)

	for _, e := range entries {
		g.Go(func() error {
			if err := n.ping(ctx, e); err != nil {
				n.log().Debug("peer unreachable", "peer", e.ID, "error", err.Error())

				mu.Lock()
				dead = append(dead, e.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil
	}

	removed := n.peers.RemoveAll(dead...)
	n.metrics.PeersPruned.Add(float64(removed))
	if removed > 0 {
		n.log().Info("pruned unreachable peers", "count", removed)
	}

	slices.Sort(dead)
	return dead
}

func (n *Node) ping(ctx context.Context, e registry.Entry) error {
	conn, err := n.dial(ctx, e.ID, e.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Send(PingType, nil)
}

// StartLivenessChecker runs CheckLivePeers every interval as a stabilizer.
func (n *Node) StartLivenessChecker(interval time.Duration) {
	n.StartStabilizer(func() {
		n.CheckLivePeers(context.Background())
	}, interval)
}
