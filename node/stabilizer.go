package node

import (
	"fmt"
	"time"
)

// StartStabilizer runs fn now and then every interval, until the node is
// shut down. Shutdown is noticed between runs, never inside one.
// A panic in fn is logged and the next run goes ahead as scheduled.
func (n *Node) StartStabilizer(fn func(), interval time.Duration) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		for !n.isShutdown() {
			n.stabilize(fn)

			select {
			case <-n.shutdown:
				return
			case <-n.clock.After(interval):
			}
		}
	}()
}

func (n *Node) stabilize(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.log().Error("stabilizer panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
