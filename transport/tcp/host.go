package tcp

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// DefaultProbeTarget is only used to pick a route; nothing is sent to it.
const DefaultProbeTarget = "8.8.8.8:80"

// OutboundHost reports the local IP the OS would use to reach target,
// i.e. the address other peers most likely see this host as.
// An empty target means [DefaultProbeTarget].
func OutboundHost(ctx context.Context, target string) (string, error) {
	if target == "" {
		target = DefaultProbeTarget
	}

	// Connecting a UDP socket only resolves the route.
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return "", errors.Wrap(convertErr(err), "probing outbound route")
	}
	defer c.Close()

	addr, ok := c.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.Errorf("unexpected local address type %T", c.LocalAddr())
	}

	return addr.IP.String(), nil
}
