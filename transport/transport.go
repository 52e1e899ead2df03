package transport

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Addr is the information needed to reach a peer.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}

var ErrInvalidAddr = errors.New("invalid address")

// ParseAddr parses "host:port".
func ParseAddr(s string) (Addr, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, errors.Wrap(ErrInvalidAddr, err.Error())
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Addr{}, errors.Wrapf(ErrInvalidAddr, "port %q", port)
	}

	return Addr{Host: host, Port: uint16(p)}, nil
}

// Transport is what a node needs from the network: listening for inbound
// connections and dialing outbound ones.
type Transport interface {
	ConnDialer
	Listen(ctx context.Context, addr Addr) (ConnListener, error)
}
