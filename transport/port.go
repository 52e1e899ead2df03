package transport

import (
	"sync"

	"github.com/pkg/errors"
)

// PortTable hands out ports of one host, so in-memory transports can
// mimic bind conflicts and ephemeral ports.
type PortTable struct {
	table map[uint16]struct{}
	mu    sync.Mutex

	ephemeral [2]uint16 // start, end
	rand      func() uint16
	maxTry    uint
}

type EphemeralPortOptions struct {
	Range  [2]uint16 // [start, end)
	Rand   func() uint16
	MaxTry uint
}

func (o EphemeralPortOptions) validate() error {
	if o.Range[0] > o.Range[1] {
		return errors.Errorf("end(%d) must be greater or equal than start(%d)", o.Range[1], o.Range[0])
	}
	if o.Rand == nil {
		return errors.New("rand function must be provided")
	}
	return nil
}

func NewPortTable(opts EphemeralPortOptions) *PortTable {
	if err := opts.validate(); err != nil {
		panic(err)
	}

	return &PortTable{
		table:     make(map[uint16]struct{}),
		ephemeral: opts.Range,
		rand:      opts.Rand,
		maxTry:    opts.MaxTry,
	}
}

// Occupy reserves port, or an ephemeral one if port is 0.
// release gives the port back; calling it more than once is harmless.
func (p *PortTable) Occupy(port uint16) (ok bool, result uint16, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port != 0 {
		if release, ok := p.occupyLocked(port); ok {
			return true, port, release
		}
		return false, 0, nil
	}

	if p.ephemeral[0] == p.ephemeral[1] {
		return false, 0, nil
	}

	for try := uint(0); try < p.maxTry; try++ {
		candidate := p.ephemeral[0] + p.rand()%(p.ephemeral[1]-p.ephemeral[0])
		if candidate == 0 {
			continue
		}

		if release, ok := p.occupyLocked(candidate); ok {
			return true, candidate, release
		}
	}

	return false, 0, nil
}

// Occupied reports how many ports are currently taken.
func (p *PortTable) Occupied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}

func (p *PortTable) occupyLocked(port uint16) (release func(), ok bool) {
	if _, found := p.table[port]; found {
		return nil, false
	}

	p.table[port] = struct{}{}

	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.table, port)
		})
	}

	return release, true
}
