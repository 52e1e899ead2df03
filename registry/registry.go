// Package registry keeps the peers a node knows about.
//
// It holds two independent tables sharing one entry shape:
// an identity-keyed one, and a slot-keyed one for overlays that need
// fixed-size neighbor tables (e.g. finger tables). Nothing keeps the two
// in sync; a peer may be in either, both or neither.
package registry

import (
	"maps"
	"slices"
	"sync"

	"peer-node/transport"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("peer not found")

type Entry struct {
	ID   string
	Addr transport.Addr
}

// Registry is safe for concurrent use. Each operation is atomic on its own;
// nothing spans several operations.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]transport.Addr
	slots map[int]Entry

	onChange func(count int)
}

func New() *Registry {
	return &Registry{
		peers: make(map[string]transport.Addr),
		slots: make(map[int]Entry),
	}
}

// OnChange registers fn to be called with the new peer count
// whenever the identity table grows or shrinks. fn runs under the registry lock
// and must not call back into the registry.
func (r *Registry) OnChange(fn func(count int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Add inserts id if it is not known yet and reports whether it did.
// A known id keeps its original address.
func (r *Registry) Add(id string, addr transport.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; ok {
		return false
	}

	r.peers[id] = addr
	r.changedLocked()
	return true
}

func (r *Registry) Get(id string) (transport.Addr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.peers[id]
	if !ok {
		return transport.Addr{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return addr, nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.peers[id]
	return ok
}

// Remove deletes id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.RemoveAll(id)
}

// RemoveAll deletes every id under a single lock and returns how many were present.
func (r *Registry) RemoveAll(ids ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := r.peers[id]; ok {
			delete(r.peers, id)
			removed++
		}
	}

	if removed > 0 {
		r.changedLocked()
	}
	return removed
}

// IDs returns a sorted snapshot of the known identities.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.peers))
}

// Entries returns a snapshot of the identity table, sorted by id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.peers))
	for _, id := range slices.Sorted(maps.Keys(r.peers)) {
		entries = append(entries, Entry{ID: id, Addr: r.peers[id]})
	}
	return entries
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}

// AddAt stores the entry at slot, replacing whatever was there.
func (r *Registry) AddAt(slot int, id string, addr transport.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots[slot] = Entry{ID: id, Addr: addr}
}

func (r *Registry) GetAt(slot int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.slots[slot]
	return e, ok
}

// RemoveAt empties slot. The identity table is left alone: slot numbers and
// ids are separate namespaces, so removing a slot never falls through to
// Remove, even when the slot's entry names a known id.
func (r *Registry) RemoveAt(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.slots, slot)
}

// Slots returns the occupied slots in ascending order.
func (r *Registry) Slots() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.slots))
}

func (r *Registry) changedLocked() {
	if r.onChange != nil {
		r.onChange(len(r.peers))
	}
}
