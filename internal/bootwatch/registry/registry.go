// Package registry merges the snapshots of every discovery adapter into one device list.
package registry

import (
	"sort"
	"sync"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
	"github.com/autopeer-io/bootwatch/pkg/log"
)

// Registry holds the latest snapshot of each adapter. Each snapshot replaces
// the previous contribution of its adapter as a whole.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]device.Snapshot
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{adapters: make(map[string]device.Snapshot)}
}

// Update replaces the devices contributed by adapterID. An empty snapshot removes them.
func (r *Registry) Update(adapterID string, snap device.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(snap) == 0 {
		delete(r.adapters, adapterID)
	} else {
		r.adapters[adapterID] = snap.Clone()
	}

	log.Debug("Device list updated", "adapter", adapterID, "devices", len(snap))
}

// Sink returns a snapshot callback that feeds adapterID's contribution.
func (r *Registry) Sink(adapterID string) func(device.Snapshot) {
	return func(snap device.Snapshot) {
		r.Update(adapterID, snap)
	}
}

// ForAdapter returns the devices contributed by adapterID.
func (r *Registry) ForAdapter(adapterID string) (device.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.adapters[adapterID]
	return snap.Clone(), ok
}

// List returns every device, grouped by adapter in adapter id order.
func (r *Registry) List() device.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := device.Snapshot{}
	for _, id := range ids {
		out = append(out, r.adapters[id].Clone()...)
	}
	return out
}

// Adapters returns the ids of adapters currently contributing devices.
func (r *Registry) Adapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
