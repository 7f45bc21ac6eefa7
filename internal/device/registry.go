package device

import "sync"

// Registry is the threadsafe map of devices known to this run. Devices are
// inserted by discovery and never removed; loggers that stop being returned
// by the platform simply go inert.
type Registry struct {
	mu sync.RWMutex
	m  map[int64]*Device
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[int64]*Device)}
}

// Get looks up a device by platform ID.
func (r *Registry) Get(id int64) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.m[id]
	return d, ok
}

// InsertIfAbsent adds the device unless its ID is already present,
// returning whether the insert happened.
func (r *Registry) InsertIfAbsent(d *Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[d.ID]; ok {
		return false
	}
	r.m[d.ID] = d
	return true
}

// Has reports whether a device ID is known.
func (r *Registry) Has(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[id]
	return ok
}

// IDs returns the set of known device IDs.
func (r *Registry) IDs() map[int64]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]struct{}, len(r.m))
	for id := range r.m {
		out[id] = struct{}{}
	}
	return out
}

// Snapshot returns the current devices. The slice is fresh; the pointed-to
// devices are shared.
func (r *Registry) Snapshot() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.m))
	for _, d := range r.m {
		out = append(out, d)
	}
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
