package chatlog

import "sync"

// Registry holds the buffers that currently receive deliveries.
type Registry struct {
	mu      sync.Mutex
	buffers []*Buffer
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds one membership record for b. Disposed buffers are ignored.
func (r *Registry) Register(b *Buffer) bool {
	if b == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.disposed.Load() {
		return false
	}
	r.buffers = append(r.buffers, b)
	return true
}

// Unregister removes every membership record of b. Removing a buffer that is
// not registered does nothing.
func (r *Registry) Unregister(b *Buffer) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.buffers[:0]
	for _, x := range r.buffers {
		if x != b {
			kept = append(kept, x)
		}
	}
	for i := len(kept); i < len(r.buffers); i++ {
		r.buffers[i] = nil
	}
	r.buffers = kept
}

// Snapshot returns a copy of the current membership.
func (r *Registry) Snapshot() []*Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Buffer(nil), r.buffers...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
