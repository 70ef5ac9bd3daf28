package messaging

import (
	"sync"
	"time"

	"cart-autofill/internal/types"
)

// Lease is a held registry slot. Only the lease that took a slot can release it.
type Lease struct {
	Site  types.Site
	token uint64
}

type registryEntry struct {
	expires time.Time
	token   uint64
}

// Registry records which sites have an automation in flight.
// Entries expire after their TTL so a stuck run cannot block a site forever.
type Registry struct {
	mu      sync.Mutex
	entries map[types.Site]registryEntry
	seq     uint64
	now     func() time.Time
}

// NewRegistry creates an empty registry on the wall clock
func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock creates an empty registry reading time from now
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		entries: make(map[types.Site]registryEntry),
		now:     now,
	}
}

// TryAcquire marks site active for ttl. It returns false if an unexpired entry exists.
func (r *Registry) TryAcquire(site types.Site, ttl time.Duration) (Lease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry, ok := r.entries[site]; ok && now.Before(entry.expires) {
		return Lease{}, false
	}
	r.seq++
	r.entries[site] = registryEntry{expires: now.Add(ttl), token: r.seq}
	return Lease{Site: site, token: r.seq}, true
}

// Release frees the lease's site. A lease that expired and was taken over
// by a later run leaves the newer entry in place.
func (r *Registry) Release(lease Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[lease.Site]; ok && entry.token == lease.token {
		delete(r.entries, lease.Site)
	}
}

// Active reports whether site has an unexpired entry
func (r *Registry) Active(site types.Site) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[site]
	if !ok {
		return false
	}
	if !r.now().Before(entry.expires) {
		delete(r.entries, site)
		return false
	}
	return true
}
