package server

import "sync"

// registry tracks live connections by fd. The kernel recycles fds, so
// removal is identity-checked: a stale entry for a recycled fd is never
// clobbered by the previous owner's teardown.
type registry struct {
	mu    sync.Mutex
	conns map[int]*Conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[int]*Conn)}
}

func (r *registry) Insert(fd int, c *Conn) {
	r.mu.Lock()
	r.conns[fd] = c
	r.mu.Unlock()
}

func (r *registry) Lookup(fd int) (*Conn, bool) {
	r.mu.Lock()
	c, ok := r.conns[fd]
	r.mu.Unlock()
	return c, ok
}

// Remove deletes fd only while it still maps to c.
func (r *registry) Remove(fd int, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[fd]; ok && cur == c {
		delete(r.conns, fd)
		return true
	}
	return false
}

func (r *registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Drain empties the registry and hands back what was in it.
func (r *registry) Drain() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.conns = make(map[int]*Conn)
	return out
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
