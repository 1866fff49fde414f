package session

import (
	"errors"
	"sync"
)

// ErrPoolExhausted is returned when no agent extension is available.
// New sessions are rejected rather than silently doubling up on a shared
// fallback extension, which would break the single-lease invariant.
var ErrPoolExhausted = errors.New("agent extension pool exhausted")

// Pool is the fixed set of agent extensions. Lease and release are single
// atomic steps so concurrent session creations cannot race onto the same
// extension.
type Pool struct {
	mu     sync.Mutex
	order  []string
	leased map[string]bool
}

// NewPool creates a pool with all extensions available.
func NewPool(extensions []string) *Pool {
	order := make([]string, len(extensions))
	copy(order, extensions)
	return &Pool{
		order:  order,
		leased: make(map[string]bool, len(extensions)),
	}
}

// Lease marks the next available extension busy and returns it.
func (p *Pool) Lease() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ext := range p.order {
		if !p.leased[ext] {
			p.leased[ext] = true
			return ext, nil
		}
	}
	return "", ErrPoolExhausted
}

// Release returns an extension to the pool. Releasing an unknown or
// already-free extension is a no-op.
func (p *Pool) Release(ext string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.leased, ext)
}

// Available returns how many extensions are currently free.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order) - len(p.leased)
}

// Size returns the total number of extensions.
func (p *Pool) Size() int {
	return len(p.order)
}
