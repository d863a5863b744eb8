package retrieval

import "sync"

// PinRegistry tracks node ids held by open retrieval result sets. The
// pruning pass consults it so a node selected for an in-flight generation is
// never evicted underneath the turn. Pins are reference-counted since
// concurrent turns may retrieve the same node.
type PinRegistry struct {
	mu   sync.Mutex
	refs map[string]int
}

// NewPinRegistry creates an empty pin registry
func NewPinRegistry() *PinRegistry {
	return &PinRegistry{refs: make(map[string]int)}
}

// Pin increments the reference count for each id
func (p *PinRegistry) Pin(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.refs[id]++
	}
}

// Release decrements the reference count for each id
func (p *PinRegistry) Release(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if p.refs[id] <= 1 {
			delete(p.refs, id)
		} else {
			p.refs[id]--
		}
	}
}

// IsPinned reports whether any open result set still references the id
func (p *PinRegistry) IsPinned(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs[id] > 0
}
