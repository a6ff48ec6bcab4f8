package store

import (
	"sync"
	"sync/atomic"
)

type versioned[S any] struct {
	version uint64
	snap    S
}

type observer[S any] struct {
	id uint64
	fn func(S)
}

// Publisher holds an immutable snapshot and notifies observers each time it is
// replaced. Reads are lock-free; observers run synchronously, in registration
// order, once per publish.
type Publisher[S any] struct {
	current atomic.Pointer[versioned[S]]

	mu        sync.Mutex
	observers []observer[S]
	nextID    uint64
}

// NewPublisher creates a publisher holding initial at version 0
func NewPublisher[S any](initial S) *Publisher[S] {
	p := &Publisher[S]{}
	p.current.Store(&versioned[S]{snap: initial})
	return p
}

// Snapshot returns the current snapshot. Callers must not modify its slices.
func (p *Publisher[S]) Snapshot() S {
	return p.current.Load().snap
}

// Version returns the version of the current snapshot
func (p *Publisher[S]) Version() uint64 {
	return p.current.Load().version
}

// Subscribe registers fn to receive every future snapshot. The returned
// function removes the registration.
func (p *Publisher[S]) Subscribe(fn func(S)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.observers = append(p.observers, observer[S]{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

// publish swaps in the snapshot built for the next version and notifies observers
func (p *Publisher[S]) publish(build func(version uint64) S) {
	next := p.current.Load().version + 1
	snap := build(next)
	p.current.Store(&versioned[S]{version: next, snap: snap})

	p.mu.Lock()
	observers := append([]observer[S](nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
}
