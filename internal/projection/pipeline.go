// Package projection recomputes display-ready state from store snapshots off
// the caller's goroutine and publishes it only while its consumer is visible.
package projection

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the coalescing window for bursts of store changes
const DefaultDebounce = 16 * time.Millisecond

// State is the publish state of a pipeline
type State int

const (
	Idle State = iota
	Computing
	PendingPublish
	Published
)

func (s State) String() string {
	switch s {
	case Computing:
		return "computing"
	case PendingPublish:
		return "pendingPublish"
	case Published:
		return "published"
	default:
		return "idle"
	}
}

// Config wires a pipeline.
//
// Capture must be cheap: it runs once per coalesced burst and should only grab
// snapshots. Key reduces the captured input to a comparable value; equal keys
// skip recomputation. Compute builds the full state on the worker goroutine.
// Publish receives results on the Dispatcher.
type Config[I any, K comparable, S any] struct {
	Capture    func() I
	Key        func(I) K
	Compute    func(I) S
	Publish    func(S)
	Dispatcher Dispatcher
	Debounce   time.Duration
}

// Pipeline is a visibility-gated projection. Triggers land in a mailbox of
// size one, so any number of triggers during a computation cause at most one
// more computation, over the latest inputs.
type Pipeline[I any, K comparable, S any] struct {
	cfg     Config[I, K, S]
	mailbox chan struct{}

	mu           sync.Mutex
	state        State
	visible      bool
	pending      S
	hasPending   bool
	pendingSeq   uint64
	lastKey      K
	hasKey       bool
	seq          uint64
	computations int

	pubMu   sync.Mutex
	lastPub uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped, visible pipeline. A nil Dispatcher means Inline.
func New[I any, K comparable, S any](cfg Config[I, K, S]) *Pipeline[I, K, S] {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = Inline{}
	}
	return &Pipeline[I, K, S]{
		cfg:     cfg,
		mailbox: make(chan struct{}, 1),
		visible: true,
	}
}

// Start runs the worker until ctx is cancelled or Stop is called
func (p *Pipeline[I, K, S]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop ends the worker and waits for it. An in-flight computation finishes first.
func (p *Pipeline[I, K, S]) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Trigger records that inputs changed. It never blocks.
func (p *Pipeline[I, K, S]) Trigger() {
	select {
	case p.mailbox <- struct{}{}:
	default:
	}
}

// SetVisible opens or closes the publish gate. Opening it publishes the
// pending result, if any. Closing it never cancels a computation.
func (p *Pipeline[I, K, S]) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	if !visible || !p.hasPending {
		p.mu.Unlock()
		return
	}
	result, seq := p.pending, p.pendingSeq
	var zero S
	p.pending, p.hasPending = zero, false
	p.state = Published
	p.mu.Unlock()

	p.dispatch(seq, result)
}

// State returns the current publish state
func (p *Pipeline[I, K, S]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Computations returns how many times Compute has run
func (p *Pipeline[I, K, S]) Computations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computations
}

func (p *Pipeline[I, K, S]) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.mailbox:
		}

		if p.cfg.Debounce > 0 {
			timer := time.NewTimer(p.cfg.Debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		// triggers inside the window are covered by this capture
		select {
		case <-p.mailbox:
		default:
		}

		p.step()
	}
}

// step captures, dedupes, computes and publishes or parks one result
func (p *Pipeline[I, K, S]) step() {
	input := p.cfg.Capture()
	key := p.cfg.Key(input)

	p.mu.Lock()
	if p.hasKey && key == p.lastKey {
		p.mu.Unlock()
		return
	}
	p.state = Computing
	p.computations++
	p.mu.Unlock()

	result := p.cfg.Compute(input)

	p.mu.Lock()
	p.lastKey, p.hasKey = key, true
	p.seq++
	seq := p.seq
	if !p.visible {
		p.pending, p.hasPending, p.pendingSeq = result, true, seq
		p.state = PendingPublish
		p.mu.Unlock()
		return
	}
	var zero S
	p.pending, p.hasPending = zero, false
	p.state = Published
	p.mu.Unlock()

	p.dispatch(seq, result)
}

// dispatch publishes on the dispatcher, dropping results older than the last
// one published
func (p *Pipeline[I, K, S]) dispatch(seq uint64, result S) {
	p.cfg.Dispatcher.Dispatch(func() {
		p.pubMu.Lock()
		defer p.pubMu.Unlock()
		if seq <= p.lastPub {
			return
		}
		p.lastPub = seq
		p.cfg.Publish(result)
	})
}
