package projection

import "sync"

// Dispatcher runs publish callbacks on the context that owns the consumer
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs callbacks immediately on the calling goroutine
type Inline struct{}

// Dispatch runs fn
func (Inline) Dispatch(fn func()) { fn() }

// MainQueue is a serial executor: callbacks run one at a time, in dispatch
// order, on a single goroutine.
type MainQueue struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewMainQueue starts the executor goroutine
func NewMainQueue() *MainQueue {
	q := &MainQueue{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *MainQueue) run() {
	defer close(q.done)
	for fn := range q.tasks {
		fn()
	}
}

// Dispatch queues fn. It must not be called after Close.
func (q *MainQueue) Dispatch(fn func()) {
	q.tasks <- fn
}

// Sync blocks until every callback dispatched before it has run
func (q *MainQueue) Sync() {
	ran := make(chan struct{})
	q.Dispatch(func() { close(ran) })
	<-ran
}

// Close runs the queued callbacks and stops the executor
func (q *MainQueue) Close() {
	q.once.Do(func() { close(q.tasks) })
	<-q.done
}
