package projection

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
		return 0
	}
}

type counterPipeline struct {
	*Pipeline[int, int, int]
	value     atomic.Int64
	captures  atomic.Int64
	published chan int
}

func newCounterPipeline(dispatcher Dispatcher, debounce time.Duration, compute func(int) int) *counterPipeline {
	c := &counterPipeline{published: make(chan int, 16)}
	if compute == nil {
		compute = func(v int) int { return v }
	}
	c.Pipeline = New(Config[int, int, int]{
		Capture: func() int {
			c.captures.Add(1)
			return int(c.value.Load())
		},
		Key:        func(v int) int { return v },
		Compute:    compute,
		Publish:    func(v int) { c.published <- v },
		Dispatcher: dispatcher,
		Debounce:   debounce,
	})
	return c
}

func TestPipelineCoalescesBursts(t *testing.T) {
	p := newCounterPipeline(Inline{}, 50*time.Millisecond, nil)
	p.Start(context.Background())
	defer p.Stop()

	for i := 1; i <= 20; i++ {
		p.value.Store(int64(i))
		p.Trigger()
	}

	if got := receive(t, p.published); got != 20 {
		t.Errorf("published %d, want latest input 20", got)
	}
	if got := p.Computations(); got != 1 {
		t.Errorf("Computations() = %d, want 1", got)
	}
	if got := p.State(); got != Published {
		t.Errorf("State() = %v, want %v", got, Published)
	}
}

func TestPipelineSkipsEqualKeys(t *testing.T) {
	p := newCounterPipeline(Inline{}, 0, nil)
	p.value.Store(7)
	p.Start(context.Background())
	defer p.Stop()

	p.Trigger()
	receive(t, p.published)

	p.Trigger()
	eventually(t, "second capture", func() bool { return p.captures.Load() == 2 })

	if got := p.Computations(); got != 1 {
		t.Errorf("Computations() = %d, want 1", got)
	}
	select {
	case v := <-p.published:
		t.Errorf("unexpected publish of %d", v)
	default:
	}
}

func TestPipelineVisibilityGate(t *testing.T) {
	p := newCounterPipeline(Inline{}, 0, nil)
	p.SetVisible(false)
	p.Start(context.Background())
	defer p.Stop()

	p.value.Store(1)
	p.Trigger()
	eventually(t, "first pending result", func() bool { return p.State() == PendingPublish })

	p.value.Store(2)
	p.Trigger()
	eventually(t, "second pending result", func() bool {
		return p.Computations() == 2 && p.State() == PendingPublish
	})

	select {
	case v := <-p.published:
		t.Fatalf("published %d while hidden", v)
	default:
	}

	p.SetVisible(true)
	if got := receive(t, p.published); got != 2 {
		t.Errorf("flushed %d, want 2", got)
	}
	if got := p.State(); got != Published {
		t.Errorf("State() = %v, want %v", got, Published)
	}

	// a second flush with nothing pending publishes nothing
	p.SetVisible(true)
	select {
	case v := <-p.published:
		t.Errorf("unexpected second flush of %d", v)
	default:
	}
}

func TestPipelineHidingDoesNotAbortComputation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := newCounterPipeline(Inline{}, 0, func(v int) int {
		close(started)
		<-release
		return v * 10
	})
	p.value.Store(3)
	p.Start(context.Background())
	defer p.Stop()

	p.Trigger()
	<-started
	if got := p.State(); got != Computing {
		t.Fatalf("State() = %v, want %v", got, Computing)
	}
	p.SetVisible(false)
	close(release)

	eventually(t, "pending result", func() bool { return p.State() == PendingPublish })
	p.SetVisible(true)
	if got := receive(t, p.published); got != 30 {
		t.Errorf("published %d, want 30", got)
	}
}

func TestPipelineLastWinsOnMainQueue(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Close()

	gate := make(chan struct{})
	blocked := make(chan struct{}, 1)
	p := newCounterPipeline(queue, 0, func(v int) int {
		if v == 1 {
			blocked <- struct{}{}
			<-gate
		}
		return v
	})
	p.value.Store(1)
	p.Start(context.Background())
	defer p.Stop()

	p.Trigger()
	<-blocked
	for i := 2; i <= 5; i++ {
		p.value.Store(int64(i))
		p.Trigger()
	}
	close(gate)

	if got := receive(t, p.published); got != 1 {
		t.Errorf("first publish = %d, want 1", got)
	}
	if got := receive(t, p.published); got != 5 {
		t.Errorf("second publish = %d, want 5", got)
	}
	queue.Sync()
	if got := p.Computations(); got != 2 {
		t.Errorf("Computations() = %d, want 2", got)
	}
}

func TestPipelineStopsOnContextCancel(t *testing.T) {
	p := newCounterPipeline(Inline{}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
	p.Stop()
}

func TestMainQueueRunsInOrder(t *testing.T) {
	queue := NewMainQueue()
	var got []int
	for i := 0; i < 10; i++ {
		queue.Dispatch(func() { got = append(got, i) })
	}
	queue.Close()

	for i, v := range got {
		if v != i {
			t.Fatalf("callbacks ran as %v, want ascending", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d callbacks, want 10", len(got))
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:           "idle",
		Computing:      "computing",
		PendingPublish: "pendingPublish",
		Published:      "published",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
