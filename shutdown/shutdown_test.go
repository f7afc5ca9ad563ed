package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDrainer struct {
	mu         sync.Mutex
	drainCalls int
	cancelled  bool
	drainOK    bool
}

func (f *fakeDrainer) Drain(timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drainCalls++
	return f.drainOK
}

func (f *fakeDrainer) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func TestGracefulShutdownReachesClosed(t *testing.T) {
	d := &fakeDrainer{drainOK: true}
	var phases []State
	var mu sync.Mutex

	m := New(Options{
		Drainers: []Drainer{d},
		Unmount:  func() error { return nil },
		Callbacks: Callbacks{
			OnPhase: func(s State, desc string) {
				mu.Lock()
				phases = append(phases, s)
				mu.Unlock()
			},
		},
	})

	stats := m.InitiateGracefulShutdown("unit test")

	assert.Equal(t, Closed, m.State())
	assert.True(t, stats.GracefulCompletion)
	d.mu.Lock()
	assert.Equal(t, 1, d.drainCalls)
	assert.False(t, d.cancelled)
	d.mu.Unlock()

	mu.Lock()
	assert.Equal(t, []State{Draining, Unmounting}, phases)
	mu.Unlock()
}

func TestForceImmediateShutdownCancelsDrainers(t *testing.T) {
	d := &fakeDrainer{drainOK: true}
	m := New(Options{
		Drainers: []Drainer{d},
		Unmount:  func() error { return nil },
	})

	stats := m.ForceImmediateShutdown("panic button")

	assert.Equal(t, Closed, m.State())
	assert.False(t, stats.GracefulCompletion)
	d.mu.Lock()
	assert.True(t, d.cancelled)
	assert.Equal(t, 0, d.drainCalls)
	d.mu.Unlock()
}

func TestUnmountTimeoutYieldsFailed(t *testing.T) {
	block := make(chan struct{})
	var failedState State
	var failedReason string

	m := New(Options{
		UnmountingTimeout: 20 * time.Millisecond,
		Unmount: func() error {
			<-block
			return nil
		},
		Callbacks: Callbacks{
			OnFailed: func(s State, reason string) {
				failedState = s
				failedReason = reason
			},
		},
	})
	defer close(block)

	m.InitiateGracefulShutdown("slow unmount")

	assert.Equal(t, Failed, m.State())
	assert.Equal(t, Unmounting, failedState)
	assert.NotEmpty(t, failedReason)
	assert.Equal(t, failedReason, m.FailureReason())
}

func TestUnmountErrorYieldsFailed(t *testing.T) {
	m := New(Options{
		Unmount: func() error { return assertErr{} },
	})

	m.InitiateGracefulShutdown("unmount failure")

	assert.Equal(t, Failed, m.State())
	assert.Equal(t, "boom", m.FailureReason())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestConcurrentCallersShareOneRun(t *testing.T) {
	d := &fakeDrainer{drainOK: true}
	m := New(Options{
		Drainers: []Drainer{d},
		Unmount:  func() error { return nil },
	})

	var wg sync.WaitGroup
	results := make([]Stats, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.InitiateGracefulShutdown("concurrent")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.GracefulCompletion)
	}
	d.mu.Lock()
	assert.Equal(t, 1, d.drainCalls)
	d.mu.Unlock()
}

func TestCallbacksInvokedInOrder(t *testing.T) {
	var events []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	m := New(Options{
		Unmount: func() error { return nil },
		Callbacks: Callbacks{
			OnBegin:    func(reason string) { record("begin:" + reason) },
			OnPhase:    func(s State, desc string) { record("phase:" + s.String()) },
			OnComplete: func(stats Stats) { record("complete") },
		},
	})

	m.InitiateGracefulShutdown("ordering check")

	require.Equal(t, []string{
		"begin:ordering check",
		"phase:DRAINING",
		"phase:UNMOUNTING",
		"complete",
	}, events)
}

func TestInitiateShutdownAfterClosedIsNoop(t *testing.T) {
	m := New(Options{Unmount: func() error { return nil }})
	first := m.InitiateGracefulShutdown("first")
	require.Equal(t, Closed, m.State())
	require.True(t, first.GracefulCompletion)

	// A second call observes the already-terminal state and returns the
	// same result without re-running any phase.
	second := m.InitiateGracefulShutdown("second")
	assert.Equal(t, Closed, m.State())
	assert.Equal(t, first, second)
}
