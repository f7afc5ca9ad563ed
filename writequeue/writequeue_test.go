package writequeue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

func noopExecutor(fd fusetypes.Fd, offset uint64, data []byte) (int, error) {
	return len(data), nil
}

func TestEnqueueReturnsMonotonicSeq(t *testing.T) {
	wq := New(Options{Executor: noopExecutor})
	var mu sync.Mutex
	var completions int
	done := make(chan struct{}, 3)

	complete := func(n int, err error) {
		mu.Lock()
		completions++
		mu.Unlock()
		done <- struct{}{}
	}

	s1, err := wq.Enqueue(1, 0, []byte("a"), Normal, complete)
	require.NoError(t, err)
	s2, err := wq.Enqueue(1, 1, []byte("b"), Normal, complete)
	require.NoError(t, err)
	s3, err := wq.Enqueue(1, 2, []byte("c"), Normal, complete)
	require.NoError(t, err)

	assert.Less(t, s1, s2)
	assert.Less(t, s2, s3)

	for i := 0; i < 3; i++ {
		<-done
	}
	mu.Lock()
	assert.Equal(t, 3, completions)
	mu.Unlock()
}

func TestPriorityOrderingWithinFD(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	var startedOnce sync.Once

	executor := func(fd fusetypes.Fd, offset uint64, data []byte) (int, error) {
		startedOnce.Do(func() {
			started <- struct{}{}
			<-block
		})
		return len(data), nil
	}

	wq := New(Options{Executor: executor})

	var mu sync.Mutex
	var order []string
	complete := func(name string) Completion {
		return func(n int, err error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	// First op blocks the drainer so the rest queue up before it resumes.
	_, err := wq.Enqueue(9, 0, []byte("x"), Normal, complete("blocker"))
	require.NoError(t, err)
	<-started

	_, err = wq.Enqueue(9, 4096, []byte("y"), Normal, complete("normal"))
	require.NoError(t, err)
	_, err = wq.Enqueue(9, 8192, []byte("z"), Urgent, complete("urgent"))
	require.NoError(t, err)
	_, err = wq.Enqueue(9, 0, []byte("w"), Low, complete("low"))
	require.NoError(t, err)

	close(block)
	require.True(t, wq.Flush(9, time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)
	assert.Equal(t, []string{"blocker", "urgent", "normal", "low"}, order)
}

func TestFlushTimesOut(t *testing.T) {
	block := make(chan struct{})
	executor := func(fd fusetypes.Fd, offset uint64, data []byte) (int, error) {
		<-block
		return len(data), nil
	}
	wq := New(Options{Executor: executor})

	_, err := wq.Enqueue(3, 0, []byte("x"), Normal, func(int, error) {})
	require.NoError(t, err)

	ok := wq.Flush(3, 20*time.Millisecond)
	assert.False(t, ok)

	close(block)
	assert.True(t, wq.Flush(3, time.Second))
}

func TestEnqueueRejectsWhenFDQueueFull(t *testing.T) {
	block := make(chan struct{})
	executor := func(fd fusetypes.Fd, offset uint64, data []byte) (int, error) {
		<-block
		return len(data), nil
	}
	wq := New(Options{Executor: executor, DefaultMaxQueueSize: 1})

	_, err := wq.Enqueue(5, 0, []byte("a"), Normal, func(int, error) {})
	require.NoError(t, err)
	// The blocker above is immediately popped by the drainer, so the
	// queue itself is empty; fill it for real now.
	time.Sleep(20 * time.Millisecond)

	_, err = wq.Enqueue(5, 1, []byte("b"), Normal, func(int, error) {})
	require.NoError(t, err)

	_, err = wq.Enqueue(5, 2, []byte("c"), Normal, func(int, error) {})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EAGAIN, code)

	close(block)
}

func TestDrainForShutdownCancelsNormalAndLowOnly(t *testing.T) {
	block := make(chan struct{})
	executor := func(fd fusetypes.Fd, offset uint64, data []byte) (int, error) {
		<-block
		return len(data), nil
	}
	wq := New(Options{Executor: executor})

	var mu sync.Mutex
	results := make(map[string]error)
	complete := func(name string) Completion {
		return func(n int, err error) {
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}
	}

	_, err := wq.Enqueue(7, 0, []byte("x"), Normal, complete("blocker"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = wq.Enqueue(7, 1, []byte("y"), Urgent, complete("urgent"))
	require.NoError(t, err)
	_, err = wq.Enqueue(7, 2, []byte("z"), Normal, complete("normal"))
	require.NoError(t, err)
	_, err = wq.Enqueue(7, 3, []byte("w"), Low, complete("low"))
	require.NoError(t, err)

	wq.DrainForShutdown()

	mu.Lock()
	normalErr := results["normal"]
	lowErr := results["low"]
	_, urgentDone := results["urgent"]
	mu.Unlock()

	require.Error(t, normalErr)
	code, ok := errno.FromError(normalErr)
	require.True(t, ok)
	assert.Equal(t, errno.ECANCELED, code)

	require.Error(t, lowErr)
	code, ok = errno.FromError(lowErr)
	require.True(t, ok)
	assert.Equal(t, errno.ECANCELED, code)

	assert.False(t, urgentDone, "urgent op should still be waiting on the blocked executor, not cancelled")

	close(block)
	require.True(t, wq.Flush(7, time.Second))
}

func TestAggregateStats(t *testing.T) {
	wq := New(Options{Executor: noopExecutor})
	done := make(chan struct{}, 2)
	complete := func(int, error) { done <- struct{}{} }

	_, err := wq.Enqueue(1, 0, []byte("abc"), Normal, complete)
	require.NoError(t, err)
	_, err = wq.Enqueue(2, 0, []byte("de"), Normal, complete)
	require.NoError(t, err)
	<-done
	<-done

	stats := wq.AggregateStats()
	assert.Equal(t, int64(2), stats.TotalOps)
	assert.Equal(t, int64(2), stats.CompletedOps)
	assert.Equal(t, int64(5), stats.BytesWritten)
}
