// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch is the thread-safe bridge between the kernel adapter and
// the operation wrappers in fuseops: a bounded, priority-ordered queue fed
// by the adapter's I/O threads and drained by a small worker pool, with
// exactly-once reply, cancellation and timeout support, matching the
// contract of spec.md §4.5.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

// Priority orders requests within the dispatcher queue; higher values run
// first. Only HIGH/NORMAL/LOW are used by the dispatcher (the write queue
// has its own, wider URGENT..LOW range).
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case High:
		return "HIGH"
	case Normal:
		return "NORMAL"
	default:
		return "LOW"
	}
}

// Request is one unit of dispatcher work: an operation wrapper invocation
// plus the bookkeeping the dispatcher needs to reply exactly once.
//
// Invoke is called on a worker goroutine with a context that is cancelled
// if the request is aborted or times out; it must return the result to
// hand to the kernel (an errno.Error, or any other value the caller
// recognizes) and nothing else. Reply, supplied by the caller, is invoked
// by the dispatcher exactly once with that result.
type Request struct {
	Ino       fusetypes.Ino
	OpType    string
	Priority  Priority
	Invoke    func(context.Context) (interface{}, error)
	Reply     func(interface{}, error)
	TimeoutMs uint32

	// Abort, if non-nil, is closed by the submitter to cancel the request
	// before it resolves.
	Abort <-chan struct{}

	enqueuedAt time.Time
	seq        uint64
}

// Stats mirrors the counters spec.md §4.5 requires.
type Stats struct {
	TotalDispatched int64
	TotalCompleted  int64
	TotalErrors     int64
	QueueSizeCurrent int64
	QueueSizeMax     int64
	AvgLatencyMs     float64
	UptimeMs         int64
}

// Options configures a Dispatcher.
type Options struct {
	// MaxQueueSize bounds the queue; 0 means unlimited.
	MaxQueueSize int
	// WorkerThreads is the size of the worker pool draining the queue.
	WorkerThreads int
	Clock         timeutil.Clock
}

// Dispatcher implements spec.md §4.5: a bounded priority queue with a
// worker pool, fed by Submit and drained internally.
//
// GUARDED_BY(mu)
type Dispatcher struct {
	opt   Options
	clock timeutil.Clock

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	queues [3][]*Request // indexed by Priority

	// GUARDED_BY(mu)
	perInoFIFO map[fusetypes.Ino]uint64 // last-enqueued seq, for ordering documentation only

	// GUARDED_BY(mu)
	nextSeq uint64

	// GUARDED_BY(mu)
	stats Stats

	// GUARDED_BY(mu)
	closed bool

	startedAt time.Time

	notify chan struct{}
	wg     sync.WaitGroup
	stopWg sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Dispatcher and starts its worker pool. Stop must be
// called to release the workers.
func New(opt Options) *Dispatcher {
	if opt.WorkerThreads <= 0 {
		opt.WorkerThreads = 1
	}
	if opt.Clock == nil {
		opt.Clock = timeutil.RealClock()
	}

	d := &Dispatcher{
		opt:        opt,
		clock:      opt.Clock,
		perInoFIFO: make(map[fusetypes.Ino]uint64),
		startedAt:  opt.Clock.Now(),
		notify:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	d.mu = syncutil.NewInvariantMutex(d.checkInvariants)

	for i := 0; i < opt.WorkerThreads; i++ {
		d.stopWg.Add(1)
		go d.worker()
	}

	return d
}

func (d *Dispatcher) checkInvariants() {
	// INVARIANT: nextSeq never decreases across calls (monotonic sequence
	// numbers); enforced implicitly by never writing it backwards.
}

// Submit enqueues req. If the queue is full (MaxQueueSize > 0 and already
// at capacity), it synchronously replies EAGAIN per spec.md §4.5 and
// returns without queueing the request.
func (d *Dispatcher) Submit(req *Request) {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		req.Reply(nil, errno.Error(errno.ESHUTDOWN))
		return
	}

	if d.opt.MaxQueueSize > 0 && d.queueLenLocked() >= d.opt.MaxQueueSize {
		d.mu.Unlock()
		req.Reply(nil, errno.Error(errno.EAGAIN))
		return
	}

	d.nextSeq++
	req.seq = d.nextSeq
	req.enqueuedAt = d.clock.Now()

	d.queues[req.Priority] = append(d.queues[req.Priority], req)
	d.perInoFIFO[req.Ino] = req.seq

	d.stats.TotalDispatched++
	cur := int64(d.queueLenLocked())
	d.stats.QueueSizeCurrent = cur
	if cur > d.stats.QueueSizeMax {
		d.stats.QueueSizeMax = cur
	}

	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// queueLenLocked returns the total number of queued requests across all
// priority tiers. Caller must hold mu.
func (d *Dispatcher) queueLenLocked() int {
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

// popLocked removes and returns the highest-priority, oldest request, or
// nil if the queue is empty. Caller must hold mu.
func (d *Dispatcher) popLocked() *Request {
	for p := High; p >= Low; p-- {
		q := d.queues[p]
		if len(q) == 0 {
			continue
		}
		req := q[0]
		d.queues[p] = q[1:]
		return req
	}
	return nil
}

func (d *Dispatcher) worker() {
	defer d.stopWg.Done()

	for {
		d.mu.Lock()
		req := d.popLocked()
		if req != nil {
			d.stats.QueueSizeCurrent = int64(d.queueLenLocked())
		}
		closed := d.closed
		d.mu.Unlock()

		if req != nil {
			d.run(req)
			continue
		}

		if closed {
			return
		}

		select {
		case <-d.notify:
		case <-d.stopCh:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// run executes one request's handler with cancellation/timeout support and
// delivers exactly one reply, per spec.md §4.5's "Cancellation"/"Timeout"
// clauses.
func (d *Dispatcher) run(req *Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if req.TimeoutMs > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer timeoutCancel()
	}

	resultCh := make(chan struct {
		val interface{}
		err error
	}, 1)

	go func() {
		val, err := req.Invoke(ctx)
		resultCh <- struct {
			val interface{}
			err error
		}{val, err}
	}()

	var replied sync.Once
	reply := func(val interface{}, err error) {
		replied.Do(func() {
			req.Reply(val, err)
			d.recordCompletion(req, err)
		})
	}

	select {
	case res := <-resultCh:
		reply(res.val, res.err)
	case <-req.Abort:
		cancel()
		reply(nil, errno.Error(errno.EINTR))
		// The handler's eventual result, if any, is discarded by never
		// reading resultCh again; the goroutine above still exits once
		// Invoke observes ctx.Done().
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			reply(nil, errno.Error(errno.ETIMEDOUT))
		}
	}
}

func (d *Dispatcher) recordCompletion(req *Request, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.TotalCompleted++
	if err != nil {
		d.stats.TotalErrors++
	}

	latencyMs := float64(d.clock.Now().Sub(req.enqueuedAt)) / float64(time.Millisecond)
	n := float64(d.stats.TotalCompleted)
	d.stats.AvgLatencyMs += (latencyMs - d.stats.AvgLatencyMs) / n
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.QueueSizeCurrent = int64(d.queueLenLocked())
	s.UptimeMs = int64(d.clock.Now().Sub(d.startedAt) / time.Millisecond)
	return s
}

// Drain blocks until the queue is empty or the deadline elapses, returning
// false on timeout. Used by the shutdown state machine to wait out the
// DRAINING phase.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		empty := d.queueLenLocked() == 0
		d.mu.Unlock()
		if empty {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// CancelAll replies ECANCELED to every request still queued (not yet
// dispatched to a worker) and empties the queue, for
// force_immediate_shutdown per spec.md §4.7.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	pending := d.queues
	d.queues = [3][]*Request{}
	d.mu.Unlock()

	for _, q := range pending {
		for _, req := range q {
			req.Reply(nil, errno.Error(errno.ECANCELED))
		}
	}
}

// Close stops accepting new requests (Submit thereafter replies ESHUTDOWN)
// and shuts down the worker pool once the queue drains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)
	d.stopWg.Wait()
}
