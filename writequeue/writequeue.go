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

// Package writequeue implements the per-file-descriptor write queue of
// spec.md §4.6: one MPSC queue per fd, four priority tiers (URGENT > HIGH >
// NORMAL > LOW), monotonically increasing per-fd sequence numbers, and
// flush/flush-all barriers that observe every write enqueued before them.
package writequeue

import (
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

// Priority orders writes within one fd's queue; higher values drain first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Urgent
)

// Executor performs the actual write for one queued operation, returning
// bytes written (>= 0) or a negative-errno-carrying error.
type Executor func(fd fusetypes.Fd, offset uint64, data []byte) (int, error)

// Completion is invoked exactly once per enqueued operation, with the
// executor's result.
type Completion func(n int, err error)

type opEntry struct {
	offset     uint64
	data       []byte
	priority   Priority
	completion Completion
	seq        uint64
	enqueuedAt time.Time
}

// Stats mirrors the per-FD/aggregate counters spec.md §4.6 requires.
type Stats struct {
	TotalOps         int64
	CompletedOps     int64
	FailedOps        int64
	BytesWritten     int64
	QueueSizeCurrent int64
	QueueSizeMax     int64
	AvgLatencyMs     float64
}

// fdQueue holds the pending writes for one file descriptor.
//
// GUARDED_BY(mu)
type fdQueue struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	tiers [4][]*opEntry // indexed by Priority

	// GUARDED_BY(mu)
	nextSeq uint64

	// GUARDED_BY(mu)
	stats Stats

	// GUARDED_BY(mu)
	draining bool

	// GUARDED_BY(mu)
	maxQueueSize int

	emptyCond *sync.Cond
}

func (q *fdQueue) checkInvariants() {
	// INVARIANT: nextSeq is non-decreasing; every queued entry's seq is <=
	// nextSeq and entries within a tier appear in increasing seq order.
	for _, tier := range q.tiers {
		var last uint64
		for _, e := range tier {
			if e.seq < last {
				panic("writequeue: FIFO violated within a priority tier")
			}
			last = e.seq
		}
	}
}

func (q *fdQueue) lenLocked() int {
	n := 0
	for _, t := range q.tiers {
		n += len(t)
	}
	return n
}

func (q *fdQueue) popLocked() *opEntry {
	for p := Urgent; p >= Low; p-- {
		t := q.tiers[p]
		if len(t) == 0 {
			continue
		}
		e := t[0]
		q.tiers[p] = t[1:]
		return e
	}
	return nil
}

// WriteQueue manages one fdQueue per open file descriptor.
type WriteQueue struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	fds map[fusetypes.Fd]*fdQueue

	// GUARDED_BY(mu)
	perFDMax map[fusetypes.Fd]int

	// GUARDED_BY(mu)
	aggregate Stats

	defaultMaxQueueSize int
	executor            Executor
	clock               timeutil.Clock
}

// Options configures a WriteQueue.
type Options struct {
	Executor            Executor
	DefaultMaxQueueSize int
	Clock               timeutil.Clock
}

// New constructs a WriteQueue. Executor must be non-nil; it performs the
// actual pwrite-equivalent for every queued operation.
func New(opt Options) *WriteQueue {
	if opt.Clock == nil {
		opt.Clock = timeutil.RealClock()
	}
	wq := &WriteQueue{
		fds:                 make(map[fusetypes.Fd]*fdQueue),
		perFDMax:            make(map[fusetypes.Fd]int),
		defaultMaxQueueSize: opt.DefaultMaxQueueSize,
		executor:            opt.Executor,
		clock:               opt.Clock,
	}
	wq.mu = syncutil.NewInvariantMutex(wq.checkInvariants)
	return wq
}

func (wq *WriteQueue) checkInvariants() {}

// SetFDMaxQueueSize overrides the default bound for one fd, per
// spec.md §6's `writeQueue.fdMaxQueueSize[fd]` knob.
func (wq *WriteQueue) SetFDMaxQueueSize(fd fusetypes.Fd, max int) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	wq.perFDMax[fd] = max
}

func (wq *WriteQueue) queueForLocked(fd fusetypes.Fd) *fdQueue {
	q, ok := wq.fds[fd]
	if !ok {
		max := wq.defaultMaxQueueSize
		if m, ok := wq.perFDMax[fd]; ok {
			max = m
		}
		q = &fdQueue{maxQueueSize: max}
		q.mu = syncutil.NewInvariantMutex(q.checkInvariants)
		q.emptyCond = sync.NewCond(&sync.Mutex{})
		wq.fds[fd] = q
	}
	return q
}

// Enqueue queues one write and returns its monotonically increasing
// per-fd sequence number, or an error (EAGAIN) if the fd's queue is
// bounded and full.
func (wq *WriteQueue) Enqueue(fd fusetypes.Fd, offset uint64, data []byte, priority Priority, completion Completion) (uint64, error) {
	wq.mu.Lock()
	q := wq.queueForLocked(fd)
	wq.mu.Unlock()

	q.mu.Lock()
	if q.maxQueueSize > 0 && q.lenLocked() >= q.maxQueueSize {
		q.mu.Unlock()
		return 0, errno.Error(errno.EAGAIN)
	}

	q.nextSeq++
	e := &opEntry{
		offset:     offset,
		data:       data,
		priority:   priority,
		completion: completion,
		seq:        q.nextSeq,
		enqueuedAt: wq.clock.Now(),
	}
	q.tiers[priority] = append(q.tiers[priority], e)
	q.stats.TotalOps++
	cur := int64(q.lenLocked())
	q.stats.QueueSizeCurrent = cur
	if cur > q.stats.QueueSizeMax {
		q.stats.QueueSizeMax = cur
	}
	seq := e.seq
	needsDrain := !q.draining
	if needsDrain {
		q.draining = true
	}
	q.mu.Unlock()

	wq.updateAggregate(func(s *Stats) { s.TotalOps++ })

	if needsDrain {
		go wq.drain(fd, q)
	}

	return seq, nil
}

// drain runs the executor for every ready operation on q until the queue
// is empty, invoking each operation's completion exactly once.
func (wq *WriteQueue) drain(fd fusetypes.Fd, q *fdQueue) {
	for {
		q.mu.Lock()
		e := q.popLocked()
		if e == nil {
			q.draining = false
			q.mu.Unlock()
			q.emptyCond.L.Lock()
			q.emptyCond.Broadcast()
			q.emptyCond.L.Unlock()
			return
		}
		q.stats.QueueSizeCurrent = int64(q.lenLocked())
		q.mu.Unlock()

		n, err := wq.executor(fd, e.offset, e.data)

		q.mu.Lock()
		q.stats.CompletedOps++
		if err != nil {
			q.stats.FailedOps++
		} else {
			q.stats.BytesWritten += int64(n)
		}
		latencyMs := float64(wq.clock.Now().Sub(e.enqueuedAt)) / float64(time.Millisecond)
		c := float64(q.stats.CompletedOps)
		q.stats.AvgLatencyMs += (latencyMs - q.stats.AvgLatencyMs) / c
		q.mu.Unlock()

		wq.updateAggregate(func(s *Stats) {
			s.CompletedOps++
			if err != nil {
				s.FailedOps++
			} else {
				s.BytesWritten += int64(n)
			}
		})

		if e.completion != nil {
			e.completion(n, err)
		}
	}
}

func (wq *WriteQueue) updateAggregate(f func(*Stats)) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	f(&wq.aggregate)
}

// Flush blocks until fd's queue is empty or timeout elapses, returning
// false on timeout (ETIMEDOUT is the caller's responsibility to surface).
func (wq *WriteQueue) Flush(fd fusetypes.Fd, timeout time.Duration) bool {
	wq.mu.Lock()
	q, ok := wq.fds[fd]
	wq.mu.Unlock()
	if !ok {
		return true
	}
	return waitEmpty(q, timeout)
}

// FlushAll blocks until every known fd's queue is empty or timeout
// elapses.
func (wq *WriteQueue) FlushAll(timeout time.Duration) bool {
	wq.mu.Lock()
	queues := make([]*fdQueue, 0, len(wq.fds))
	for _, q := range wq.fds {
		queues = append(queues, q)
	}
	wq.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for _, q := range queues {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !waitEmpty(q, remaining) {
			return false
		}
	}
	return true
}

func waitEmpty(q *fdQueue, timeout time.Duration) bool {
	q.mu.Lock()
	empty := q.lenLocked() == 0 && !q.draining
	q.mu.Unlock()
	if empty {
		return true
	}

	done := make(chan struct{})
	go func() {
		q.emptyCond.L.Lock()
		for {
			q.mu.Lock()
			empty := q.lenLocked() == 0 && !q.draining
			q.mu.Unlock()
			if empty {
				break
			}
			q.emptyCond.Wait()
		}
		q.emptyCond.L.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// DrainForShutdown implements spec.md §4.6's shutdown policy: URGENT/HIGH
// operations are left to drain normally (the caller should Flush after
// calling this), while queued NORMAL/LOW operations are cancelled in place
// with ECANCELED.
func (wq *WriteQueue) DrainForShutdown() {
	wq.mu.Lock()
	queues := make([]*fdQueue, 0, len(wq.fds))
	for _, q := range wq.fds {
		queues = append(queues, q)
	}
	wq.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		cancelled := append(q.tiers[Normal], q.tiers[Low]...)
		q.tiers[Normal] = nil
		q.tiers[Low] = nil
		q.stats.QueueSizeCurrent = int64(q.lenLocked())
		q.mu.Unlock()

		for _, e := range cancelled {
			if e.completion != nil {
				e.completion(0, errno.Error(errno.ECANCELED))
			}
		}
	}
}

// StatsFor returns a snapshot of one fd's counters.
func (wq *WriteQueue) StatsFor(fd fusetypes.Fd) (Stats, bool) {
	wq.mu.Lock()
	q, ok := wq.fds[fd]
	wq.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats, true
}

// AggregateStats returns a snapshot of the counters summed across every
// fd this WriteQueue has ever seen.
func (wq *WriteQueue) AggregateStats() Stats {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.aggregate
}

// Forget releases the bookkeeping for fd, for use once release(fd) has
// observed the queue is empty (spec.md §4.6 invariant 2).
func (wq *WriteQueue) Forget(fd fusetypes.Fd) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	delete(wq.fds, fd)
	delete(wq.perFDMax, fd)
}
