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

// Package shutdown implements the ordered shutdown state machine of
// spec.md §4.7: RUNNING -> DRAINING -> UNMOUNTING -> CLOSED, with a FAILED
// sink reachable from UNMOUNTING on timeout, optional lifecycle callbacks,
// and an immediate bypass for force_immediate_shutdown.
package shutdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// State is one node of the shutdown state machine.
type State int

const (
	Running State = iota
	Draining
	Unmounting
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Draining:
		return "DRAINING"
	case Unmounting:
		return "UNMOUNTING"
	case Closed:
		return "CLOSED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Drainer is implemented by anything the shutdown manager must empty
// before unmounting -- the dispatcher and the write queue both satisfy
// this with their own Drain-style methods.
type Drainer interface {
	// Drain blocks until empty or timeout, returning false on timeout.
	Drain(timeout time.Duration) bool
	// CancelAll cancels outstanding items with ECANCELED, for
	// force_immediate_shutdown; which items it reaches is up to the
	// implementation (the dispatcher's reaches only still-queued requests).
	CancelAll()
}

// Callbacks are optional; at most one set may be registered per Manager,
// per spec.md §4.7.
type Callbacks struct {
	OnBegin    func(reason string)
	OnPhase    func(state State, description string)
	OnComplete func(stats Stats)
	OnFailed   func(state State, reason string)
}

// Stats records how long each phase took and whether the shutdown
// completed gracefully (drained) or was forced/timed out.
type Stats struct {
	DrainingMs         int64
	UnmountingMs       int64
	TotalMs            int64
	GracefulCompletion bool
}

// Options configures a Manager.
type Options struct {
	DrainingTimeout   time.Duration // default 10s
	UnmountingTimeout time.Duration // default 10s

	// Drainers are drained in the order given during the DRAINING phase.
	Drainers []Drainer

	// Unmount performs the actual kernel-channel unmount. Required.
	Unmount func() error

	Clock     timeutil.Clock
	Callbacks Callbacks
}

// Manager drives the shutdown state machine for one session.
//
// GUARDED_BY(mu)
type Manager struct {
	mu syncutil.InvariantMutex

	opt Options

	// GUARDED_BY(mu)
	state State

	// GUARDED_BY(mu)
	failureReason string

	// GUARDED_BY(mu)
	inFlight chan struct{} // non-nil while a shutdown is in progress; closed when done

	clock timeutil.Clock
}

// New constructs a Manager in the RUNNING state.
func New(opt Options) *Manager {
	if opt.DrainingTimeout <= 0 {
		opt.DrainingTimeout = 10 * time.Second
	}
	if opt.UnmountingTimeout <= 0 {
		opt.UnmountingTimeout = 10 * time.Second
	}
	if opt.Clock == nil {
		opt.Clock = timeutil.RealClock()
	}

	m := &Manager{
		opt:   opt,
		state: Running,
		clock: opt.Clock,
	}
	m.mu = syncutil.NewInvariantMutex(m.checkInvariants)
	return m
}

func (m *Manager) checkInvariants() {
	// INVARIANT: once Closed or Failed, the state never changes again.
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailureReason returns the reason recorded when the state machine
// transitioned to Failed, or "" if it never did.
func (m *Manager) FailureReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failureReason
}

// InitiateGracefulShutdown triggers RUNNING -> DRAINING -> UNMOUNTING ->
// CLOSED (or FAILED), blocking until the machine reaches a terminal state.
// Concurrent callers share the same in-flight run, matching session.go's
// mount/unmount idempotency discipline.
func (m *Manager) InitiateGracefulShutdown(reason string) Stats {
	wait, owner := m.claim()
	if !owner {
		<-wait
		return m.lastStats()
	}

	return m.run(reason, false)
}

// ForceImmediateShutdown bypasses draining: it calls CancelAll on every
// Drainer instead of Drain, then the machine proceeds directly to
// UNMOUNTING. For the dispatcher, that replies ECANCELED to requests still
// queued; requests already running on a worker are not cancelled.
func (m *Manager) ForceImmediateShutdown(reason string) Stats {
	wait, owner := m.claim()
	if !owner {
		<-wait
		return m.lastStats()
	}

	return m.run(reason, true)
}

// claim returns (doneCh, true) if the caller is now responsible for
// driving the shutdown, or (doneCh, false) if another caller already is,
// in which case doneCh closes when that run finishes.
func (m *Manager) claim() (chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight != nil {
		return m.inFlight, false
	}
	if m.state == Closed || m.state == Failed {
		done := make(chan struct{})
		close(done)
		return done, false
	}

	m.inFlight = make(chan struct{})
	return m.inFlight, true
}

func (m *Manager) run(reason string, force bool) Stats {
	start := m.clock.Now()
	var stats Stats

	if m.opt.Callbacks.OnBegin != nil {
		m.opt.Callbacks.OnBegin(reason)
	}

	m.setState(Draining)
	m.phase(Draining, "draining dispatcher and write queues")

	drainStart := m.clock.Now()
	drained := true
	if force {
		for _, d := range m.opt.Drainers {
			d.CancelAll()
		}
	} else {
		for _, d := range m.opt.Drainers {
			if !d.Drain(m.opt.DrainingTimeout) {
				drained = false
			}
		}
	}
	stats.DrainingMs = int64(m.clock.Now().Sub(drainStart) / time.Millisecond)
	stats.GracefulCompletion = !force && drained

	m.setState(Unmounting)
	m.phase(Unmounting, "unmounting kernel channel")

	unmountStart := m.clock.Now()
	unmountErr := m.runUnmountWithTimeout()
	stats.UnmountingMs = int64(m.clock.Now().Sub(unmountStart) / time.Millisecond)

	if unmountErr != nil {
		stats.GracefulCompletion = false
		m.fail(Unmounting, unmountErr.Error())
		stats.TotalMs = int64(m.clock.Now().Sub(start) / time.Millisecond)
		m.storeStats(stats)
		m.finish()
		return stats
	}

	m.setState(Closed)
	stats.TotalMs = int64(m.clock.Now().Sub(start) / time.Millisecond)

	if m.opt.Callbacks.OnComplete != nil {
		m.opt.Callbacks.OnComplete(stats)
	}

	m.storeStats(stats)
	m.finish()
	return stats
}

func (m *Manager) runUnmountWithTimeout() error {
	if m.opt.Unmount == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- m.opt.Unmount() }()

	select {
	case err := <-done:
		return err
	case <-time.After(m.opt.UnmountingTimeout):
		return fmt.Errorf("unmount timed out after %s", m.opt.UnmountingTimeout)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) phase(s State, description string) {
	if m.opt.Callbacks.OnPhase != nil {
		m.opt.Callbacks.OnPhase(s, description)
	}
}

func (m *Manager) fail(s State, reason string) {
	m.mu.Lock()
	m.state = Failed
	m.failureReason = reason
	m.mu.Unlock()

	if m.opt.Callbacks.OnFailed != nil {
		m.opt.Callbacks.OnFailed(s, reason)
	}
}

func (m *Manager) finish() {
	m.mu.Lock()
	ch := m.inFlight
	m.inFlight = nil
	m.mu.Unlock()
	close(ch)
}

// lastStats/storeStats let concurrent callers that didn't own the run
// observe its result; guarded separately from mu since it's written once
// at the very end of run(), after mu has already been released for the
// terminal state transition.
var lastStatsMu sync.Mutex
var lastStatsByManager = map[*Manager]Stats{}

func (m *Manager) storeStats(s Stats) {
	lastStatsMu.Lock()
	lastStatsByManager[m] = s
	lastStatsMu.Unlock()
}

func (m *Manager) lastStats() Stats {
	lastStatsMu.Lock()
	defer lastStatsMu.Unlock()
	return lastStatsByManager[m]
}
