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

// Package session implements spec.md §4.9's session lifecycle: validating
// and mounting a mountpoint, running the kernel adapter in the
// background, and tearing everything down through the shutdown state
// machine on unmount, signal, or error.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/relvacode/fuse3/dispatch"
	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fuseops"
	"github.com/relvacode/fuse3/kernel"
	"github.com/relvacode/fuse3/shutdown"
	"github.com/relvacode/fuse3/writequeue"
)

// State is one stage of a Session's lifecycle, per spec.md §4.9.
type State int

const (
	Created State = iota
	Mounting
	Mounted
	Unmounting
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Mounting:
		return "MOUNTING"
	case Mounted:
		return "MOUNTED"
	case Unmounting:
		return "UNMOUNTING"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Options enumerates the session knobs spec.md §4.9 lists.
type Options struct {
	AllowOther         bool
	AllowRoot          bool
	AutoUnmount        bool
	DefaultPermissions bool
	MountOptions       []string
	Debug              bool
	SingleThreaded     bool

	MaxRead      uint32
	MaxWrite     uint32
	MaxReadahead uint32

	// TimeoutSeconds is passed to the kernel adapter, which sends it in
	// the INIT reply. It is not applied to entry or attribute replies: a
	// handler that leaves their validity at zero gets zero.
	TimeoutSeconds float64

	// Dispatcher and the Shutdown timeouts tune the components Mount and
	// Unmount build; zero values take each package's own defaults.
	// WriteQueue and CopyChunk are stored but not read by this package:
	// a session builds no write queue and no copier.
	Dispatcher  dispatch.Options
	WriteQueue  writequeue.Options
	Shutdown    shutdown.Options
	CopyChunk   int
	Logger      *log.Logger
	Clock       timeutil.Clock
}

// Session owns one mounted FUSE channel end to end: validation, the
// kernel adapter goroutine, and idempotent, serialized mount/unmount.
type Session struct {
	mountpoint string
	handlers   *fuseops.Handlers
	opt        Options
	logger     *log.Logger
	clock      timeutil.Clock

	mu    sync.Mutex
	state State // GUARDED_BY(mu)

	mountInFlight   chan struct{} // GUARDED_BY(mu)
	unmountInFlight chan struct{} // GUARDED_BY(mu)
	mountErr        error         // GUARDED_BY(mu); result of the last mount attempt

	dev        *os.File
	adapter    *kernel.Adapter
	dispatcher *dispatch.Dispatcher
	serveDone  chan struct{}
	serveErr   error
}

// New validates mountpoint and the handler registry and returns a Session
// in the Created state, matching spec.md §4.9's create_session.
func New(mountpoint string, handlers *fuseops.Handlers, opt Options) (*Session, error) {
	if !filepath.IsAbs(mountpoint) {
		return nil, fmt.Errorf("session: mountpoint %q is not an absolute path", mountpoint)
	}

	info, err := os.Stat(mountpoint)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if opt.AutoUnmount && !info.IsDir() {
		return nil, fmt.Errorf("session: mountpoint %q is not a directory", mountpoint)
	}
	if err := checkWritable(mountpoint); err != nil {
		return nil, err
	}

	if handlers == nil || handlers.Lookup == nil || handlers.GetAttr == nil {
		return nil, errno.Error(errno.EINVAL)
	}

	snapshot := *handlers // read-mostly registry; mutate only between sessions.

	clock := opt.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}
	logger := opt.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "session: ", log.LstdFlags)
	}

	return &Session{
		mountpoint: mountpoint,
		handlers:   &snapshot,
		opt:        opt,
		logger:     logger,
		clock:      clock,
		state:      Created,
	}, nil
}

func checkWritable(dir string) error {
	probe := filepath.Join(dir, ".fuse3-write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("session: mountpoint %q is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mount mounts the kernel channel, performs the INIT handshake, and
// starts the adapter's read/dispatch loop in the background. Concurrent
// Mount calls are serialized and share one in-flight attempt, matching
// spec.md §4.9's "mount() and unmount() are idempotent and serialised"
// rule.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Mounted {
		s.mu.Unlock()
		return nil
	}
	if s.mountInFlight != nil {
		ch := s.mountInFlight
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		err := s.mountErr
		s.mu.Unlock()
		return err
	}
	if s.state != Created {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot mount from state %s", s.state)
	}

	ch := make(chan struct{})
	s.mountInFlight = ch
	s.state = Mounting
	s.mu.Unlock()

	err := s.doMount(ctx)

	s.mu.Lock()
	s.mountErr = err
	if err == nil {
		s.state = Mounted
	} else {
		s.state = Created
	}
	s.mountInFlight = nil
	close(ch)
	s.mu.Unlock()

	return err
}

func (s *Session) doMount(ctx context.Context) error {
	dev, err := kernel.Mount(s.mountpoint, kernel.MountOptions{
		AllowOther:         s.opt.AllowOther,
		AllowRoot:          s.opt.AllowRoot,
		DefaultPermissions: s.opt.DefaultPermissions,
		Extra:              s.opt.MountOptions,
	})
	if err != nil {
		return fmt.Errorf("session: mounting %q: %w", s.mountpoint, err)
	}

	dispatcherOpt := s.opt.Dispatcher
	dispatcherOpt.Clock = s.clock
	d := dispatch.New(dispatcherOpt)

	a := kernel.New(dev, s.handlers, d, s.logger, s.opt.MaxReadahead, s.opt.MaxWrite, s.opt.TimeoutSeconds)
	if err := a.Handshake(); err != nil {
		dev.Close()
		d.Close()
		return fmt.Errorf("session: INIT handshake: %w", err)
	}

	s.dev = dev
	s.dispatcher = d
	s.adapter = a
	s.serveDone = make(chan struct{})

	go func() {
		defer close(s.serveDone)
		s.serveErr = a.Serve(ctx)
	}()

	if s.opt.AutoUnmount {
		registerForSignals(s)
	}

	return nil
}

// Unmount drains the dispatcher, unmounts the kernel channel, and moves
// the session to Destroyed. Concurrent Unmount calls are serialized and
// share one in-flight attempt, same as Mount.
func (s *Session) Unmount(reason string) error {
	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		return nil
	}
	if s.unmountInFlight != nil {
		ch := s.unmountInFlight
		s.mu.Unlock()
		<-ch
		return nil
	}
	ch := make(chan struct{})
	s.unmountInFlight = ch
	s.state = Unmounting
	s.mu.Unlock()

	s.doUnmount(reason)

	s.mu.Lock()
	s.state = Destroyed
	s.unmountInFlight = nil
	close(ch)
	s.mu.Unlock()

	if s.opt.AutoUnmount {
		unregisterForSignals(s)
	}
	return nil
}

func (s *Session) doUnmount(reason string) {
	// A session that was never successfully mounted has no dispatcher or
	// kernel channel to tear down; nothing to drive through the shutdown
	// state machine.
	if s.dispatcher == nil {
		return
	}

	mgr := shutdown.New(shutdown.Options{
		DrainingTimeout:   s.opt.Shutdown.DrainingTimeout,
		UnmountingTimeout: s.opt.Shutdown.UnmountingTimeout,
		Clock:             s.clock,
		Drainers:          []shutdown.Drainer{dispatcherDrainer{s.dispatcher}},
		Unmount: func() error {
			err := kernel.Unmount(s.mountpoint)
			if s.dev != nil {
				s.dev.Close()
			}
			if s.serveDone != nil {
				<-s.serveDone
			}
			return err
		},
	})
	mgr.InitiateGracefulShutdown(reason)
}

// dispatcherDrainer adapts *dispatch.Dispatcher to shutdown.Drainer.
type dispatcherDrainer struct {
	d *dispatch.Dispatcher
}

func (a dispatcherDrainer) Drain(timeout time.Duration) bool {
	return a.d.Drain(timeout)
}

func (a dispatcherDrainer) CancelAll() {
	a.d.CancelAll()
}
