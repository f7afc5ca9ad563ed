package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relvacode/fuse3/fuseops"
	"github.com/relvacode/fuse3/fusetypes"
)

func minimalHandlers() *fuseops.Handlers {
	return &fuseops.Handlers{
		Lookup: func(context.Context, fusetypes.RequestContext, fuseops.LookupRequest) (fuseops.LookupResponse, error) {
			return fuseops.LookupResponse{}, nil
		},
		GetAttr: func(context.Context, fusetypes.RequestContext, fuseops.GetAttrRequest) (fuseops.GetAttrResponse, error) {
			return fuseops.GetAttrResponse{}, nil
		},
	}
}

func TestNewRejectsRelativeMountpoint(t *testing.T) {
	_, err := New("relative/path", minimalHandlers(), Options{})
	assert.Error(t, err)
}

func TestNewRejectsMissingMountpoint(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"), minimalHandlers(), Options{})
	assert.Error(t, err)
}

func TestNewRejectsIncompleteHandlers(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, &fuseops.Handlers{}, Options{})
	assert.Error(t, err)
}

func TestNewRejectsNilHandlers(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, nil, Options{})
	assert.Error(t, err)
}

func TestNewAcceptsValidMountpointAndHandlers(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, minimalHandlers(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Created, s.State())
}

func TestNewRejectsUnwritableMountpoint(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can write through permission bits")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	defer os.Chmod(dir, 0o700)

	_, err := New(dir, minimalHandlers(), Options{})
	assert.Error(t, err)
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		Created:    "CREATED",
		Mounting:   "MOUNTING",
		Mounted:    "MOUNTED",
		Unmounting: "UNMOUNTING",
		Destroyed:  "DESTROYED",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestUnmountOnCreatedSessionIsANoOp(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, minimalHandlers(), Options{})
	require.NoError(t, err)

	require.NoError(t, s.Unmount("test teardown"))
	assert.Equal(t, Destroyed, s.State())

	// Idempotent: a second call on an already-Destroyed session must also
	// be a no-op rather than panicking on nil dependencies.
	require.NoError(t, s.Unmount("test teardown again"))
}

func TestMountRejectsSessionNotInCreatedState(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, minimalHandlers(), Options{})
	require.NoError(t, err)

	s.mu.Lock()
	s.state = Mounting
	s.mu.Unlock()

	err = s.Mount(context.Background())
	assert.Error(t, err)
}

func TestConcurrentUnmountSharesOneInFlightRun(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, minimalHandlers(), Options{})
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() { done <- s.Unmount("first") }()
	go func() { done <- s.Unmount("second") }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.Equal(t, Destroyed, s.State())
}
