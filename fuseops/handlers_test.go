package fuseops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

func header() RequestHeader {
	return RequestHeader{Unique: 1, Context: fusetypes.RequestContext{Uid: 0, Gid: 0, Pid: 100}}
}

func TestMissingHandlerYieldsENOSYS(t *testing.T) {
	h := &Handlers{}
	_, err := GetAttr(context.Background(), h, header(), GetAttrRequest{Ino: fusetypes.RootIno})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.ENOSYS, code)
}

func TestValidationRejectsBeforeHandlerInvoked(t *testing.T) {
	called := false
	h := &Handlers{
		GetAttr: func(ctx context.Context, rc fusetypes.RequestContext, req GetAttrRequest) (GetAttrResponse, error) {
			called = true
			return GetAttrResponse{}, nil
		},
	}
	_, err := GetAttr(context.Background(), h, header(), GetAttrRequest{Ino: 0})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EINVAL, code)
	assert.False(t, called, "handler must not be invoked when request validation fails")
}

func TestMalformedResultYieldsEIO(t *testing.T) {
	h := &Handlers{
		Lookup: func(ctx context.Context, rc fusetypes.RequestContext, req LookupRequest) (LookupResponse, error) {
			// A handler bug: returns success but with a zero (invalid) Ino.
			return LookupResponse{Entry: Entry{Ino: 0}}, nil
		},
	}
	_, err := Lookup(context.Background(), h, header(), LookupRequest{Parent: fusetypes.RootIno, Name: "foo"})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EIO, code)
}

func TestSuccessfulRoundTrip(t *testing.T) {
	h := &Handlers{
		Lookup: func(ctx context.Context, rc fusetypes.RequestContext, req LookupRequest) (LookupResponse, error) {
			assert.Equal(t, fusetypes.RootIno, req.Parent)
			assert.Equal(t, "foo", req.Name)
			return LookupResponse{Entry: Entry{Ino: fusetypes.Ino(2)}}, nil
		},
	}
	resp, err := Lookup(context.Background(), h, header(), LookupRequest{Parent: fusetypes.RootIno, Name: "foo"})
	require.NoError(t, err)
	assert.Equal(t, fusetypes.Ino(2), resp.Entry.Ino)
}

func TestHandlerErrorPassesThroughWhenAlreadyErrno(t *testing.T) {
	h := &Handlers{
		Mkdir: func(ctx context.Context, rc fusetypes.RequestContext, req MkdirRequest) (MkdirResponse, error) {
			return MkdirResponse{}, errno.Error(errno.EEXIST)
		},
	}
	_, err := Mkdir(context.Background(), h, header(), MkdirRequest{
		Parent: fusetypes.RootIno,
		Name:   "dir",
		Mode:   fusetypes.ModeDir | 0o755,
	})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EEXIST, code)
}

func TestHandlerErrorNormalizedToEIOWhenUnrecognized(t *testing.T) {
	h := &Handlers{
		Statfs: func(ctx context.Context, rc fusetypes.RequestContext, req StatfsRequest) (StatfsResponse, error) {
			return StatfsResponse{}, assertErr{}
		},
	}
	_, err := Statfs(context.Background(), h, header(), StatfsRequest{Ino: fusetypes.RootIno})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EIO, code)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestMkdirRejectsNonDirectoryMode(t *testing.T) {
	h := &Handlers{
		Mkdir: func(ctx context.Context, rc fusetypes.RequestContext, req MkdirRequest) (MkdirResponse, error) {
			t.Fatal("handler should not be invoked")
			return MkdirResponse{}, nil
		},
	}
	_, err := Mkdir(context.Background(), h, header(), MkdirRequest{
		Parent: fusetypes.RootIno,
		Name:   "dir",
		Mode:   fusetypes.ModeRegular | 0o755,
	})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EINVAL, code)
}

func TestReadDirAttrsLengthMismatchIsEIO(t *testing.T) {
	h := &Handlers{
		ReadDir: func(ctx context.Context, rc fusetypes.RequestContext, req ReadDirRequest) (ReadDirResponse, error) {
			return ReadDirResponse{
				Entries: []fusetypes.Dirent{{Name: "a", Ino: 2}},
				Attrs:   []fusetypes.Stat{{Ino: 2}, {Ino: 3}},
			}, nil
		},
	}
	_, err := ReadDir(context.Background(), h, header(), ReadDirRequest{Ino: fusetypes.RootIno})
	require.Error(t, err)
	code, ok := errno.FromError(err)
	require.True(t, ok)
	assert.Equal(t, errno.EIO, code)
}
