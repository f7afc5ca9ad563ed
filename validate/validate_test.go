package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

func codeOf(t *testing.T, err error) errno.Code {
	t.Helper()
	e, ok := errno.FromError(err)
	if !ok {
		t.Fatalf("expected an errno.Error, got %v (%T)", err, err)
	}
	return e
}

func TestIno(t *testing.T) {
	assert.NoError(t, Ino(fusetypes.RootIno))
	assert.NoError(t, Ino(fusetypes.Ino(42)))
	assert.Equal(t, errno.EINVAL, codeOf(t, Ino(fusetypes.Ino(0))))
}

func TestOffset(t *testing.T) {
	assert.NoError(t, Offset(0))
	assert.NoError(t, Offset(1<<40))
	assert.Equal(t, errno.EINVAL, codeOf(t, Offset(-1)))
}

func TestSize(t *testing.T) {
	assert.NoError(t, Size(0))
	assert.NoError(t, Size(MaxReadWriteSize))
	assert.Equal(t, errno.EINVAL, codeOf(t, Size(MaxReadWriteSize+1)))
	assert.Equal(t, errno.EINVAL, codeOf(t, Size(-1)))
}

func TestName(t *testing.T) {
	assert.NoError(t, Name("foo.txt", NameOptions{}))
	assert.Equal(t, errno.EINVAL, codeOf(t, Name("", NameOptions{})))
	assert.Equal(t, errno.EINVAL, codeOf(t, Name(".", NameOptions{})))
	assert.Equal(t, errno.EINVAL, codeOf(t, Name("..", NameOptions{})))
	assert.NoError(t, Name(".", NameOptions{AllowDotAndDotDot: true}))
	assert.NoError(t, Name("..", NameOptions{AllowDotAndDotDot: true}))
	assert.Equal(t, errno.EINVAL, codeOf(t, Name("a/b", NameOptions{})))
	assert.Equal(t, errno.EINVAL, codeOf(t, Name("a\x00b", NameOptions{})))
	assert.Equal(t, errno.ENAMETOOLONG, codeOf(t, Name(strings.Repeat("a", MaxNameBytes+1), NameOptions{})))
	assert.NoError(t, Name(strings.Repeat("a", MaxNameBytes), NameOptions{}))
}

func TestPath(t *testing.T) {
	assert.NoError(t, Path("/"))
	assert.NoError(t, Path("/a/b/c"))
	assert.Equal(t, errno.EINVAL, codeOf(t, Path("")))
	assert.Equal(t, errno.EINVAL, codeOf(t, Path("relative")))
	assert.Equal(t, errno.EINVAL, codeOf(t, Path("/a\x00b")))
	assert.Equal(t, errno.ENAMETOOLONG, codeOf(t, Path("/"+strings.Repeat("a", MaxPathBytes))))
}

func TestMode(t *testing.T) {
	assert.NoError(t, Mode(fusetypes.ModeRegular|0o644, ModeOptions{ForbidDirectory: true}))
	assert.Equal(t, errno.EINVAL, codeOf(t, Mode(fusetypes.ModeDir|0o755, ModeOptions{ForbidDirectory: true})))
	assert.NoError(t, Mode(fusetypes.ModeDir|0o755, ModeOptions{RequireDirectory: true}))
	assert.Equal(t, errno.EINVAL, codeOf(t, Mode(fusetypes.ModeRegular|0o644, ModeOptions{RequireDirectory: true})))
}

func TestRenameFlags(t *testing.T) {
	assert.NoError(t, RenameFlags(0))
	assert.NoError(t, RenameFlags(fusetypes.RenameNoReplace))
	assert.NoError(t, RenameFlags(fusetypes.RenameExchange))
	assert.Equal(t, errno.EINVAL, codeOf(t, RenameFlags(fusetypes.RenameNoReplace|fusetypes.RenameExchange)))
	// Unknown bits are forwarded, not rejected.
	assert.NoError(t, RenameFlags(fusetypes.RenameFlags(1<<30)))
}

func TestRequestContext(t *testing.T) {
	assert.NoError(t, RequestContext(fusetypes.RequestContext{Pid: 1}))
	assert.Equal(t, errno.EINVAL, codeOf(t, RequestContext(fusetypes.RequestContext{Pid: 0})))
	assert.Equal(t, errno.EINVAL, codeOf(t, RequestContext(fusetypes.RequestContext{Pid: -5})))
}
