package errno

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundtrip(t *testing.T) {
	ensureBuilt()
	for c := range byCode {
		name := CodeToName(c)
		require.NotEqual(t, "UNKNOWN", name, "code %d has no name", c)
		require.Equal(t, c, NameToCode(name), "roundtrip failed for %v", name)
	}
}

func TestNameToCodeCaseInsensitive(t *testing.T) {
	assert.Equal(t, ENOENT, NameToCode("enoent"))
	assert.Equal(t, ENOENT, NameToCode("ENOENT"))
	assert.Equal(t, ENOENT, NameToCode(" EnoEnt "))
}

func TestUnknownNameYieldsZero(t *testing.T) {
	assert.EqualValues(t, 0, NameToCode("ENOTAREALERRNO"))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsPermission(EPERM))
	assert.True(t, IsPermission(EACCES))
	assert.True(t, IsNotFound(ENOENT))
	assert.True(t, IsNotFound(ENOTDIR))
	assert.True(t, IsTemporary(EAGAIN))
	assert.True(t, IsTemporary(EINTR))
	assert.True(t, IsExists(EEXIST))
	assert.True(t, IsExists(ENOTEMPTY))
	assert.True(t, IsIO(EIO))
	assert.True(t, IsInvalid(EINVAL))
}

func TestClassificationNoMismatch(t *testing.T) {
	ensureBuilt()
	// No code should simultaneously be classified not-found and exists; that
	// would indicate a copy/paste error in the registry table.
	for c, e := range byCode {
		bothFound := e.class&classNotFound != 0 && e.class&classExists != 0
		assert.False(t, bothFound, "code %v (%s) is both not-found and exists", c, e.name)
	}
}

func TestNormalize(t *testing.T) {
	assert.EqualValues(t, 0, Normalize(0))
	assert.EqualValues(t, -5, Normalize(5))
	assert.EqualValues(t, -5, Normalize(-5))
}

func TestExpectedForKnownOp(t *testing.T) {
	got := ExpectedFor("rmdir")
	assert.Contains(t, got, "ENOENT")
	assert.Contains(t, got, "EACCES")
	assert.Contains(t, got, "EPERM")
	assert.Contains(t, got, "EROFS")
	assert.Contains(t, got, "ENOTDIR")
	assert.Contains(t, got, "ENOTEMPTY")
	assert.Contains(t, got, "EIO")
}

func TestExpectedForUnknownOpFallsBackToEIO(t *testing.T) {
	assert.Equal(t, []string{"EIO"}, ExpectedFor("not-a-real-op"))
}

func TestErrorInterface(t *testing.T) {
	var err error = Error(ENOENT)
	assert.Equal(t, Message(ENOENT), err.Error())

	code, ok := FromError(err)
	assert.True(t, ok)
	assert.Equal(t, ENOENT, code)

	_, ok = FromError(assert.AnError)
	assert.False(t, ok)
}
