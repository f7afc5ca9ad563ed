package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relvacode/fuse3/fusetypes"
	"github.com/relvacode/fuse3/timespec"
)

func TestInHeaderRoundTrip(t *testing.T) {
	w := &wireWriter{}
	w.u32(48)
	w.u32(uint32(opLookup))
	w.u64(7)
	w.u64(2)
	w.u32(1000)
	w.u32(1000)
	w.u32(1234)
	w.u32(0)
	w.bytes([]byte("foo\x00"))

	hdr, err := decodeInHeader(w.buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(48), hdr.Len)
	assert.Equal(t, opLookup, hdr.Opcode)
	assert.Equal(t, uint64(7), hdr.Unique)
	assert.Equal(t, uint64(2), hdr.Nodeid)
	assert.Equal(t, uint32(1000), hdr.Uid)
	assert.Equal(t, uint32(1000), hdr.Gid)
	assert.Equal(t, uint32(1234), hdr.Pid)
}

func TestDecodeInHeaderRejectsShortMessage(t *testing.T) {
	_, err := decodeInHeader(make([]byte, 10))
	assert.Equal(t, errShortMessage, err)
}

func TestOutHeaderEncode(t *testing.T) {
	h := outHeader{Len: 16, Error: -2, Unique: 9}
	b := h.encode()
	require.Len(t, b, outHeaderSize)

	r := &wireReader{buf: b}
	assert.Equal(t, uint32(16), r.u32())
	assert.Equal(t, int32(-2), r.i32())
	assert.Equal(t, uint64(9), r.u64())
}

func TestWriteAttrRoundTrip(t *testing.T) {
	st := fusetypes.Stat{
		Ino:     42,
		Mode:    0100644,
		Nlink:   1,
		Uid:     1000,
		Gid:     1000,
		Rdev:    0,
		Size:    1024,
		Blksize: 4096,
		Blocks:  2,
		Atime:   timespec.Timespec{Sec: 100, Nsec: 1},
		Mtime:   timespec.Timespec{Sec: 200, Nsec: 2},
		Ctime:   timespec.Timespec{Sec: 300, Nsec: 3},
	}

	w := &wireWriter{}
	writeAttr(w, st)
	require.Len(t, w.buf, attrSize)

	r := &wireReader{buf: w.buf}
	assert.Equal(t, uint64(42), r.u64())
	assert.Equal(t, uint64(1024), r.u64())
	assert.Equal(t, uint64(2), r.u64())
	assert.Equal(t, uint64(100), r.u64())
	assert.Equal(t, uint64(200), r.u64())
	assert.Equal(t, uint64(300), r.u64())
	assert.Equal(t, uint32(1), r.u32())
	assert.Equal(t, uint32(2), r.u32())
	assert.Equal(t, uint32(3), r.u32())
	assert.Equal(t, uint32(0100644), r.u32())
	assert.Equal(t, uint32(1), r.u32())
	assert.Equal(t, uint32(1000), r.u32())
	assert.Equal(t, uint32(1000), r.u32())
	assert.Equal(t, uint32(4096), r.u32())
}

func TestWriteEntryOutSize(t *testing.T) {
	w := &wireWriter{}
	writeEntryOut(w, 1, 1, 1, 0, 1, 0, fusetypes.Stat{})
	assert.Len(t, w.buf, 40+attrSize)
}

func TestWriteAttrOutSize(t *testing.T) {
	w := &wireWriter{}
	writeAttrOut(w, 1, 0, fusetypes.Stat{})
	assert.Len(t, w.buf, 16+attrSize)
}

func TestCStringStopsAtNUL(t *testing.T) {
	assert.Equal(t, "foo", cString([]byte("foo\x00bar")))
	assert.Equal(t, "foo", cString([]byte("foo")))
}

func TestSplitTwoCStrings(t *testing.T) {
	parts := splitTwoCStrings([]byte("old\x00new\x00"))
	assert.Equal(t, "old", parts[0])
	assert.Equal(t, "new", parts[1])
}

func TestSplitNameAndValue(t *testing.T) {
	name, value := splitNameAndValue([]byte("user.foo\x00bar baz"), 7)
	assert.Equal(t, "user.foo", name)
	assert.Equal(t, "bar baz", string(value))
}

func TestDirentEncodedSizeMatchesFuseutilHeader(t *testing.T) {
	e := fusetypes.Dirent{Name: "abc", Ino: 1, Type: fusetypes.TypeFromMode(0040000)}
	assert.Equal(t, 24+8, direntEncodedSize(e, false)) // "abc" pads to 8 bytes
	assert.Equal(t, 24+8+128, direntEncodedSize(e, true))
}
