package fuseutil

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relvacode/fuse3/fusetypes"
)

func TestWriteDirentRoundTrip(t *testing.T) {
	d := fusetypes.Dirent{Name: "hello.txt", Ino: 42, Type: fusetypes.DTReg, Offset: 1}

	buf := make([]byte, 256)
	n := WriteDirent(buf, d)
	require.Greater(t, n, 0)
	assert.Equal(t, 0, n%direntAlignment, "entries must be 8-byte aligned for the next entry to start cleanly")

	gotIno := readUint64(buf[0:8])
	gotOff := readUint64(buf[8:16])
	gotNamelen := readUint32(buf[16:20])
	gotType := readUint32(buf[20:24])

	assert.Equal(t, uint64(d.Ino), gotIno)
	assert.Equal(t, d.Offset, gotOff)
	assert.Equal(t, uint32(len(d.Name)), gotNamelen)
	assert.Equal(t, uint32(d.Type), gotType)
	assert.Equal(t, d.Name, string(buf[24:24+len(d.Name)]))
}

func TestWriteDirentTooSmallBufferReturnsZero(t *testing.T) {
	d := fusetypes.Dirent{Name: "a-long-enough-name", Ino: 1, Type: fusetypes.DTReg}
	buf := make([]byte, 4)
	assert.Equal(t, 0, WriteDirent(buf, d))
}

func TestPagePacksEntriesGreedily(t *testing.T) {
	entries := []fusetypes.Dirent{
		{Name: "a", Ino: 1, Type: fusetypes.DTReg, Offset: 1},
		{Name: "b", Ino: 2, Type: fusetypes.DTReg, Offset: 2},
		{Name: "c", Ino: 3, Type: fusetypes.DTReg, Offset: 3},
	}

	// Each entry takes direntHeaderSize + 8 bytes (1-byte name padded to 8).
	perEntry := direntHeaderSize + direntAlignment
	pages, err := Page(entries, perEntry*2)
	require.NoError(t, err)

	if diff := pretty.Compare(2, len(pages)); diff != "" {
		t.Fatalf("unexpected page count (-want +got):\n%s", diff)
	}
	assert.LessOrEqual(t, len(pages[0]), perEntry*2)
	assert.LessOrEqual(t, len(pages[1]), perEntry*2)
}

func TestPageRejectsEntryLargerThanBuffer(t *testing.T) {
	entries := []fusetypes.Dirent{{Name: "way-too-long-a-name-for-this-buffer", Ino: 1}}
	_, err := Page(entries, 8)
	require.Error(t, err)
}

func readUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func readUint32(b []byte) uint32 {
	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}
