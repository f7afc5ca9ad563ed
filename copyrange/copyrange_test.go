package copyrange

import (
	"crypto/sha256"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "copyrange-")
	require.NoError(t, err)
	if len(data) > 0 {
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestChunkSizeClampedToBounds(t *testing.T) {
	c := New(Options{ChunkSize: 1})
	assert.Equal(t, MinChunkSize, c.chunkSize)

	c = New(Options{ChunkSize: MaxChunkSize * 2})
	assert.Equal(t, MaxChunkSize, c.chunkSize)

	c = New(Options{})
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
}

func TestFallbackCopyProducesIdenticalBytes(t *testing.T) {
	payload := make([]byte, 10<<20) // 10 MiB, per spec.md's end-to-end scenario 2
	rand.New(rand.NewSource(1)).Read(payload)

	in := tempFile(t, payload)
	out := tempFile(t, nil)

	c := New(Options{ChunkSize: 256 << 10})
	c.DisableKernelCopy()

	n, err := c.Copy(int(in.Fd()), 0, int(out.Fd()), 0, len(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(payload), sha256.Sum256(got))
}

func TestFallbackChunkSizeDoesNotAffectChecksum(t *testing.T) {
	payload := make([]byte, 5<<20)
	rand.New(rand.NewSource(2)).Read(payload)
	want := sha256.Sum256(payload)

	for _, chunk := range []int{MinChunkSize, 512 << 10, MaxChunkSize} {
		in := tempFile(t, payload)
		out := tempFile(t, nil)

		c := New(Options{ChunkSize: chunk})
		c.DisableKernelCopy()

		n, err := c.Copy(int(in.Fd()), 0, int(out.Fd()), 0, len(payload))
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), n)

		got, err := os.ReadFile(out.Name())
		require.NoError(t, err)
		assert.Equal(t, want, sha256.Sum256(got))
	}
}

func TestStatsTrackOperationsAndBytes(t *testing.T) {
	payload := []byte("hello, copy_file_range")
	in := tempFile(t, payload)
	out := tempFile(t, nil)

	c := New(Options{})
	c.DisableKernelCopy()

	_, err := c.Copy(int(in.Fd()), 0, int(out.Fd()), 0, len(payload))
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalOperations)
	assert.Equal(t, int64(len(payload)), stats.TotalBytesCopied)
	assert.False(t, stats.KernelCopySupported)
}

func TestKernelCopySupportedByDefault(t *testing.T) {
	c := New(Options{})
	assert.True(t, c.Stats().KernelCopySupported)
}

func TestCurrentOffsetRejectedByFallback(t *testing.T) {
	in := tempFile(t, []byte("abc"))
	out := tempFile(t, nil)

	c := New(Options{})
	c.DisableKernelCopy()

	_, err := c.Copy(int(in.Fd()), CurrentOffset, int(out.Fd()), 0, 3)
	require.Error(t, err)
}
