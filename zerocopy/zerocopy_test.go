package zerocopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnedIsNotBorrowed(t *testing.T) {
	b := Owned([]byte("hi"))
	assert.False(t, b.IsBorrowed())
	assert.Same(t, b, b.ToOwned())
}

func TestBorrowedReleaseCallsReleaseFuncOnce(t *testing.T) {
	calls := 0
	b := Borrowed([]byte("hi"), func() { calls++ })
	assert.True(t, b.IsBorrowed())

	b.Release()
	b.Release()
	assert.Equal(t, 1, calls)
}

func TestToOwnedCopiesBorrowedData(t *testing.T) {
	data := []byte("hi")
	b := Borrowed(data, nil)

	owned := b.ToOwned()
	assert.False(t, owned.IsBorrowed())
	assert.Equal(t, data, owned.Bytes())

	data[0] = 'X'
	assert.NotEqual(t, data[0], owned.Bytes()[0])
}

func TestPoolRecyclesBuffers(t *testing.T) {
	p := NewPool(16)

	b1 := p.Get()
	assert.Len(t, b1.Bytes(), 16)
	b1.Release()

	b2 := p.Get()
	assert.Len(t, b2.Bytes(), 16)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Returns)
}

func TestPoolDropsForeignSizedSlice(t *testing.T) {
	p := NewPool(8)
	b := Borrowed(make([]byte, 4), nil)
	b.pool = p

	b.Release() // should not panic even though cap(data) != p.size
}
