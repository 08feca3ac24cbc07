package suballoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(12), AlignUp(12, 3))
	assert.Equal(t, uint64(12), AlignUp(10, 3))
	assert.Equal(t, uint64(10), AlignUp(10, 0))
	assert.Equal(t, uint64(256), AlignUp(1, 256))
}

func TestAllocator(t *testing.T) {
	a := New(1024)

	assert.Nil(t, a.Allocate(2048, 1))
	assert.Nil(t, a.Allocate(0, 1))

	first := a.Allocate(512, 1)
	require.NotNil(t, first)
	assert.Equal(t, uint64(0), first.Offset)

	assert.Nil(t, a.Allocate(768, 1))

	second := a.Allocate(500, 1)
	require.NotNil(t, second)
	assert.Equal(t, uint64(512), second.Offset)

	assert.Nil(t, a.Allocate(50, 1))
	small := a.Allocate(5, 1)
	require.NotNil(t, small)
	assert.Equal(t, uint64(1012), small.Offset)
	assert.Nil(t, a.Allocate(20, 1))
	assert.Equal(t, uint64(1017), a.Used())

	require.True(t, a.Free(second))
	assert.False(t, a.Free(second))
	again := a.Allocate(500, 1)
	require.NotNil(t, again)
	assert.Equal(t, uint64(512), again.Offset)

	// The freed head is reused first.
	require.True(t, a.Free(first))
	for _, size := range []uint64{20, 40, 12} {
		got := a.Allocate(size, 1)
		require.NotNil(t, got, "size %d", size)
		assert.Less(t, got.End(), uint64(513), "size %d", size)
	}
	assert.Nil(t, a.Allocate(500, 1))
	assert.NotNil(t, a.Allocate(5, 1))
}

func TestAllocatorAlignment(t *testing.T) {
	a := New(4096)
	x := a.Allocate(10, 1)
	y := a.Allocate(100, 256)
	z := a.Allocate(100, 1024)
	require.NotNil(t, x)
	require.NotNil(t, y)
	require.NotNil(t, z)
	assert.Equal(t, uint64(256), y.Offset)
	assert.Equal(t, uint64(1024), z.Offset)

	// The gap between x and y takes small unaligned requests.
	g := a.Allocate(200, 8)
	require.NotNil(t, g)
	assert.Equal(t, uint64(16), g.Offset)
	assert.Equal(t, 4, a.Len())

	// Nothing overlaps.
	live := []*Allocation{x, y, z, g}
	for i, p := range live {
		for _, q := range live[i+1:] {
			assert.True(t, p.End() <= q.Offset || q.End() <= p.Offset, "%v overlaps %v", p, q)
		}
	}
}
