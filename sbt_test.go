package vkrt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/driver/soft"
)

func TestLayoutSBTAlignment(t *testing.T) {
	for _, lim := range []struct{ size, align, base int }{
		{32, 32, 64},
		{32, 16, 64},
		{16, 32, 32},
		{32, 64, 256},
		{24, 8, 64},
	} {
		for _, counts := range [][2]int{{1, 1}, {2, 3}, {1, 7}, {0, 1}} {
			name := fmt.Sprintf("handle %d align %d base %d, %d miss %d hit", lim.size, lim.align, lim.base, counts[0], counts[1])
			l := soft.DefaultLimits()
			l.ShaderGroupHandleSize = lim.size
			l.ShaderGroupHandleAlignment = lim.align
			l.ShaderGroupBaseAlignment = lim.base
			s := LayoutSBT(l, counts[0], counts[1])

			h := int64(lim.size)
			assert.Equal(t, roundUp(h, int64(lim.align)), s.AlignedHandleSize, name)
			assert.Zero(t, s.AlignedHandleSize%int64(lim.align), name)
			assert.GreaterOrEqual(t, s.AlignedHandleSize, h, name)

			for _, r := range []SBTRegion{s.RayGen, s.Miss, s.Hit} {
				assert.Zero(t, r.Offset%int64(lim.base), name)
				assert.Zero(t, r.Size%int64(lim.base), name)
				assert.Zero(t, r.Stride%int64(lim.align), name)
			}
			assert.Equal(t, s.RayGen.Size, s.RayGen.Stride, name)
			assert.GreaterOrEqual(t, s.RayGen.Size, s.AlignedHandleSize, name)
			assert.GreaterOrEqual(t, s.Miss.Size, int64(counts[0])*s.Miss.Stride, name)
			assert.GreaterOrEqual(t, s.Hit.Size, int64(counts[1])*s.Hit.Stride, name)
			assert.Equal(t, s.RayGen.Offset+s.RayGen.Size, s.Miss.Offset, name)
			assert.Equal(t, s.Miss.Offset+s.Miss.Size, s.Hit.Offset, name)
			assert.Zero(t, s.Callable.Size, name)
			assert.Equal(t, s.Hit.Offset+s.Hit.Size, s.Size, name)
		}
	}
}

func TestLayoutSBTDesktopLimits(t *testing.T) {
	s := LayoutSBT(soft.DefaultLimits(), 1, 1)
	assert.Equal(t, SBTRegion{Offset: 0, Stride: 64, Size: 64}, s.RayGen)
	assert.Equal(t, SBTRegion{Offset: 64, Stride: 32, Size: 64}, s.Miss)
	assert.Equal(t, SBTRegion{Offset: 128, Stride: 32, Size: 64}, s.Hit)
	assert.Equal(t, int64(192), s.Size)
}

func TestSBTFill(t *testing.T) {
	l := soft.DefaultLimits()
	l.ShaderGroupHandleSize = 8
	l.ShaderGroupHandleAlignment = 16
	l.ShaderGroupBaseAlignment = 32
	s := LayoutSBT(l, 2, 2)

	handles := make([]byte, 5*8)
	for g := 0; g < 5; g++ {
		for i := 0; i < 8; i++ {
			handles[8*g+i] = byte(g + 1)
		}
	}
	table := make([]byte, s.Size)
	require.NoError(t, s.Fill(table, handles, 2, 2))

	at := func(off int64) []byte { return table[off : off+8] }
	same := func(v byte) []byte {
		b := make([]byte, 8)
		for i := range b {
			b[i] = v
		}
		return b
	}
	assert.Equal(t, same(1), at(s.RayGen.Offset))
	assert.Equal(t, same(2), at(s.Miss.Offset))
	assert.Equal(t, same(3), at(s.Miss.Offset+s.Miss.Stride))
	assert.Equal(t, same(4), at(s.Hit.Offset))
	assert.Equal(t, same(5), at(s.Hit.Offset+s.Hit.Stride))
	// Padding between records stays zero.
	assert.Equal(t, same(0), at(s.Miss.Offset+8))

	assert.Error(t, s.Fill(table, handles[:30], 2, 2))
	assert.Error(t, s.Fill(table[:s.Size-1], handles, 2, 2))
}

func TestNewSBTAlignsDeviceAddresses(t *testing.T) {
	l := soft.DefaultLimits()
	l.ShaderGroupBaseAlignment = 512
	gpu, err := soft.New(soft.Config{Limits: l}).Open(nil)
	require.NoError(t, err)
	g := gpu.(*soft.GPU)

	// Buffers are 256 byte aligned; shift the next one off 512.
	pad, err := g.NewBuffer(100, false, driver.UStorage)
	require.NoError(t, err)

	set, err := loadShaders("")
	require.NoError(t, err)
	p, err := newPipeline(g, set)
	require.NoError(t, err)

	base := uint64(g.Limits().ShaderGroupBaseAlignment)
	for _, r := range []driver.SBTRegion{p.sbt.table.RayGen, p.sbt.table.Miss, p.sbt.table.Hit} {
		assert.NotZero(t, r.Addr)
		assert.Zero(t, r.Addr%base)
	}
	assert.Zero(t, p.sbt.table.Callable.Addr)

	p.Destroy()
	pad.Destroy()
	g.Destroy()
	assert.Empty(t, g.Findings())
}
