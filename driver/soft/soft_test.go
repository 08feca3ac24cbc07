package soft

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkrt/driver"
)

func openGPU(t *testing.T, cfg Config) *GPU {
	t.Helper()
	g, err := New(cfg).Open(nil)
	require.NoError(t, err)
	return g.(*GPU)
}

func floats(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func uints(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, u := range v {
		binary.LittleEndian.PutUint32(b[4*i:], u)
	}
	return b
}

func hostBuffer(t *testing.T, g *GPU, data []byte, usg driver.Usage) driver.Buffer {
	t.Helper()
	buf, err := g.NewBuffer(int64(len(data)), true, usg|driver.UDeviceAddress)
	require.NoError(t, err)
	copy(buf.Bytes(), data)
	return buf
}

func submitAndWait(t *testing.T, g *GPU, cb driver.CmdBuffer) {
	t.Helper()
	f, err := g.NewFence(false)
	require.NoError(t, err)
	defer f.Destroy()
	require.NoError(t, g.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: f}))
	require.NoError(t, f.Wait(time.Second))
}

// buildScene builds a bottom level structure holding one triangle and a
// top level structure with two instances of it, the second shifted by
// +3 on x.
func buildScene(t *testing.T, g *GPU) (tlas driver.AccelStruct, destroy func()) {
	verts := hostBuffer(t, g, floats(-1, -1, 0, 1, -1, 0, 0, 1, 0), driver.UAccelInput)
	idx := hostBuffer(t, g, uints(0, 1, 2), driver.UAccelInput)

	blasBuild := &driver.AccelBuild{
		Level: driver.BottomLevel,
		Triangles: []driver.AccelTriangles{{
			VertexAddr: verts.Addr(), VertexStride: 12, VertexCount: 3,
			IndexAddr: idx.Addr(), TriangleCount: 1, Opaque: true,
		}},
	}
	bs, err := g.AccelBuildSizes(blasBuild)
	require.NoError(t, err)

	blasBuf, err := g.NewBuffer(bs.AccelSize, false, driver.UAccelStorage|driver.UDeviceAddress)
	require.NoError(t, err)
	blas, err := g.NewAccelStruct(driver.BottomLevel, blasBuf, 0, bs.AccelSize)
	require.NoError(t, err)
	blasBuild.Dst = blas

	insts := make([]byte, 2*driver.InstanceSize)
	for i := 0; i < 2; i++ {
		in := driver.Instance{Transform: driver.Identity(), Mask: 0xff, AccelAddr: blas.Addr()}
		in.Transform[0][3] = float32(3 * i)
		in.Encode(insts[i*driver.InstanceSize:])
	}
	instBuf := hostBuffer(t, g, insts, driver.UAccelInput)
	tlasBuild := &driver.AccelBuild{Level: driver.TopLevel, InstanceAddr: instBuf.Addr(), InstanceCount: 2}
	ts, err := g.AccelBuildSizes(tlasBuild)
	require.NoError(t, err)
	tlasBuf, err := g.NewBuffer(ts.AccelSize, false, driver.UAccelStorage|driver.UDeviceAddress)
	require.NoError(t, err)
	tlas, err = g.NewAccelStruct(driver.TopLevel, tlasBuf, 0, ts.AccelSize)
	require.NoError(t, err)
	tlasBuild.Dst = tlas

	scratch, err := g.NewBuffer(bs.ScratchSize+ts.ScratchSize+256, false, driver.UStorage|driver.UDeviceAddress)
	require.NoError(t, err)
	blasBuild.ScratchAddr = scratch.Addr()
	tlasBuild.ScratchAddr = scratch.Addr()

	cb, err := g.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	cb.BuildAccel(blasBuild)
	cb.Barrier([]driver.Barrier{{
		SyncBefore: driver.SAccelBuild, SyncAfter: driver.SAccelBuild,
		AccessBefore: driver.AAccelWrite, AccessAfter: driver.AAccelRead,
	}})
	cb.BuildAccel(tlasBuild)
	require.NoError(t, cb.End())
	submitAndWait(t, g, cb)

	return tlas, func() {
		for _, d := range []driver.Destroyer{cb, scratch, tlas, tlasBuf, instBuf, blas, blasBuf, idx, verts} {
			d.Destroy()
		}
	}
}

func TestAccelBuildAndTrace(t *testing.T) {
	g := openGPU(t, Config{})
	tlas, destroy := buildScene(t, g)

	h, ok := Trace(tlas, [3]float32{0, 0, 5}, [3]float32{0, 0, -1}, 0, 100, 0xff)
	require.True(t, ok)
	assert.Equal(t, 0, h.Instance)
	assert.InDelta(t, 5, h.T, 1e-5)

	h, ok = Trace(tlas, [3]float32{3, 0, 5}, [3]float32{0, 0, -1}, 0, 100, 0xff)
	require.True(t, ok)
	assert.Equal(t, 1, h.Instance)
	assert.InDelta(t, 0.25, h.U, 1e-5)
	assert.InDelta(t, 0.5, h.V, 1e-5)

	_, ok = Trace(tlas, [3]float32{1.5, 0, 5}, [3]float32{0, 0, -1}, 0, 100, 0xff)
	assert.False(t, ok, "between the instances")

	_, ok = Trace(tlas, [3]float32{0, 0, 5}, [3]float32{0, 0, -1}, 0, 100, 0)
	assert.False(t, ok, "masked out")

	destroy()
	assert.Empty(t, g.Findings())
	g.Destroy()
	assert.Empty(t, g.Findings(), "leaks")
}

func TestMissingBarrierIsReported(t *testing.T) {
	g := openGPU(t, Config{})
	staging := hostBuffer(t, g, floats(-1, -1, 0, 1, -1, 0, 0, 1, 0), driver.UCopySrc)
	verts, err := g.NewBuffer(36, false, driver.UCopyDst|driver.UAccelInput|driver.UDeviceAddress)
	require.NoError(t, err)
	idx := hostBuffer(t, g, uints(0, 1, 2), driver.UAccelInput)

	build := &driver.AccelBuild{
		Level: driver.BottomLevel,
		Triangles: []driver.AccelTriangles{{
			VertexAddr: verts.Addr(), VertexStride: 12, VertexCount: 3,
			IndexAddr: idx.Addr(), TriangleCount: 1,
		}},
	}
	sz, err := g.AccelBuildSizes(build)
	require.NoError(t, err)
	asBuf, err := g.NewBuffer(sz.AccelSize, false, driver.UAccelStorage|driver.UDeviceAddress)
	require.NoError(t, err)
	as, err := g.NewAccelStruct(driver.BottomLevel, asBuf, 0, sz.AccelSize)
	require.NoError(t, err)
	scratch, err := g.NewBuffer(sz.ScratchSize, false, driver.UStorage|driver.UDeviceAddress)
	require.NoError(t, err)
	build.Dst, build.ScratchAddr = as, scratch.Addr()

	cb, err := g.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	cb.CopyBuffer(&driver.BufferCopy{From: staging, To: verts, Size: 36})
	cb.BuildAccel(build)
	require.NoError(t, cb.End())
	submitAndWait(t, g, cb)

	findings := g.Findings()
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "without a barrier")

	// The same sequence with a barrier is clean.
	require.NoError(t, cb.Begin())
	cb.CopyBuffer(&driver.BufferCopy{From: staging, To: verts, Size: 36})
	cb.Barrier([]driver.Barrier{{
		SyncBefore: driver.STransfer, SyncAfter: driver.SAccelBuild,
		AccessBefore: driver.ATransferWrite, AccessAfter: driver.AAccelRead,
	}})
	cb.BuildAccel(build)
	require.NoError(t, cb.End())
	submitAndWait(t, g, cb)
	assert.Len(t, g.Findings(), 1)

	for _, d := range []driver.Destroyer{cb, scratch, as, asBuf, idx, verts, staging} {
		d.Destroy()
	}
}

func TestFenceLatency(t *testing.T) {
	g := openGPU(t, Config{FenceLatency: 50 * time.Millisecond})
	cb, err := g.NewCmdBuffer()
	require.NoError(t, err)
	f, err := g.NewFence(false)
	require.NoError(t, err)

	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
	require.NoError(t, g.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: f}))

	done, err := f.Signaled()
	require.NoError(t, err)
	assert.False(t, done)
	assert.ErrorIs(t, f.Wait(time.Millisecond), driver.ErrTimeout)

	// Re-recording a pending command buffer is refused.
	assert.ErrorIs(t, cb.Begin(), driver.ErrPending)
	require.Len(t, g.Findings(), 1)

	start := time.Now()
	require.NoError(t, f.Wait(time.Second))
	assert.Less(t, time.Since(start), time.Second)
	done, _ = f.Signaled()
	assert.True(t, done)
	assert.NoError(t, cb.Begin())

	require.NoError(t, f.Reset())
	done, _ = f.Signaled()
	assert.False(t, done)

	require.NoError(t, g.WaitIdle())
	cb.Destroy()
	f.Destroy()
	assert.Len(t, g.Findings(), 1)
}

func TestMemoryBudget(t *testing.T) {
	g := openGPU(t, Config{MemoryLimit: 1024})
	a, err := g.NewBuffer(1000, false, driver.UStorage)
	require.NoError(t, err)
	_, err = g.NewBuffer(100, false, driver.UStorage)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	_, err = g.NewImage(driver.RGBA8un, 4, 4, driver.UStorage)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)

	a.Destroy()
	assert.Zero(t, g.MemoryUsed())
	a.Destroy()
	assert.Len(t, g.Findings(), 1, "double destroy")
}

func TestLeaksAreReported(t *testing.T) {
	g := openGPU(t, Config{})
	_, err := g.NewSemaphore()
	require.NoError(t, err)
	g.Destroy()
	findings := g.Findings()
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "semaphore")
}

func TestBlitConvertsToSRGB(t *testing.T) {
	g := openGPU(t, Config{})
	src, err := g.NewImage(driver.RGBA32f, 4, 4, driver.UStorage|driver.UCopySrc)
	require.NoError(t, err)
	dst, err := g.NewImage(driver.RGBA8sRGB, 2, 2, driver.UCopyDst|driver.UCopySrc)
	require.NoError(t, err)

	cb, err := g.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	cb.Transition([]driver.Transition{
		{LayoutAfter: driver.LTransferDst, Img: src},
		{LayoutAfter: driver.LTransferDst, Img: dst},
	})
	cb.ClearImage(src, [4]float32{0.5, 0.5, 0.5, 1})
	cb.Transition([]driver.Transition{{LayoutBefore: driver.LTransferDst, LayoutAfter: driver.LTransferSrc, Img: src}})
	cb.BlitImage(dst, src, false)
	require.NoError(t, cb.End())
	submitAndWait(t, g, cb)
	require.Empty(t, g.Findings())

	// 0.5 linear is 188 in sRGB.
	raw := dst.(*image).data
	assert.Equal(t, []byte{188, 188, 188, 255}, raw[:4])

	// A layout mismatch is reported.
	require.NoError(t, cb.Begin())
	cb.BlitImage(dst, src, true)
	cb.Transition([]driver.Transition{{LayoutBefore: driver.LShaderRead, LayoutAfter: driver.LGeneral, Img: dst}})
	require.NoError(t, cb.End())
	submitAndWait(t, g, cb)
	assert.Len(t, g.Findings(), 1)

	cb.Destroy()
	src.Destroy()
	dst.Destroy()
}

func TestCheckSBT(t *testing.T) {
	g := openGPU(t, Config{})
	good := &driver.SBT{
		RayGen: driver.SBTRegion{Addr: 0x10000, Stride: 64, Size: 64},
		Miss:   driver.SBTRegion{Addr: 0x10040, Stride: 32, Size: 64},
		Hit:    driver.SBTRegion{Addr: 0x10080, Stride: 32, Size: 64},
	}
	assert.True(t, g.checkSBT(good))
	assert.Empty(t, g.Findings())

	bad := *good
	bad.Miss.Addr += 32
	bad.Hit.Stride = 48
	bad.RayGen.Size = 128
	assert.False(t, g.checkSBT(&bad))
	assert.Len(t, g.Findings(), 3)
}

func TestSwapchain(t *testing.T) {
	g := openGPU(t, Config{})
	sf := NewSurface(8, 6)
	sc, err := g.NewSwapchain(sf, 2)
	require.NoError(t, err)
	w, h := sc.Extent()
	assert.Equal(t, [2]int{8, 6}, [2]int{w, h})
	require.Len(t, sc.Images(), 2)

	acquired, err := g.NewSemaphore()
	require.NoError(t, err)
	i, err := sc.Next(acquired)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	// The image is presented without a transition to the present layout.
	require.NoError(t, sc.Present(i, acquired))
	assert.Len(t, g.Findings(), 1)
	assert.Equal(t, 1, sc.(*Swapchain).Presented())

	sf.SetExtent(10, 6)
	_, err = sc.Next(acquired)
	assert.ErrorIs(t, err, driver.ErrSwapchain)

	sc.Destroy()
	acquired.Destroy()
	assert.Empty(t, g.Live())
}
