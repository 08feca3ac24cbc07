package vkrt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/driver/soft"
	"github.com/celer/vkrt/mesh"
)

// newTestContext opens a headless context on a private soft driver.
func newTestContext(t *testing.T, sc soft.Config, edit func(*Config)) (*Context, *soft.GPU) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SamplesToRender = 4
	if edit != nil {
		edit(&cfg)
	}
	ctx, err := NewContext(soft.New(sc), nil, cfg)
	require.NoError(t, err)
	return ctx, ctx.GPU().(*soft.GPU)
}

// destroyClean destroys ctx and checks that the device saw no invalid
// usage and that nothing leaked.
func destroyClean(t *testing.T, ctx *Context, g *soft.GPU) {
	t.Helper()
	ctx.Destroy()
	assert.Empty(t, g.Findings())
	assert.Empty(t, g.Live())
	assert.Zero(t, g.MemoryUsed())
}

// awayCamera looks at empty space so that every ray misses.
func awayCamera() Camera {
	return Camera{
		Position: lin.Vec3{0, 0, 5},
		Target:   lin.Vec3{0, 0, 10},
		Up:       lin.Vec3{0, 1, 0},
		VFov:     45,
	}
}

func TestCreateContextUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "glide"
	_, err := CreateContext(nil, cfg)
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
	assert.True(t, IsFatal(err))
}

func TestCreateContextRegisteredSoft(t *testing.T) {
	ctx, err := CreateContext(nil, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, soft.Name, ctx.GPU().Driver().Name())
	ctx.Destroy()
}

func TestContextWithoutRayTracing(t *testing.T) {
	drv := soft.New(soft.Config{NoRayTracing: true})
	_, err := NewContext(drv, nil, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
	assert.True(t, errors.Is(err, driver.ErrUnsupported))
	assert.Contains(t, err.Error(), "ray tracing pipelines")
	assert.Contains(t, err.Error(), "acceleration structures")
}

func TestContextMissingDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = 3
	_, err := NewContext(soft.New(soft.Config{}), nil, cfg)
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func TestContextShaderDirWithoutModules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShaderDir = t.TempDir()
	_, err := NewContext(soft.New(soft.Config{}), nil, cfg)
	assert.Error(t, err)
}

func TestRenderFrameWithoutScene(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	err := ctx.RenderFrame(DefaultCamera(mesh.Triangle()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoScene))
	_, err = ctx.Readback()
	assert.True(t, errors.Is(err, ErrNoScene))
	destroyClean(t, ctx, g)
}

func TestSampleSequence(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(16, 16, m))
	cam := DefaultCamera(m)

	var seq []int
	for i := 0; i < 5; i++ {
		require.NoError(t, ctx.RenderFrame(cam))
		seq = append(seq, ctx.Accumulation().Count)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 4}, seq)

	st := ctx.Stats()
	assert.Equal(t, 4, st.Dispatches)
	assert.Equal(t, 1, st.Converged)
	assert.Equal(t, 4, st.Samples)
	destroyClean(t, ctx, g)
}

func TestSamplesPerFrameClampedToTarget(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.SamplesToRender = 5
		c.SamplesPerFrame = 2
	})
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, m))
	cam := DefaultCamera(m)

	var seq []int
	for i := 0; i < 4; i++ {
		require.NoError(t, ctx.RenderFrame(cam))
		seq = append(seq, ctx.Accumulation().Count)
	}
	assert.Equal(t, []int{2, 4, 5, 5}, seq)
	destroyClean(t, ctx, g)
}

func TestCameraChangeResetsAccumulation(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) { c.SamplesToRender = 8 })
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, m))
	cam := DefaultCamera(m)

	for i := 0; i < 3; i++ {
		require.NoError(t, ctx.RenderFrame(cam))
	}
	assert.Equal(t, 3, ctx.Accumulation().Count)

	cam.Position[0] += 0.25
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)

	cam.Aperture = 0.05
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 2, ctx.Accumulation().Count)

	ctx.ResetAccumulation()
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

func TestSetSamplesResumesRendering(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) { c.SamplesToRender = 2 })
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, m))
	cam := DefaultCamera(m)
	for i := 0; i < 3; i++ {
		require.NoError(t, ctx.RenderFrame(cam))
	}
	assert.Equal(t, 2, ctx.Accumulation().Count)

	ctx.SetSamples(4, 2)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 4, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

// With a fence latency, a frame slot can only be reused after its
// previous submission completed. Reusing it early would make the soft
// device reject Begin and record a finding.
func TestFrameSlotsWaitForFences(t *testing.T) {
	const latency = 20 * time.Millisecond
	ctx, g := newTestContext(t, soft.Config{FenceLatency: latency}, func(c *Config) {
		c.SamplesToRender = 10
	})
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, m))
	cam := DefaultCamera(m)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, ctx.RenderFrame(cam))
	}
	elapsed := time.Since(start)

	// Two slots: frames 3 to 10 each wait for the frame two before.
	assert.GreaterOrEqual(t, elapsed, 4*latency)
	assert.Equal(t, 10, ctx.Stats().Frames)
	assert.Positive(t, int64(ctx.Stats().FenceWait))
	assert.Equal(t, 10, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

func TestFenceTimeoutIsDeviceLost(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{FenceLatency: 200 * time.Millisecond}, func(c *Config) {
		c.FramesInFlight = 1
		c.FenceTimeout = 10 * time.Millisecond
		c.SamplesToRender = 8
	})
	// Scene uploads wait on fences bounded by the same timeout.
	err := ctx.LoadScene(8, 8, mesh.Triangle())
	require.Error(t, err)
	assert.Equal(t, DeviceLost, KindOf(err))
	// Objects of the timed out submission are released only after
	// Destroy has idled the device.
	assert.Empty(t, g.Findings())
	destroyClean(t, ctx, g)
}

func TestFailedSubmitKeepsSlotUsable(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.FramesInFlight = 1
		c.FenceTimeout = 50 * time.Millisecond
		c.SamplesToRender = 4
	})
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, m))
	cam := DefaultCamera(m)

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)

	g.FailNextSubmit(errors.New("submission rejected"))
	require.Error(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count, "samples of a failed frame are not counted")

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 2, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

func TestResizeIsIdempotent(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(32, 24, m))
	cam := DefaultCamera(m)
	require.NoError(t, ctx.RenderFrame(cam))
	require.NoError(t, ctx.RenderFrame(cam))

	live, used := g.Live(), g.MemoryUsed()
	display, _ := ctx.DisplayImage()
	require.NoError(t, ctx.Resize(32, 24))
	again, _ := ctx.DisplayImage()
	assert.Same(t, display, again)
	assert.Equal(t, live, g.Live())
	assert.Equal(t, used, g.MemoryUsed())
	assert.Equal(t, 2, ctx.Accumulation().Count)

	require.NoError(t, ctx.Resize(40, 30))
	w, h := ctx.Extent()
	assert.Equal(t, [2]int{40, 30}, [2]int{w, h})
	assert.Zero(t, ctx.Accumulation().Count)
	assert.Equal(t, live, g.Live())

	live = g.Live()
	require.NoError(t, ctx.Resize(40, 30))
	assert.Equal(t, live, g.Live())

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)
	img, err := ctx.Readback()
	require.NoError(t, err)
	assert.Equal(t, 40, img.Rect.Dx())
	assert.Equal(t, 30, img.Rect.Dy())
	destroyClean(t, ctx, g)
}

func TestInvalidateSkipsFrame(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(16, 16, m))
	cam := DefaultCamera(m)
	require.NoError(t, ctx.RenderFrame(cam))

	ctx.Invalidate(24, 12)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Stats().Skipped)
	w, h := ctx.Extent()
	assert.Equal(t, [2]int{24, 12}, [2]int{w, h})
	assert.Zero(t, ctx.Accumulation().Count)

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

func TestDestroyIsRepeatable(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	require.NoError(t, ctx.LoadScene(8, 8, mesh.Triangle()))
	destroyClean(t, ctx, g)
	ctx.Destroy()
	assert.Empty(t, g.Findings())
}
