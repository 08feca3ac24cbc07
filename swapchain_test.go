package vkrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/driver/soft"
	"github.com/celer/vkrt/mesh"
)

func newWindowedContext(t *testing.T, sf *soft.Surface) (*Context, *soft.GPU) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SamplesToRender = 2
	cfg.Background = [3]float32{0, 0, 1}
	ctx, err := NewContext(soft.New(soft.Config{}), sf, cfg)
	require.NoError(t, err)
	return ctx, ctx.GPU().(*soft.GPU)
}

func (c *Context) softSwapchain() *soft.Swapchain {
	if c.swap == nil || c.swap.sc == nil {
		return nil
	}
	return c.swap.sc.(*soft.Swapchain)
}

func TestWindowedFramesPresent(t *testing.T) {
	sf := soft.NewSurface(16, 12)
	ctx, g := newWindowedContext(t, sf)
	require.NoError(t, ctx.LoadScene(16, 12, mesh.Triangle()))

	overlays := 0
	ctx.SetOverlay(func(cb driver.CmdBuffer, target driver.Image) {
		w, h := target.Extent()
		assert.Equal(t, [2]int{16, 12}, [2]int{w, h})
		overlays++
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, ctx.RenderFrame(awayCamera()))
	}
	sc := ctx.softSwapchain()
	require.NotNil(t, sc)
	assert.Equal(t, 4, sc.Presented())
	assert.Equal(t, 4, overlays)

	// Converged frames still present.
	st := ctx.Stats()
	assert.Equal(t, 2, st.Dispatches)
	assert.Equal(t, 2, st.Converged)
	assert.Equal(t, 4, st.Frames)

	px, ok := sc.Last(5, 5)
	require.True(t, ok)
	assert.InDelta(t, 0, px[0], 0.01)
	assert.InDelta(t, 0, px[1], 0.01)
	assert.InDelta(t, 1, px[2], 0.01)
	destroyClean(t, ctx, g)
}

func TestWindowedSurfaceResize(t *testing.T) {
	sf := soft.NewSurface(16, 12)
	ctx, g := newWindowedContext(t, sf)
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(16, 12, m))
	cam := DefaultCamera(m)
	require.NoError(t, ctx.RenderFrame(cam))
	live := g.Live()

	sf.SetExtent(20, 10)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Stats().Skipped)
	assert.Zero(t, ctx.Accumulation().Count)
	w, h := ctx.Extent()
	assert.Equal(t, [2]int{20, 10}, [2]int{w, h})
	sw, sh := ctx.softSwapchain().Extent()
	assert.Equal(t, [2]int{20, 10}, [2]int{sw, sh})
	assert.Equal(t, live, g.Live())

	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.softSwapchain().Presented())
	assert.Equal(t, 1, ctx.Accumulation().Count)

	// A minimized window has no swapchain; frames are skipped until it
	// is restored.
	sf.SetExtent(0, 0)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Nil(t, ctx.softSwapchain())
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 3, ctx.Stats().Skipped)

	sf.SetExtent(16, 12)
	require.NoError(t, ctx.RenderFrame(cam))
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.softSwapchain().Presented())
	w, h = ctx.Extent()
	assert.Equal(t, [2]int{16, 12}, [2]int{w, h})
	destroyClean(t, ctx, g)
}

func TestWindowedRequiresSoftSurface(t *testing.T) {
	_, err := NewContext(soft.New(soft.Config{}), otherSurface{}, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

type otherSurface struct{}

func (otherSurface) Extent() (int, int) { return 1, 1 }
