package vkrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/driver/soft"
	"github.com/celer/vkrt/mesh"
)

// gridMesh returns an n x n grid of quads in the z = 0 plane.
func gridMesh(n int) *mesh.Mesh {
	m := &mesh.Mesh{Name: "grid"}
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.Vertices = append(m.Vertices, float32(x)/float32(n), float32(y)/float32(n), 0)
		}
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := uint32(y*(n+1) + x)
			m.Indices = append(m.Indices, i, i+1, i+uint32(n)+1, i+1, i+uint32(n)+2, i+uint32(n)+1)
		}
	}
	return m
}

func TestLoadSceneRejectsInvalidMesh(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	for name, m := range map[string]*mesh.Mesh{
		"nil":          nil,
		"empty":        {},
		"ragged":       {Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, Indices: []uint32{0, 1}},
		"out of range": {Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, Indices: []uint32{0, 1, 3}},
	} {
		err := ctx.LoadScene(8, 8, m)
		require.Error(t, err, name)
		assert.Equal(t, InvalidMesh, KindOf(err), name)
		assert.False(t, IsFatal(err), name)
	}
	w, h := ctx.Extent()
	assert.Zero(t, w+h)
	destroyClean(t, ctx, g)
}

func TestLoadSceneReplacesPrevious(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	require.NoError(t, ctx.LoadScene(8, 8, mesh.Triangle()))
	cam := DefaultCamera(mesh.Triangle())
	require.NoError(t, ctx.RenderFrame(cam))
	live := g.Live()

	require.NoError(t, ctx.LoadScene(8, 8, gridMesh(3)))
	assert.Equal(t, live, g.Live())
	assert.Zero(t, ctx.Accumulation().Count)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 1, ctx.Accumulation().Count)

	require.NoError(t, ctx.DestroyScene())
	require.NoError(t, ctx.DestroyScene())
	assert.Error(t, ctx.RenderFrame(cam))
	destroyClean(t, ctx, g)
}

// A load that runs out of memory halfway releases what it created and
// leaves the previous scene usable.
func TestLoadSceneIsTransactional(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) { c.SamplesToRender = 8 })
	tri := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(8, 8, tri))
	cam := DefaultCamera(tri)
	require.NoError(t, ctx.RenderFrame(cam))
	require.NoError(t, ctx.RenderFrame(cam))

	big := gridMesh(16)
	vb := int64(4 * len(big.Vertices))
	ib := int64(4 * len(big.Indices))
	staging := vb
	if ib > staging {
		staging = ib
	}
	live, used := g.Live(), g.MemoryUsed()

	// Room for the mesh buffers and their staging copies, not for the
	// bottom level structure.
	for _, budget := range []int64{vb / 2, vb + staging + ib/2, vb + ib + staging + 16} {
		g.SetMemoryLimit(used + budget)
		err := ctx.LoadScene(16, 16, big)
		require.Error(t, err, "budget %d", budget)
		assert.Equal(t, Exhausted, KindOf(err), "budget %d", budget)
		assert.False(t, IsFatal(err))

		assert.Equal(t, live, g.Live(), "budget %d", budget)
		assert.Equal(t, used, g.MemoryUsed(), "budget %d", budget)
		assert.Equal(t, 2, ctx.Accumulation().Count)
		w, h := ctx.Extent()
		assert.Equal(t, [2]int{8, 8}, [2]int{w, h})
	}

	// Targets that do not fit fail the same way.
	g.SetMemoryLimit(used + 64)
	err := ctx.Resize(1024, 1024)
	assert.Equal(t, Exhausted, KindOf(err))
	assert.Equal(t, live, g.Live())

	g.SetMemoryLimit(0)
	require.NoError(t, ctx.RenderFrame(cam))
	assert.Equal(t, 3, ctx.Accumulation().Count)

	require.NoError(t, ctx.LoadScene(16, 16, big))
	require.NoError(t, ctx.RenderFrame(DefaultCamera(big)))
	destroyClean(t, ctx, g)
}

func TestLoadSceneInstances(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.Background = [3]float32{1, 0, 0}
		c.SamplesToRender = 1
	})
	tri := mesh.Triangle()
	shifted := driver.Identity()
	shifted[0][3] = -1
	require.NoError(t, ctx.LoadSceneDesc(32, 32, SceneDesc{
		Mesh: tri,
		Instances: []Instance{
			{Transform: driver.Identity()},
			{Transform: shifted},
		},
	}))
	require.NoError(t, ctx.RenderFrame(DefaultCamera(tri)))

	img, err := ctx.Readback()
	require.NoError(t, err)
	// Left of the first triangle the shifted copy is hit.
	assert.Greater(t, img.NRGBAAt(1, 24).G, uint8(64))
	// Above the diagonal of the shifted copy both instances miss.
	miss := img.NRGBAAt(4, 20)
	assert.Equal(t, uint8(255), miss.R)
	assert.Zero(t, miss.G)
	destroyClean(t, ctx, g)
}

func TestUploadChunksStaging(t *testing.T) {
	m := gridMesh(8)
	render := func(limit int64) []uint8 {
		ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
			c.StagingLimit = limit
			c.SamplesToRender = 1
		})
		require.NoError(t, ctx.LoadScene(16, 16, m))
		require.NoError(t, ctx.RenderFrame(DefaultCamera(m)))
		img, err := ctx.Readback()
		require.NoError(t, err)
		destroyClean(t, ctx, g)
		return img.Pix
	}
	// 100 bytes splits the vertex buffer in ten copies.
	assert.Equal(t, render(0), render(100))
}
