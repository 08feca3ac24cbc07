package vkrt

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/celer/vkrt/driver/soft"
	"github.com/celer/vkrt/mesh"
)

func srgb8(v float64) uint8 {
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return uint8(math.Round(v * 255))
}

func decodeFile(t *testing.T, path string, dec func(f *os.File) (image.Image, error)) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := dec(f)
	require.NoError(t, err)
	return img
}

func TestExportConstantColor(t *testing.T) {
	bg := [3]float32{0.5, 0.25, 1}
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.Background = bg
		c.SamplesToRender = 3
	})
	require.NoError(t, ctx.LoadScene(24, 16, mesh.Triangle()))
	for i := 0; i < 3; i++ {
		require.NoError(t, ctx.RenderFrame(awayCamera()))
	}

	want := color.NRGBA{srgb8(float64(bg[0])), srgb8(float64(bg[1])), srgb8(float64(bg[2])), 255}
	ref, err := ctx.Readback()
	require.NoError(t, err)
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			c := ref.NRGBAAt(x, y)
			assert.InDelta(t, want.R, c.R, 1)
			assert.InDelta(t, want.G, c.G, 1)
			assert.InDelta(t, want.B, c.B, 1)
			assert.Equal(t, uint8(255), c.A)
		}
	}

	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		dec  func(f *os.File) (image.Image, error)
	}{
		{"out.png", func(f *os.File) (image.Image, error) { return png.Decode(f) }},
		{"out.bmp", func(f *os.File) (image.Image, error) { return bmp.Decode(f) }},
		{"out.TIFF", func(f *os.File) (image.Image, error) { return tiff.Decode(f) }},
	} {
		path := filepath.Join(dir, tc.name)
		require.NoError(t, ctx.Export(path), tc.name)
		img := decodeFile(t, path, tc.dec)
		require.Equal(t, ref.Bounds(), img.Bounds(), tc.name)
		for y := 0; y < 16; y++ {
			for x := 0; x < 24; x++ {
				got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				require.Equal(t, ref.NRGBAAt(x, y), got, "%s at %d,%d", tc.name, x, y)
			}
		}
	}

	// Exporting does not disturb accumulation.
	assert.Equal(t, 3, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}

func TestExportPNGIgnoresExtension(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)
	require.NoError(t, ctx.LoadScene(8, 8, mesh.Triangle()))
	require.NoError(t, ctx.RenderFrame(awayCamera()))

	path := filepath.Join(t.TempDir(), "frame.data")
	require.NoError(t, ctx.ExportPNG(path))
	img := decodeFile(t, path, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	assert.Equal(t, 8, img.Bounds().Dx())
	destroyClean(t, ctx, g)
}

func TestExportShowsMesh(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.Background = [3]float32{1, 0, 0}
		c.SamplesToRender = 2
	})
	m := mesh.Triangle()
	require.NoError(t, ctx.LoadScene(32, 32, m))
	require.NoError(t, ctx.RenderFrame(DefaultCamera(m)))
	require.NoError(t, ctx.RenderFrame(DefaultCamera(m)))

	img, err := ctx.Readback()
	require.NoError(t, err)
	// Lower left of the view is inside the triangle.
	hit := img.NRGBAAt(10, 20)
	assert.Greater(t, hit.G, uint8(64))
	assert.Equal(t, uint8(255), hit.A)
	// The upper right corner is past its hypotenuse.
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, img.NRGBAAt(31, 0))
	destroyClean(t, ctx, g)
}

func TestExportErrors(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, nil)

	err := ctx.Export(filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, ErrNoScene)

	require.NoError(t, ctx.LoadScene(8, 8, mesh.Triangle()))
	require.NoError(t, ctx.RenderFrame(awayCamera()))

	dir := t.TempDir()
	err = ctx.Export(filepath.Join(dir, "frame.jpg"))
	require.Error(t, err)
	assert.Equal(t, Encode, KindOf(err))

	err = ctx.Export(filepath.Join(dir, "missing", "frame.png"))
	require.Error(t, err)
	assert.Equal(t, IO, KindOf(err))
	assert.False(t, IsFatal(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The session goes on.
	require.NoError(t, ctx.RenderFrame(awayCamera()))
	destroyClean(t, ctx, g)
}

func TestReadbackBeforeFirstFrameIsBackground(t *testing.T) {
	ctx, g := newTestContext(t, soft.Config{}, func(c *Config) {
		c.Background = [3]float32{0.5, 0.25, 0}
	})
	require.NoError(t, ctx.LoadScene(8, 6, mesh.Triangle()))

	img, err := ctx.Readback()
	require.NoError(t, err)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			px := img.NRGBAAt(x, y)
			assert.InDelta(t, srgb8(0.5), px.R, 1)
			assert.InDelta(t, srgb8(0.25), px.G, 1)
			assert.Zero(t, px.B)
			assert.Equal(t, uint8(255), px.A)
		}
	}
	assert.Zero(t, ctx.Accumulation().Count)
	destroyClean(t, ctx, g)
}
