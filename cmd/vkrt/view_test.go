package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkrt"
)

func TestOrbitKeepsDistance(t *testing.T) {
	o := &orbit{base: vkrt.Camera{
		Position: lin.Vec3{0, 0, 4},
		Target:   lin.Vec3{1, 1, 0},
		Up:       lin.Vec3{0, 1, 0},
		VFov:     45,
	}}
	dist := func(c vkrt.Camera) float32 {
		var s float32
		for i := 0; i < 3; i++ {
			d := c.Position[i] - c.Target[i]
			s += d * d
		}
		return math32.Sqrt(s)
	}

	assert.InDelta(t, 0, o.camera().Position[0]-1, 1e-5)
	for _, yp := range [][2]float32{{orbitStep, 0}, {math32.Pi / 2, orbitStep * 3}, {-1, -0.5}} {
		o.yaw, o.pitch = yp[0], yp[1]
		cam := o.camera()
		assert.InDelta(t, dist(o.base), dist(cam), 1e-4)
		assert.Equal(t, o.base.Target, cam.Target)
		assert.Equal(t, o.base.VFov, cam.VFov)
	}
}

func TestWatchSignalsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\n"), 0o644))

	w, changed, err := watch(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.obj"), []byte("v 1 1 1\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 1\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}
