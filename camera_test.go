package vkrt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkrt/mesh"
	"github.com/celer/vkrt/shaders"
)

func TestCameraPushBasis(t *testing.T) {
	cam := Camera{
		Position:  lin.Vec3{0, 0, 5},
		Target:    lin.Vec3{0, 0, 0},
		Up:        lin.Vec3{0, 1, 0},
		VFov:      90,
		FocusDist: 2,
	}
	var p shaders.Push
	cam.push(&p, 2)

	const eps = 1e-5
	// The image plane is 2*tan(45°)*focus high and twice as wide.
	assert.InDelta(t, 8, p.Horizontal[0], eps)
	assert.InDelta(t, 0, p.Horizontal[1], eps)
	assert.InDelta(t, 4, p.Vertical[1], eps)
	assert.InDelta(t, 0, p.Vertical[0], eps)

	// The center of the image plane lies on the view axis, focus
	// units in front of the eye.
	for k, want := range []float32{0, 0, 3} {
		center := p.LowerLeft[k] + p.Horizontal[k]/2 + p.Vertical[k]/2
		assert.InDelta(t, want, center, eps, "axis %d", k)
	}
	assert.Equal(t, [4]float32{0, 0, 5, 0}, p.Origin)

	cam.Aperture = 0.5
	cam.push(&p, 2)
	assert.Equal(t, float32(0.25), p.Origin[3])
}

func TestCameraChanges(t *testing.T) {
	a := DefaultCamera(mesh.Triangle())
	b := a
	assert.False(t, b.viewChanged(&a))
	assert.False(t, b.lensChanged(&a))

	b.Position[0] += 0.1
	assert.True(t, b.viewChanged(&a))

	b = a
	b.Aperture = 0.1
	assert.False(t, b.viewChanged(&a))
	assert.True(t, b.lensChanged(&a))
}

func TestDefaultCameraFramesMesh(t *testing.T) {
	m := mesh.Triangle()
	cam := DefaultCamera(m)
	assert.Equal(t, lin.Vec3{0.5, 0.5, 0}, cam.Target)
	assert.Greater(t, cam.Position[2], float32(0))

	// The whole box fits in the vertical field of view.
	half := float64(lin.DegreesToRadians(cam.VFov / 2))
	visible := math.Tan(half) * float64(cam.Position[2])
	assert.Greater(t, visible, 0.5)
}
