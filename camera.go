package vkrt

import (
	"github.com/chewxy/math32"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkrt/mesh"
	"github.com/celer/vkrt/shaders"
)

// Camera is a thin lens camera. With a zero Aperture it is a pinhole
// camera and FocusDist only scales the image plane.
type Camera struct {
	Position lin.Vec3
	Target   lin.Vec3
	Up       lin.Vec3

	// VFov is the vertical field of view in degrees.
	VFov float32

	Aperture  float32
	FocusDist float32
}

// DefaultCamera frames a mesh from the +z side.
func DefaultCamera(m *mesh.Mesh) Camera {
	lo, hi := m.Bounds()
	var center lin.Vec3
	var radius float32
	for k := 0; k < 3; k++ {
		center[k] = (lo[k] + hi[k]) / 2
		radius = math32.Max(radius, (hi[k]-lo[k])/2)
	}
	if radius == 0 {
		radius = 1
	}
	const vfov = 45
	dist := 1.5 * radius / math32.Tan(lin.DegreesToRadians(vfov/2))
	return Camera{
		Position:  lin.Vec3{center[0], center[1], center[2] + dist},
		Target:    center,
		Up:        lin.Vec3{0, 1, 0},
		VFov:      vfov,
		FocusDist: dist,
	}
}

// viewChanged reports whether the rays generated by c differ from those
// of o for reasons other than the lens.
func (c *Camera) viewChanged(o *Camera) bool {
	return c.Position != o.Position || c.Target != o.Target || c.Up != o.Up || c.VFov != o.VFov
}

func (c *Camera) lensChanged(o *Camera) bool {
	return c.Aperture != o.Aperture || c.FocusDist != o.FocusDist
}

// push fills the camera part of the push constant block for an image
// of the given aspect ratio. The basis is taken from the view matrix:
// its rows hold the camera right, up and backward axes.
func (c *Camera) push(p *shaders.Push, aspect float32) {
	var view lin.Mat4x4
	eye, target, up := c.Position, c.Target, c.Up
	view.LookAt(&eye, &target, &up)

	var right, camUp, forward [3]float32
	for i := 0; i < 3; i++ {
		right[i] = view[i][0]
		camUp[i] = view[i][1]
		forward[i] = -view[i][2]
	}

	focus := c.FocusDist
	if focus <= 0 {
		focus = 1
	}
	halfH := math32.Tan(lin.DegreesToRadians(c.VFov)/2) * focus
	halfW := aspect * halfH

	for i := 0; i < 3; i++ {
		p.Horizontal[i] = 2 * halfW * right[i]
		p.Vertical[i] = 2 * halfH * camUp[i]
		p.LowerLeft[i] = eye[i] + focus*forward[i] - halfW*right[i] - halfH*camUp[i]
		p.Origin[i] = eye[i]
	}
	p.Origin[3] = c.Aperture / 2
}
