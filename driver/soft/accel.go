package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/celer/vkrt/driver"
)

type instance struct {
	in       driver.Instance
	blas     *accel
	toObject [3][4]float32
}

type accel struct {
	g     *GPU
	level driver.AccelLevel
	buf   *buffer
	off   int64
	size  int64
	addr  uint64
	built bool
	dead  bool

	bvh   *bvh
	insts []instance
}

// AccelBuildSizes implements driver.GPU.
func (g *GPU) AccelBuildSizes(b *driver.AccelBuild) (driver.AccelSizes, error) {
	if !g.Features().AccelStruct {
		return driver.AccelSizes{}, driver.ErrUnsupported
	}
	switch b.Level {
	case driver.BottomLevel:
		tris := 0
		for _, t := range b.Triangles {
			tris += t.TriangleCount
		}
		if tris == 0 {
			return driver.AccelSizes{}, fmt.Errorf("soft: bottom level build without triangles")
		}
		return driver.AccelSizes{AccelSize: 256 + int64(tris)*64, ScratchSize: 256 + int64(tris)*32}, nil
	case driver.TopLevel:
		if b.InstanceCount == 0 {
			return driver.AccelSizes{}, fmt.Errorf("soft: top level build without instances")
		}
		return driver.AccelSizes{AccelSize: 256 + int64(b.InstanceCount)*128, ScratchSize: 256 + int64(b.InstanceCount)*16}, nil
	}
	return driver.AccelSizes{}, fmt.Errorf("soft: invalid acceleration structure level %d", b.Level)
}

// NewAccelStruct implements driver.GPU.
func (g *GPU) NewAccelStruct(level driver.AccelLevel, buf driver.Buffer, off, size int64) (driver.AccelStruct, error) {
	b := buf.(*buffer)
	if b.usage&driver.UAccelStorage == 0 {
		return nil, fmt.Errorf("soft: acceleration structure storage lacks UAccelStorage usage")
	}
	if off < 0 || off%256 != 0 || off+size > b.Size() {
		return nil, fmt.Errorf("soft: acceleration structure range [%d,%d) invalid for buffer of %d bytes", off, off+size, b.Size())
	}
	a := &accel{g: g, level: level, buf: b, off: off, size: size, addr: b.addr + uint64(off)}
	g.mu.Lock()
	g.accels[a.addr] = a
	g.live["accel"]++
	g.mu.Unlock()
	return a, nil
}

func (a *accel) Level() driver.AccelLevel { return a.level }
func (a *accel) Addr() uint64             { return a.addr }

func (a *accel) Destroy() {
	if a.dead {
		a.g.violation("%v acceleration structure destroyed twice", a.level)
		return
	}
	a.dead = true
	a.g.mu.Lock()
	delete(a.g.accels, a.addr)
	a.g.live["accel"]--
	a.g.mu.Unlock()
}

func (g *GPU) lookupAccel(addr uint64) *accel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accels[addr]
}

// build executes an acceleration structure build command.
func (a *accel) build(b *driver.AccelBuild, sizes driver.AccelSizes) {
	g := a.g
	if a.dead || a.buf.dead {
		g.violation("build into a destroyed %v acceleration structure", a.level)
		return
	}
	if a.size < sizes.AccelSize {
		g.violation("%v acceleration structure of %d bytes is smaller than the required %d", a.level, a.size, sizes.AccelSize)
		return
	}
	if b.ScratchAddr%uint64(g.limits.ScratchAlignment) != 0 {
		g.violation("scratch address %#x not aligned to %d", b.ScratchAddr, g.limits.ScratchAlignment)
	}
	if g.read(b.ScratchAddr, sizes.ScratchSize, "scratch buffer") == nil {
		return
	}

	switch a.level {
	case driver.BottomLevel:
		var tris []triangle
		for _, geo := range b.Triangles {
			t, ok := a.readTriangles(&geo, len(tris))
			if !ok {
				return
			}
			tris = append(tris, t...)
		}
		a.bvh = buildBVH(tris)
	case driver.TopLevel:
		raw := g.read(b.InstanceAddr, int64(b.InstanceCount)*driver.InstanceSize, "instance buffer")
		if raw == nil {
			return
		}
		a.insts = a.insts[:0]
		for i := 0; i < b.InstanceCount; i++ {
			in := driver.DecodeInstance(raw[i*driver.InstanceSize:])
			blas := g.lookupAccel(in.AccelAddr)
			if blas == nil || blas.level != driver.BottomLevel || !blas.built {
				g.violation("instance %d references %#x, which is not a built bottom level structure", i, in.AccelAddr)
				return
			}
			a.insts = append(a.insts, instance{in: in, blas: blas, toObject: invertAffine(in.Transform)})
		}
	}
	a.built = true
}

func (a *accel) readTriangles(geo *driver.AccelTriangles, base int) ([]triangle, bool) {
	g := a.g
	stride := geo.VertexStride
	if stride == 0 {
		stride = 12
	}
	vb := g.read(geo.VertexAddr, int64(geo.VertexCount)*stride, "vertex buffer")
	ib := g.read(geo.IndexAddr, int64(geo.TriangleCount)*12, "index buffer")
	if vb == nil || ib == nil {
		return nil, false
	}

	vertex := func(i uint32) vec3 {
		p := vb[int64(i)*stride:]
		return vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(p)),
			math.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[8:])),
		}
	}
	tris := make([]triangle, geo.TriangleCount)
	for t := range tris {
		tris[t].prim = base + t
		for k := 0; k < 3; k++ {
			idx := binary.LittleEndian.Uint32(ib[12*t+4*k:])
			if int(idx) >= geo.VertexCount {
				g.violation("triangle %d references vertex %d of %d", t, idx, geo.VertexCount)
				return nil, false
			}
			tris[t].v[k] = vertex(idx)
		}
	}
	return tris, true
}

// Hit is the closest intersection found by Trace.
type Hit struct {
	T         float32
	U, V      float32
	Primitive int
	Instance  int
	Normal    [3]float32
}

// Trace intersects a ray with a built acceleration structure created
// by a soft GPU. Top level structures honor instance transforms and
// masks; the returned normal is the unnormalized world space geometric
// normal of the hit triangle.
func Trace(as driver.AccelStruct, origin, dir [3]float32, tmin, tmax float32, mask uint8) (Hit, bool) {
	a, ok := as.(*accel)
	if !ok || !a.built {
		return Hit{}, false
	}
	return a.trace(vec3(origin), vec3(dir), tmin, tmax, mask)
}

func (a *accel) trace(o, d vec3, tmin, tmax float32, mask uint8) (Hit, bool) {
	if a.level == driver.BottomLevel {
		h, ok := a.bvh.intersect(o, d, tmin, tmax)
		if !ok {
			return Hit{}, false
		}
		tri := &a.bvh.tris[h.idx]
		n := tri.v[1].sub(tri.v[0]).cross(tri.v[2].sub(tri.v[0]))
		return Hit{T: h.t, U: h.u, V: h.v, Primitive: h.prim, Normal: n}, true
	}

	var best Hit
	found := false
	for i := range a.insts {
		inst := &a.insts[i]
		if inst.in.Mask&mask == 0 {
			continue
		}
		// The direction is not renormalized, so t is shared between
		// world and object space.
		lo := applyPoint(inst.toObject, o)
		ld := applyVector(inst.toObject, d)
		h, ok := inst.blas.trace(lo, ld, tmin, tmax, 0xff)
		if !ok {
			continue
		}
		h.Instance = i
		h.Normal = applyVector(inst.in.Transform, h.Normal)
		best, tmax, found = h, h.T, true
	}
	return best, found
}

func applyPoint(m [3][4]float32, p vec3) vec3 {
	var r vec3
	for i := 0; i < 3; i++ {
		r[i] = m[i][0]*p[0] + m[i][1]*p[1] + m[i][2]*p[2] + m[i][3]
	}
	return r
}

func applyVector(m [3][4]float32, v vec3) vec3 {
	var r vec3
	for i := 0; i < 3; i++ {
		r[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return r
}

// invertAffine inverts a 3x4 affine transform. Singular transforms
// yield the zero matrix, which makes the instance unhittable.
func invertAffine(m [3][4]float32) [3][4]float32 {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]
	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if det == 0 {
		return [3][4]float32{}
	}
	inv := 1 / det
	var r [3][4]float32
	r[0][0], r[0][1], r[0][2] = (e*i-f*h)*inv, (c*h-b*i)*inv, (b*f-c*e)*inv
	r[1][0], r[1][1], r[1][2] = (f*g-d*i)*inv, (a*i-c*g)*inv, (c*d-a*f)*inv
	r[2][0], r[2][1], r[2][2] = (d*h-e*g)*inv, (b*g-a*h)*inv, (a*e-b*d)*inv
	t := vec3{m[0][3], m[1][3], m[2][3]}
	for k := 0; k < 3; k++ {
		r[k][3] = -(r[k][0]*t[0] + r[k][1]*t[1] + r[k][2]*t[2])
	}
	return r
}
