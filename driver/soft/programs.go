package soft

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/shaders"
)

// program is a Go rendition of one of the GLSL programs in package
// shaders. Exactly one of the functions is set, matching kind.
type program struct {
	kind   driver.ShaderStage
	raygen func(l *launch, x, y int)
	miss   func(l *launch) vec3
	hit    func(l *launch, h *Hit, dir vec3, objectToWorld [3][4]float32) vec3
}

var programs = map[string]*program{
	shaders.RayGen:     {kind: driver.StageRayGen, raygen: rayGen},
	shaders.Miss:       {kind: driver.StageMiss, miss: miss},
	shaders.ClosestHit: {kind: driver.StageClosestHit, hit: closestHit},
}

// launch is the state shared by the invocations of one TraceRays.
type launch struct {
	g      *GPU
	push   shaders.Push
	target *image
	tlas   *accel
	verts  []byte
	idx    []byte
	w, h   int

	missGroup *group
	hitGroups []*group // per TLAS instance
}

func (es *execState) traceRays(sbt *driver.SBT, w, h, d int) {
	g := es.g
	pl, ds := es.pipeline, es.set
	switch {
	case pl == nil:
		g.violation("TraceRays without a bound pipeline")
		return
	case ds == nil:
		g.violation("TraceRays without a bound descriptor set")
		return
	case d != 1 || w <= 0 || h <= 0:
		g.violation("TraceRays with launch size %dx%dx%d", w, h, d)
		return
	}
	if !g.checkSBT(sbt) {
		return
	}
	push, err := shaders.DecodePush(es.push)
	if err != nil {
		g.violation("TraceRays: %v", err)
		return
	}

	l := &launch{g: g, push: push, w: w, h: h}
	l.target = ds.images[0]
	l.tlas = ds.accels[1]
	if l.target == nil || l.tlas == nil {
		g.violation("TraceRays with unwritten descriptors")
		return
	}
	l.target.expect("TraceRays storage image", driver.LGeneral)
	if l.target.pf != driver.RGBA32f || l.target.w < w || l.target.h < h {
		g.violation("TraceRays target is %v %dx%d, launch is %dx%d", l.target.pf, l.target.w, l.target.h, w, h)
		return
	}
	if !l.tlas.built || l.tlas.level != driver.TopLevel {
		g.violation("TraceRays with a top level structure that was never built")
		return
	}
	if es.pendAS[l.tlas] {
		g.violation("TraceRays reads a top level structure without waiting for its build")
	}
	for binding, dst := range map[int]*[]byte{2: &l.verts, 3: &l.idx} {
		r, ok := ds.buffers[binding]
		if !ok || r.buf.dead {
			g.violation("TraceRays with storage buffer %d unbound", binding)
			return
		}
		*dst = r.buf.data[r.off : r.off+r.size]
	}

	raygen := pl.groupAt(sbt.RayGen.Addr, driver.StageRayGen, "ray generation")
	l.missGroup = pl.groupAt(sbt.Miss.Addr, driver.StageMiss, "miss")
	if raygen == nil || l.missGroup == nil {
		return
	}
	for i := range l.tlas.insts {
		addr := sbt.Hit.Addr + uint64(sbt.Hit.Stride)*uint64(l.tlas.insts[i].in.SBTOffset)
		hg := pl.groupAt(addr, driver.StageClosestHit, "hit")
		if hg == nil {
			return
		}
		l.hitGroups = append(l.hitGroups, hg)
	}

	// Rows are split in bands; every invocation writes its own pixel.
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Workers)
	band := (h + g.cfg.Workers - 1) / g.cfg.Workers
	for y0 := 0; y0 < h; y0 += band {
		y0, y1 := y0, y0+band
		if y1 > h {
			y1 = h
		}
		eg.Go(func() error {
			for y := y0; y < y1; y++ {
				for x := 0; x < w; x++ {
					raygen.prog.raygen(l, x, y)
				}
			}
			return nil
		})
	}
	eg.Wait()
}

// checkSBT validates the regions of a TraceRays call against the
// alignment rules of the device.
func (g *GPU) checkSBT(sbt *driver.SBT) bool {
	base := uint64(g.limits.ShaderGroupBaseAlignment)
	ha := int64(g.limits.ShaderGroupHandleAlignment)
	ok := true
	for _, r := range []struct {
		name string
		reg  driver.SBTRegion
	}{{"ray generation", sbt.RayGen}, {"miss", sbt.Miss}, {"hit", sbt.Hit}} {
		switch {
		case r.reg.Addr == 0 || r.reg.Size == 0:
			g.violation("%s region is empty", r.name)
			ok = false
		case r.reg.Addr%base != 0:
			g.violation("%s region address %#x not aligned to %d", r.name, r.reg.Addr, base)
			ok = false
		case r.reg.Stride%ha != 0:
			g.violation("%s region stride %d not aligned to %d", r.name, r.reg.Stride, ha)
			ok = false
		}
	}
	if sbt.RayGen.Size != sbt.RayGen.Stride {
		g.violation("ray generation region size %d differs from its stride %d", sbt.RayGen.Size, sbt.RayGen.Stride)
		ok = false
	}
	if sbt.Callable.Size != 0 {
		g.violation("callable region is not supported")
		ok = false
	}
	return ok
}

// traceRay mirrors traceRayEXT with an opaque ray and the miss and hit
// groups at record offset zero.
func (l *launch) traceRay(o, d vec3, tmin, tmax float32) vec3 {
	h, ok := l.tlas.trace(o, d, tmin, tmax, 0xff)
	if !ok {
		return l.missGroup.prog.miss(l)
	}
	inst := &l.tlas.insts[h.Instance]
	return l.hitGroups[h.Instance].prog.hit(l, &h, d, inst.in.Transform)
}

func rnd(state *uint32) float32 {
	*state = shaders.PCG(*state)
	return float32(*state>>8) * (1.0 / 16777216.0)
}

func xyz(v [4]float32) vec3 { return vec3{v[0], v[1], v[2]} }

func rayGen(l *launch, x, y int) {
	p := &l.push
	var sum vec3
	u := xyz(p.Horizontal).normalize()
	v := xyz(p.Vertical).normalize()

	for s := uint32(0); s < p.SampleCount; s++ {
		state := shaders.PCG(uint32(y)*uint32(l.w)+uint32(x)) ^ shaders.PCG(p.SampleStart+s) ^ p.Seed
		jx, jy := rnd(&state), rnd(&state)
		ux := (float32(x) + jx) / float32(l.w)
		uy := (float32(y) + jy) / float32(l.h)

		var lx, ly float32
		if p.Origin[3] > 0 {
			r := p.Origin[3] * math32.Sqrt(rnd(&state))
			phi := 2 * math32.Pi * rnd(&state)
			lx, ly = r*math32.Cos(phi), r*math32.Sin(phi)
		}
		origin := xyz(p.Origin).add(u.mul(lx)).add(v.mul(ly))
		target := xyz(p.LowerLeft).add(xyz(p.Horizontal).mul(ux)).add(xyz(p.Vertical).mul(1 - uy))
		dir := target.sub(origin).normalize()

		sum = sum.add(l.traceRay(origin, dir, 1e-4, 1e30))
	}

	var prev [4]float32
	if p.SampleStart != 0 {
		prev = l.target.pixel(x, y)
	}
	n, m := float32(p.SampleStart), float32(p.SampleCount)
	var c [4]float32
	for k := 0; k < 3; k++ {
		c[k] = (prev[k]*n + sum[k]) / (n + m)
	}
	c[3] = 1
	l.target.setPixel(x, y, c)
}

func miss(l *launch) vec3 { return xyz(l.push.Background) }

func closestHit(l *launch, h *Hit, dir vec3, objectToWorld [3][4]float32) vec3 {
	position := func(i uint32) vec3 {
		var p vec3
		for k := range p {
			off := 4 * (3*int(i) + k)
			if off+4 > len(l.verts) {
				return vec3{}
			}
			p[k] = math.Float32frombits(binary.LittleEndian.Uint32(l.verts[off:]))
		}
		return p
	}
	index := func(k int) uint32 {
		off := 4 * (3*h.Primitive + k)
		if off+4 > len(l.idx) {
			return 0
		}
		return binary.LittleEndian.Uint32(l.idx[off:])
	}
	a, b, c := position(index(0)), position(index(1)), position(index(2))
	n := applyVector(objectToWorld, b.sub(a).cross(c.sub(a))).normalize()

	bary := vec3{1 - h.U - h.V, h.U, h.V}
	albedo := vec3{0.9, 0.9, 0.9}.mul(0.75).add(bary.mul(0.25))
	light := 0.2 + 0.8*math32.Abs(n.dot(dir))
	return albedo.mul(light)
}
