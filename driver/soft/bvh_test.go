package soft

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridTriangles returns random triangles, one per cell of an n x n grid
// centered on the z axis in the plane z = depth, so that no two of them
// overlap.
func gridTriangles(rng *rand.Rand, n int, depth float32) []triangle {
	var tris []triangle
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pt := func() vec3 {
				return vec3{float32(i-n/2) + 0.05 + 0.9*rng.Float32(), float32(j-n/2) + 0.05 + 0.9*rng.Float32(), depth}
			}
			tris = append(tris, triangle{v: [3]vec3{pt(), pt(), pt()}, prim: len(tris)})
		}
	}
	return tris
}

// barycentric64 solves p = a + u(b-a) + v(c-a) in float64 for a point
// in the plane of the triangle.
func barycentric64(tri *triangle, p [3]float64) (u, v float64) {
	var a, b, c [3]float64
	for k := 0; k < 3; k++ {
		a[k], b[k], c[k] = float64(tri.v[0][k]), float64(tri.v[1][k]), float64(tri.v[2][k])
	}
	e1 := [2]float64{b[0] - a[0], b[1] - a[1]}
	e2 := [2]float64{c[0] - a[0], c[1] - a[1]}
	d := [2]float64{p[0] - a[0], p[1] - a[1]}
	det := e1[0]*e2[1] - e1[1]*e2[0]
	u = (d[0]*e2[1] - d[1]*e2[0]) / det
	v = (e1[0]*d[1] - e1[1]*d[0]) / det
	return u, v
}

func TestMollerTrumboreBarycentrics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tris := gridTriangles(rng, 12, -1)
	checked := 0
	for i := range tris {
		tri := &tris[i]
		// Skip slivers, whose barycentrics are ill conditioned.
		area := tri.v[1].sub(tri.v[0]).cross(tri.v[2].sub(tri.v[0])).length() / 2
		if area < 0.08 {
			continue
		}
		for k := 0; k < 32; k++ {
			// Random point inside the triangle.
			u, v := rng.Float64(), rng.Float64()
			if u+v > 1 {
				u, v = 1-u, 1-v
			}
			var p [3]float64
			for c := 0; c < 3; c++ {
				a := float64(tri.v[0][c])
				p[c] = a + u*(float64(tri.v[1][c])-a) + v*(float64(tri.v[2][c])-a)
			}
			o := vec3{float32(p[0]) + 0.3, float32(p[1]) - 0.2, 0}
			d := vec3{float32(p[0]), float32(p[1]), float32(p[2])}.sub(o)

			ht, hu, hv, ok := intersectTriangle(o, d, tri)
			if !ok {
				// Points on an edge may be rounded outside.
				continue
			}
			hit := [3]float64{
				float64(o[0]) + float64(ht)*float64(d[0]),
				float64(o[1]) + float64(ht)*float64(d[1]),
				float64(o[2]) + float64(ht)*float64(d[2]),
			}
			ru, rv := barycentric64(tri, hit)
			assert.InDelta(t, ru, float64(hu), 1e-5, "triangle %d", i)
			assert.InDelta(t, rv, float64(hv), 1e-5, "triangle %d", i)
			assert.InDelta(t, 1, float64(ht), 1e-4)
			checked++
		}
	}
	assert.Greater(t, checked, 300)
}

func TestIntersectTriangleMisses(t *testing.T) {
	tri := &triangle{v: [3]vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}

	_, _, _, ok := intersectTriangle(vec3{2, 2, 1}, vec3{0, 0, -1}, tri)
	assert.False(t, ok, "outside")

	_, _, _, ok = intersectTriangle(vec3{0.2, 0.2, 1}, vec3{1, 0, 0}, tri)
	assert.False(t, ok, "parallel")

	// Two sided: hit from below.
	tt, _, _, ok := intersectTriangle(vec3{0.2, 0.2, -1}, vec3{0, 0, 1}, tri)
	assert.True(t, ok)
	assert.InDelta(t, 1, tt, 1e-6)
}

func TestBVHMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var tris []triangle
	for layer := 0; layer < 4; layer++ {
		tris = append(tris, gridTriangles(rng, 10, -float32(layer))...)
	}
	for i := range tris {
		tris[i].prim = i
	}
	ref := append([]triangle(nil), tris...)
	b := buildBVH(tris)

	for _, n := range b.nodes {
		if n.leaf {
			assert.LessOrEqual(t, n.count, maxLeafTriangles)
		}
	}

	for k := 0; k < 500; k++ {
		o := vec3{10*rng.Float32() - 5, 10*rng.Float32() - 5, 5}
		d := vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, -1}.normalize()

		best := float32(math.Inf(1))
		prim := -1
		for i := range ref {
			if tt, _, _, ok := intersectTriangle(o, d, &ref[i]); ok && tt > 0 && tt < best {
				best, prim = tt, ref[i].prim
			}
		}

		h, ok := b.intersect(o, d, 0, float32(math.Inf(1)))
		require.Equal(t, prim >= 0, ok, "ray %d", k)
		if ok {
			assert.Equal(t, prim, h.prim, "ray %d", k)
			assert.InDelta(t, best, h.t, 1e-5)
		}
	}
}

func TestInvertAffine(t *testing.T) {
	m := [3][4]float32{
		{0, -2, 0, 1},
		{2, 0, 0, -3},
		{0, 0, 0.5, 4},
	}
	inv := invertAffine(m)
	p := vec3{0.5, -1.25, 3}
	back := applyPoint(inv, applyPoint(m, p))
	for k := range p {
		assert.InDelta(t, p[k], back[k], 1e-5)
	}
	assert.Equal(t, [3][4]float32{}, invertAffine([3][4]float32{}))
}
