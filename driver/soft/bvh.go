package soft

import (
	"sort"

	"github.com/chewxy/math32"
)

type vec3 [3]float32

func (a vec3) add(b vec3) vec3    { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3    { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) mul(s float32) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }
func (a vec3) dot(b vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a vec3) length() float32    { return math32.Sqrt(a.dot(a)) }
func (a vec3) normalize() vec3    { return a.mul(1 / a.length()) }
func (a vec3) min(b vec3) vec3 {
	return vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])}
}
func (a vec3) max(b vec3) vec3 {
	return vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])}
}
func (a vec3) cross(b vec3) vec3 {
	return vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

// triangle is a triangle in object space with its primitive index.
type triangle struct {
	v    [3]vec3
	prim int
}

func (t *triangle) centroid() vec3 { return t.v[0].add(t.v[1]).add(t.v[2]).mul(1.0 / 3) }

// intersectTriangle is the Moller-Trumbore ray/triangle test. It is
// two sided and returns the ray parameter and the barycentric weights
// of the second and third vertices.
func intersectTriangle(o, d vec3, tri *triangle) (t, u, v float32, ok bool) {
	e1 := tri.v[1].sub(tri.v[0])
	e2 := tri.v[2].sub(tri.v[0])
	p := d.cross(e2)
	det := e1.dot(p)
	if math32.Abs(det) < 1e-12 {
		return 0, 0, 0, false
	}
	inv := 1 / det
	s := o.sub(tri.v[0])
	u = s.dot(p) * inv
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.cross(e1)
	v = d.dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	return e2.dot(q) * inv, u, v, true
}

// bvhNode is a node of a flattened BVH. Interior nodes store their
// left child right after themselves and the right child at
// secondChild; leaves reference count triangles starting at first.
type bvhNode struct {
	min, max    vec3
	leaf        bool
	first       int
	count       int
	secondChild int
}

type bvh struct {
	nodes []bvhNode
	tris  []triangle
}

const maxLeafTriangles = 4

// buildBVH splits triangles at the centroid median of the widest
// axis until leaves hold at most maxLeafTriangles.
func buildBVH(tris []triangle) *bvh {
	b := &bvh{tris: tris, nodes: make([]bvhNode, 0, 2*len(tris)/maxLeafTriangles+1)}
	if len(tris) > 0 {
		b.build(0, len(tris))
	}
	return b
}

func (b *bvh) build(first, end int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, bvhNode{})

	lo, hi := b.tris[first].v[0], b.tris[first].v[0]
	clo, chi := b.tris[first].centroid(), b.tris[first].centroid()
	for i := first; i < end; i++ {
		for _, p := range b.tris[i].v {
			lo, hi = lo.min(p), hi.max(p)
		}
		c := b.tris[i].centroid()
		clo, chi = clo.min(c), chi.max(c)
	}

	n := &b.nodes[idx]
	n.min, n.max = lo, hi
	if end-first <= maxLeafTriangles {
		n.leaf, n.first, n.count = true, first, end-first
		return idx
	}

	ext := chi.sub(clo)
	axis := 0
	if ext[1] > ext[axis] {
		axis = 1
	}
	if ext[2] > ext[axis] {
		axis = 2
	}
	span := b.tris[first:end]
	sort.SliceStable(span, func(i, j int) bool {
		return span[i].centroid()[axis] < span[j].centroid()[axis]
	})
	mid := first + (end-first)/2

	b.build(first, mid)
	second := b.build(mid, end)
	b.nodes[idx].secondChild = second
	return idx
}

// slab returns whether the ray enters the box before tmax.
func (n *bvhNode) slab(o, invDir vec3, tmin, tmax float32) bool {
	for k := 0; k < 3; k++ {
		t1 := (n.min[k] - o[k]) * invDir[k]
		t2 := (n.max[k] - o[k]) * invDir[k]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		// NaN from 0*Inf leaves the bounds untouched.
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}

type bvhHit struct {
	t, u, v float32
	prim    int
	idx     int
}

// intersect returns the closest hit with t in [tmin, tmax].
func (b *bvh) intersect(o, d vec3, tmin, tmax float32) (bvhHit, bool) {
	var best bvhHit
	found := false
	if len(b.nodes) == 0 {
		return best, false
	}
	inv := vec3{1 / d[0], 1 / d[1], 1 / d[2]}

	var stack [64]int
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		ni := stack[sp]
		n := &b.nodes[ni]
		if !n.slab(o, inv, tmin, tmax) {
			continue
		}
		if n.leaf {
			for i := n.first; i < n.first+n.count; i++ {
				t, u, v, ok := intersectTriangle(o, d, &b.tris[i])
				if ok && t >= tmin && t <= tmax {
					best = bvhHit{t: t, u: u, v: v, prim: b.tris[i].prim, idx: i}
					tmax = t
					found = true
				}
			}
			continue
		}
		stack[sp] = n.secondChild
		stack[sp+1] = ni + 1
		sp += 2
	}
	return best, found
}
