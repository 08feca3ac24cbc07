// Package suballoc places aligned ranges inside a fixed size block.
// Device memory pools use it to share one allocation between many
// buffers and images.
package suballoc

import (
	"fmt"
	"sort"
)

// Allocation is a range of a block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// End returns the first offset after the allocation.
func (a *Allocation) End() uint64 { return a.Offset + a.Size }

// Allocator is a first fit allocator. Live allocations are kept sorted
// by offset. It is not safe for concurrent use.
type Allocator struct {
	size   uint64
	used   uint64
	allocs []*Allocation
}

// New returns an allocator for a block of size bytes.
func New(size uint64) *Allocator {
	return &Allocator{size: size}
}

// AlignUp rounds a up to a multiple of align. Zero or one leave a as is.
func AlignUp(a, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	if m := a % align; m != 0 {
		a += align - m
	}
	return a
}

// Size returns the size of the block.
func (p *Allocator) Size() uint64 { return p.size }

// Used returns the bytes held by live allocations.
func (p *Allocator) Used() uint64 { return p.used }

// Len returns the number of live allocations.
func (p *Allocator) Len() int { return len(p.allocs) }

// Allocate returns the lowest aligned range of size bytes that does not
// overlap a live allocation, or nil if there is none.
func (p *Allocator) Allocate(size, align uint64) *Allocation {
	if size == 0 || size > p.size {
		return nil
	}
	prev := uint64(0)
	for i, a := range p.allocs {
		off := AlignUp(prev, align)
		if off+size <= a.Offset {
			return p.insert(i, off, size)
		}
		prev = a.End()
	}
	off := AlignUp(prev, align)
	if off+size > p.size {
		return nil
	}
	return p.insert(len(p.allocs), off, size)
}

func (p *Allocator) insert(i int, off, size uint64) *Allocation {
	na := &Allocation{Offset: off, Size: size}
	p.allocs = append(p.allocs, nil)
	copy(p.allocs[i+1:], p.allocs[i:])
	p.allocs[i] = na
	p.used += size
	return na
}

// Free releases fa. Freeing an allocation twice, or one that came from
// another allocator, reports false.
func (p *Allocator) Free(fa *Allocation) bool {
	i := sort.Search(len(p.allocs), func(i int) bool { return p.allocs[i].Offset >= fa.Offset })
	if i == len(p.allocs) || p.allocs[i] != fa {
		return false
	}
	p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
	p.used -= fa.Size
	return true
}

func (p *Allocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
