package vkg

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/internal/suballoc"
)

// blockSize is the size of the device memory blocks resources are
// sub-allocated from. Larger resources get a block of their own.
const blockSize = 64 << 20

// memBlock is a device memory allocation shared by resources of the
// same memory type and tiling. Host visible blocks stay mapped.
type memBlock struct {
	mem    *DeviceMemory
	allocs *suballoc.Allocator
	linear bool
}

// memory sub-allocates buffers and images from blocks. Buffers and
// images never share a block, which keeps them apart by more than the
// buffer-image granularity.
type memory struct {
	dev   *Device
	pNext unsafe.Pointer

	mu     sync.Mutex
	blocks []*memBlock
	used   int64
}

func newMemory(dev *Device, pNext unsafe.Pointer) *memory {
	return &memory{dev: dev, pNext: pNext}
}

// allocation is a range of a memBlock.
type allocation struct {
	block *memBlock
	a     *suballoc.Allocation
}

func (a *allocation) offset() int64 { return int64(a.a.Offset) }

// bytes returns the mapped memory of a host visible allocation.
func (a *allocation) bytes() []byte {
	return a.block.mem.Bytes(int64(a.a.Offset), int64(a.a.Size))
}

func (m *memory) alloc(req vk.MemoryRequirements, props vk.MemoryPropertyFlagBits, linear bool) (*allocation, error) {
	typ, err := m.dev.PhysicalDevice.FindMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}
	size, align := uint64(req.Size), uint64(req.Alignment)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.mem.Type != typ || b.linear != linear {
			continue
		}
		if a := b.allocs.Allocate(size, align); a != nil {
			m.used += int64(a.Size)
			return &allocation{block: b, a: a}, nil
		}
	}

	bsize := suballoc.AlignUp(size, blockSize)
	var pNext unsafe.Pointer
	if linear {
		pNext = m.pNext
	}
	mem, err := m.dev.allocateType(int64(bsize), typ, pNext)
	if err != nil {
		return nil, fmt.Errorf("vkg: %d byte block: %w", bsize, err)
	}
	if props&vk.MemoryPropertyHostVisibleBit != 0 {
		if _, err := mem.Map(); err != nil {
			mem.Destroy()
			return nil, err
		}
	}
	b := &memBlock{mem: mem, allocs: suballoc.New(bsize), linear: linear}
	m.blocks = append(m.blocks, b)
	logger.Debugf("new memory block: type %d, %d bytes, linear %v", typ, bsize, linear)

	a := b.allocs.Allocate(size, align)
	m.used += int64(a.Size)
	return &allocation{block: b, a: a}, nil
}

// free releases a and the block holding it once the block is empty.
func (m *memory) free(a *allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !a.block.allocs.Free(a.a) {
		logger.Warningf("free of unknown allocation %v", a.a)
		return
	}
	m.used -= int64(a.a.Size)
	if a.block.allocs.Len() > 0 {
		return
	}
	for i, b := range m.blocks {
		if b == a.block {
			m.blocks = append(m.blocks[:i], m.blocks[i+1:]...)
			break
		}
	}
	a.block.mem.Destroy()
}

// Used returns the bytes of live allocations.
func (m *memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func (m *memory) destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.allocs.Len() > 0 {
			logger.Warningf("destroying memory block with %d live allocations", b.allocs.Len())
		}
		b.mem.Destroy()
	}
	m.blocks = nil
	m.used = 0
}
