package vkg

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Buffer implements driver.Buffer. Its memory is sub-allocated from the
// GPU's memory blocks; host visible buffers stay mapped.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer

	mem     *memory
	alloc   *allocation
	size    int64
	visible bool
	addr    uint64
	data    []byte
}

func bufferUsage(usg driver.Usage) (flags vk.BufferUsageFlags, address bool) {
	if usg&driver.UCopySrc != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usg&driver.UCopyDst != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usg&driver.UStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usg&driver.UAccelInput != 0 {
		flags |= usageAccelInput
		address = true
	}
	if usg&driver.UAccelStorage != 0 {
		flags |= usageAccelStorage
		address = true
	}
	if usg&driver.UShaderBinding != 0 {
		flags |= usageSBT
		address = true
	}
	if usg&driver.UDeviceAddress != 0 {
		address = true
	}
	if address {
		flags |= usageDeviceAddress
	}
	return flags, address
}

// CreateBuffer creates a buffer and binds it to memory with props.
func (d *Device) CreateBuffer(mem *memory, size int64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlagBits) (*Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := checkResult(vk.CreateBuffer(d.VKDevice, &bufferCreateInfo, nil, &buffer)); err != nil {
		return nil, err
	}
	b := &Buffer{Device: d, VKBuffer: buffer, mem: mem, size: size}

	req := b.VKMemoryRequirements()
	alloc, err := mem.alloc(req, props, true)
	if err != nil {
		vk.DestroyBuffer(d.VKDevice, buffer, nil)
		return nil, err
	}
	b.alloc = alloc
	if err := b.Bind(alloc.block.mem, alloc.offset()); err != nil {
		b.Destroy()
		return nil, err
	}
	if props&vk.MemoryPropertyHostVisibleBit != 0 {
		b.visible = true
		b.data = alloc.bytes()[:size]
	}
	return b, nil
}

func (b *Buffer) VKMemoryRequirements() vk.MemoryRequirements {
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &memoryRequirements)
	memoryRequirements.Deref()
	return memoryRequirements
}

// DSInfo describes size bytes of the buffer from offset for a
// descriptor write.
func (b *Buffer) DSInfo(offset, size int64) vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(size),
	}
}

func (b *Buffer) Bind(memory *DeviceMemory, offset int64) error {
	return checkResult(vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, memory.VKDeviceMemory, vk.DeviceSize(offset)))
}

// Size implements driver.Buffer.
func (b *Buffer) Size() int64 { return b.size }

// Visible implements driver.Buffer.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes implements driver.Buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Addr implements driver.Buffer.
func (b *Buffer) Addr() uint64 { return b.addr }

// Destroy implements driver.Destroyer.
func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
	if b.alloc != nil {
		b.mem.free(b.alloc)
		b.alloc = nil
	}
	b.data = nil
}
