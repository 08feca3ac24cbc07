package vkg

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Device is a logical device with the ray tracing entry points loaded.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device

	rt *rtProcs
}

func (d *Device) Destroy() {
	if d.rt != nil {
		d.rt.destroy()
		d.rt = nil
	}
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(d.VKDevice))
}

func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)
	return &Queue{QueueFamily: qf, Device: d, VKQueue: vkq}
}

// Allocate allocates sizeInBytes of a memory type matching
// memoryTypeBits and memoryProperties. pNext is chained to the
// allocate info.
func (d *Device) Allocate(sizeInBytes int64, memoryTypeBits uint32, memoryProperties vk.MemoryPropertyFlagBits, pNext unsafe.Pointer) (*DeviceMemory, error) {
	typ, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}
	return d.allocateType(sizeInBytes, typ, pNext)
}

func (d *Device) allocateType(sizeInBytes int64, typ uint32, pNext unsafe.Pointer) (*DeviceMemory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           pNext,
		AllocationSize:  vk.DeviceSize(sizeInBytes),
		MemoryTypeIndex: typ,
	}
	var deviceMemory vk.DeviceMemory
	err := checkResult(vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &deviceMemory))
	if err != nil {
		return nil, err
	}
	return &DeviceMemory{Device: d, VKDeviceMemory: deviceMemory, Size: sizeInBytes, Type: typ}, nil
}
