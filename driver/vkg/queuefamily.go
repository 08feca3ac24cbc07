package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// renderQueueFlags are the capabilities of the single queue the driver
// submits to: blits need graphics, acceleration builds and ray dispatch
// need compute.
const renderQueueFlags = vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)

type QueueFamilySlice []*QueueFamily

// Render returns the first family able to record every command the
// renderer issues and, when surface is not nil, present to it.
func (ql QueueFamilySlice) Render(surface vk.Surface) *QueueFamily {
	for _, q := range ql {
		if !q.Has(renderQueueFlags) || q.VKQueueFamilyProperties.QueueCount == 0 {
			continue
		}
		if surface != nil && !q.SupportsPresent(surface) {
			continue
		}
		return q
	}
	return nil
}

type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

// Has reports whether the family supports every capability in flags.
func (q *QueueFamily) Has(flags vk.QueueFlags) bool {
	return q.VKQueueFamilyProperties.QueueFlags&flags == flags
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supportsPresent vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supportsPresent)
	return supportsPresent == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Flags: %#x Queues: %d }", q.Index,
		q.VKQueueFamilyProperties.QueueFlags, q.VKQueueFamilyProperties.QueueCount)
}
