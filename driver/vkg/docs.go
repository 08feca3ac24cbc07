/*
Package vkg implements the Vulkan driver. It wraps the subset of Vulkan the
renderer needs in small objects that expose their native handles through
fields prefixed with 'VK', so callers are never limited by what the
package wraps.

The vulkan-go bindings cover core Vulkan 1.0. Ray tracing needs
VK_KHR_acceleration_structure, VK_KHR_ray_tracing_pipeline and the Vulkan
1.2 buffer device address, which the package loads itself through
vkGetDeviceProcAddr and calls from a small cgo layer. Building requires
Vulkan headers from SDK 1.2.162 or later.

Native Vulkan terms

	Instance 	the vulkan runtime instance
	PhysicalDevice	the physical hardware device
	Device		a logical device, the target of most of the vulkan apis
	Queue 		a queue which work (command buffers) may be submitted to
	DeviceMemory	an allocation of memory on the host or device
	Buffer		a linear array of data, addressable from shaders by device address
	Image		a 2D image, with an ImageView when shaders access it
	AccelStruct	a bottom or top level acceleration structure
	RTPipeline	the ray generation, miss and hit shaders with their layout
	DescriptorSet 	a binding of resources for use by shaders
	Swapchain	a grouping of images which are presented to a window

# About this package

The driver opens a single queue that supports graphics and compute work,
records every command on it and presents from it. Device memory is
sub-allocated from 64 MiB blocks; buffers and images never share a block.
Descriptor sets are allocated from pools that grow on demand.

Presentation requires a driver.Surface that also implements WindowSurface,
which the windowing layer provides.
*/
package vkg
