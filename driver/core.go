package driver

import "time"

// GPU is the main interface to an opened device.
// It creates every other driver object and executes command
// buffers on a single queue that supports compute, transfer and
// ray tracing work. Presentation goes through Swapchain.
type GPU interface {
	Destroyer

	// Driver returns the Driver that opened the GPU.
	Driver() Driver

	// Info describes the underlying device.
	Info() DeviceInfo

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits

	// Features reports which optional features are usable.
	Features() Features

	// Submit commits command buffers for execution in order.
	// Command buffers in s cannot be recorded again until
	// s.Fence (if any) signals.
	Submit(s *Submission) error

	// WaitIdle blocks until every submitted command completed.
	WaitIdle() error

	NewCmdBuffer() (CmdBuffer, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)

	// NewBuffer creates a buffer. Visible buffers are host
	// mapped for their whole lifetime.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a 2D image in the LUndefined layout.
	NewImage(pf PixelFmt, width, height int, usg Usage) (Image, error)

	NewSampler(nearest bool) (Sampler, error)

	// AccelBuildSizes returns the storage and scratch sizes an
	// acceleration structure build described by b requires.
	// Only the level, geometry counts and instance count of b
	// are read.
	AccelBuildSizes(b *AccelBuild) (AccelSizes, error)

	// NewAccelStruct creates an acceleration structure stored
	// in buf at offset off. The buffer must have been created
	// with UAccelStorage.
	NewAccelStruct(level AccelLevel, buf Buffer, off, size int64) (AccelStruct, error)

	// NewShaderCode creates shader code from backend specific
	// data (SPIR-V for Vulkan).
	NewShaderCode(data []byte) (ShaderCode, error)

	NewRTPipeline(desc *RTPipelineDesc) (RTPipeline, error)

	// NewDescSet creates a descriptor set with the given
	// bindings. Sets are never shared between pipelines that
	// do not declare identical bindings.
	NewDescSet(bindings []Descriptor) (DescSet, error)

	// NewSwapchain creates a swapchain for sf with at least
	// imageCount images, sized to the surface's current extent.
	NewSwapchain(sf Surface, imageCount int) (Swapchain, error)
}

// Destroyer is the interface that wraps the Destroy method.
// Driver objects may hold memory not managed by GC, so Destroy
// must be called explicitly.
type Destroyer interface {
	Destroy()
}

// CmdBuffer records commands for later submission.
// Begin must be called before recording and End after it.
// Recording is only valid while no previous submission of the
// command buffer is executing.
type CmdBuffer interface {
	Destroyer

	// Begin resets the command buffer and prepares it for
	// recording.
	Begin() error

	// End finishes recording.
	End() error

	// Barrier records global memory dependencies.
	Barrier(b []Barrier)

	// Transition records image layout transitions.
	Transition(t []Transition)

	CopyBuffer(p *BufferCopy)

	// CopyImageToBuffer copies the whole of src, which must be
	// in the LTransferSrc layout, tightly packed into dst at
	// offset off.
	CopyImageToBuffer(dst Buffer, off int64, src Image)

	// BlitImage copies src (LTransferSrc) into dst (LTransferDst)
	// converting formats and scaling to the destination extent.
	BlitImage(dst, src Image, nearest bool)

	// ClearImage fills img, which must be in the LGeneral or
	// LTransferDst layout, with color.
	ClearImage(img Image, color [4]float32)

	BuildAccel(b *AccelBuild)

	SetRTPipeline(pl RTPipeline)
	SetDescSet(pl RTPipeline, set DescSet)
	PushConstants(pl RTPipeline, data []byte)

	// TraceRays dispatches width x height x depth ray
	// generation invocations using the bound pipeline.
	TraceRays(sbt *SBT, width, height, depth int)
}

// Submission is a batch of command buffers for GPU.Submit.
type Submission struct {
	Cmds []CmdBuffer

	// Wait semaphores and the stages that wait on each.
	Wait     []Semaphore
	WaitSync []Sync

	Signal []Semaphore

	// Fence signals when every command buffer completed.
	Fence Fence
}

// Fence is a CPU-observable completion signal.
type Fence interface {
	Destroyer

	// Wait blocks until the fence signals or timeout expires,
	// in which case it returns ErrTimeout.
	Wait(timeout time.Duration) error

	Signaled() (bool, error)
	Reset() error
}

// Semaphore orders submissions on the GPU.
type Semaphore interface {
	Destroyer
}

// Buffer is a linear array of device memory.
type Buffer interface {
	Destroyer

	Size() int64
	Visible() bool

	// Bytes returns the mapped memory of a visible buffer.
	// It returns nil for buffers that are not host visible.
	Bytes() []byte

	// Addr returns the device address of the buffer, or zero
	// if it was not created with UDeviceAddress.
	Addr() uint64
}

// Image is a 2D image with a single mip level and layer.
type Image interface {
	Destroyer

	Format() PixelFmt
	Extent() (width, height int)
}

// Sampler describes how images are sampled.
type Sampler interface {
	Destroyer
}

// AccelStruct is an acceleration structure.
type AccelStruct interface {
	Destroyer

	Level() AccelLevel

	// Addr returns the device address referenced by instance
	// records of a top level structure.
	Addr() uint64
}

// ShaderCode is a compiled shader module.
type ShaderCode interface {
	Destroyer
}

// RTPipeline is a ray tracing pipeline.
type RTPipeline interface {
	Destroyer

	// GroupCount returns the number of shader groups, ordered
	// ray generation, miss, hit.
	GroupCount() int

	// GroupHandles returns the opaque handles of every group,
	// each Limits().ShaderGroupHandleSize bytes long.
	GroupHandles() ([]byte, error)
}

// DescSet binds resources to shader bindings.
type DescSet interface {
	Destroyer

	SetImage(binding int, img Image)
	SetAccel(binding int, as AccelStruct)
	SetBuffer(binding int, buf Buffer, off, size int64)
	SetTexture(binding int, img Image, splr Sampler)
}

// Swapchain is a set of presentable images for a Surface.
type Swapchain interface {
	Destroyer

	Images() []Image
	Format() PixelFmt
	Extent() (width, height int)

	// Next acquires the next writable image, signaling acquired
	// once it can be written. It returns ErrSwapchain when the
	// swapchain must be recreated.
	Next(acquired Semaphore) (int, error)

	// Present queues image index for presentation once wait is
	// signaled. It returns ErrSwapchain when the swapchain must
	// be recreated.
	Present(index int, wait Semaphore) error
}

// Surface is a presentable window provided by the windowing layer.
// Backends define extended interfaces for creating their native
// surface objects.
type Surface interface {
	// Extent returns the current framebuffer size in pixels.
	Extent() (width, height int)
}
