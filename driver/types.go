package driver

import "fmt"

// Usage is a mask of buffer/image usages.
type Usage int

const (
	UCopySrc Usage = 1 << iota
	UCopyDst
	// UStorage allows shader writes (storage buffers and images).
	UStorage
	// USampled allows sampling an image through a sampler.
	USampled
	// UDeviceAddress allows taking the buffer's device address.
	UDeviceAddress
	// UAccelInput allows reading the buffer as acceleration
	// structure build input.
	UAccelInput
	// UAccelStorage allows storing acceleration structures.
	UAccelStorage
	// UShaderBinding allows use as a shader binding table.
	UShaderBinding
	// URenderTarget allows use as a presentation target.
	URenderTarget
)

// PixelFmt is a pixel format.
type PixelFmt int

const (
	FmtInvalid PixelFmt = iota
	RGBA32f
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
)

// Size returns the number of bytes of a single pixel.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA32f:
		return 16
	case RGBA8un, RGBA8sRGB, BGRA8un, BGRA8sRGB:
		return 4
	}
	return 0
}

// SRGB reports whether the format stores sRGB encoded color.
func (f PixelFmt) SRGB() bool { return f == RGBA8sRGB || f == BGRA8sRGB }

func (f PixelFmt) String() string {
	switch f {
	case RGBA32f:
		return "RGBA32f"
	case RGBA8un:
		return "RGBA8un"
	case RGBA8sRGB:
		return "RGBA8sRGB"
	case BGRA8un:
		return "BGRA8un"
	case BGRA8sRGB:
		return "BGRA8sRGB"
	}
	return fmt.Sprintf("PixelFmt(%d)", int(f))
}

// Layout is an image layout.
type Layout int

const (
	LUndefined Layout = iota
	LGeneral
	LTransferSrc
	LTransferDst
	LShaderRead
	LPresent
)

func (l Layout) String() string {
	return [...]string{"undefined", "general", "transfer-src", "transfer-dst", "shader-read", "present"}[l]
}

// Sync is a mask of pipeline stages.
type Sync int

const (
	SNone Sync = 0
	// STop is the start of the pipeline.
	STop Sync = 1 << iota
	STransfer
	SAccelBuild
	SRayTracing
	SFragment
	SColorOutput
	SHost
	SBottom
	SAll = STop | STransfer | SAccelBuild | SRayTracing | SFragment | SColorOutput | SHost | SBottom
)

// Access is a mask of memory accesses.
type Access int

const (
	ANone         Access = 0
	ATransferRead Access = 1 << iota
	ATransferWrite
	AAccelRead
	AAccelWrite
	AShaderRead
	AShaderWrite
	AColorWrite
	AHostRead
	AHostWrite
)

// Barrier is a memory dependency: accesses in AccessBefore made
// by stages in SyncBefore are made visible to accesses in
// AccessAfter made by stages in SyncAfter.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition is an image layout transition together with its
// memory dependency.
type Transition struct {
	Barrier
	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
}

// BufferCopy describes a buffer to buffer copy.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// AccelLevel is the level of an acceleration structure.
type AccelLevel int

const (
	BottomLevel AccelLevel = iota
	TopLevel
)

func (l AccelLevel) String() string {
	if l == TopLevel {
		return "top-level"
	}
	return "bottom-level"
}

// AccelTriangles is indexed triangle geometry read through device
// addresses. Vertices are three float32 positions; indices are
// uint32.
type AccelTriangles struct {
	VertexAddr    uint64
	VertexStride  int64
	VertexCount   int
	IndexAddr     uint64
	TriangleCount int
	Opaque        bool
}

// AccelBuild describes an acceleration structure build.
type AccelBuild struct {
	Level AccelLevel
	Dst   AccelStruct

	// ScratchAddr is the device address of a scratch buffer at
	// least AccelSizes.ScratchSize bytes long, aligned to
	// Limits.ScratchAlignment.
	ScratchAddr uint64

	// Triangles is the geometry of a bottom level build.
	Triangles []AccelTriangles

	// Instance records of a top level build. See Instance.
	InstanceAddr  uint64
	InstanceCount int
}

// AccelSizes is the result of GPU.AccelBuildSizes.
type AccelSizes struct {
	AccelSize   int64
	ScratchSize int64
}

// SBTRegion is a shader binding table region.
type SBTRegion struct {
	Addr   uint64
	Stride int64
	Size   int64
}

// SBT is the set of regions used by a TraceRays command.
type SBT struct {
	RayGen   SBTRegion
	Miss     SBTRegion
	Hit      SBTRegion
	Callable SBTRegion
}

// DescType is the type of a descriptor.
type DescType int

const (
	// DImage is a read-write storage image.
	DImage DescType = iota
	// DAccel is a top level acceleration structure.
	DAccel
	// DBuffer is a read-only storage buffer.
	DBuffer
	// DTexture is an image combined with a sampler.
	DTexture
)

// ShaderStage is a mask of shader stages.
type ShaderStage int

const (
	StageRayGen ShaderStage = 1 << iota
	StageMiss
	StageClosestHit
	StageFragment
)

// Descriptor declares one binding of a descriptor set.
type Descriptor struct {
	Type    DescType
	Stages  ShaderStage
	Binding int
}

// Stage is a shader entry point.
type Stage struct {
	Code ShaderCode
	Name string
}

// RTPipelineDesc describes a ray tracing pipeline with a single
// descriptor set and a push constant range visible to all ray
// tracing stages.
type RTPipelineDesc struct {
	Bindings []Descriptor
	PushSize int

	// One group per stage, ordered RayGen, Miss, Hit.
	RayGen Stage
	Miss   []Stage
	Hit    []Stage

	MaxRecursion int
}

// Limits are the implementation limits relevant to the renderer.
type Limits struct {
	ShaderGroupHandleSize      int
	ShaderGroupHandleAlignment int
	ShaderGroupBaseAlignment   int
	MaxRecursion               int
	ScratchAlignment           int
	MaxImageDim                int
	MaxPushSize                int
}

// Features reports optional capabilities.
type Features struct {
	RayTracing          bool
	AccelStruct         bool
	BufferDeviceAddress bool
	StorageRGBA32f      bool
	BlitToRGBA8sRGB     bool
	Present             bool
}

// DeviceInfo describes a device.
type DeviceInfo struct {
	Index        int
	Name         string
	Type         string
	Driver       string
	APIVersion   string
	DeviceMemory int64
	HostMemory   int64
	RayTracing   bool
}
