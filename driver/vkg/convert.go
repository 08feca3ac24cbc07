package vkg

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

func vkFormat(pf driver.PixelFmt) vk.Format {
	switch pf {
	case driver.RGBA32f:
		return vk.FormatR32g32b32a32Sfloat
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	}
	return vk.FormatUndefined
}

func pixelFmt(f vk.Format) driver.PixelFmt {
	switch f {
	case vk.FormatR32g32b32a32Sfloat:
		return driver.RGBA32f
	case vk.FormatR8g8b8a8Unorm:
		return driver.RGBA8un
	case vk.FormatR8g8b8a8Srgb:
		return driver.RGBA8sRGB
	case vk.FormatB8g8r8a8Unorm:
		return driver.BGRA8un
	case vk.FormatB8g8r8a8Srgb:
		return driver.BGRA8sRGB
	}
	return driver.FmtInvalid
}

func imageLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LGeneral:
		return vk.ImageLayoutGeneral
	case driver.LTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var stageBits = [...]struct {
	s driver.Sync
	f vk.PipelineStageFlags
}{
	{driver.STop, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
	{driver.STransfer, vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
	{driver.SAccelBuild, stageAccelBuild},
	{driver.SRayTracing, stageRayTracing},
	{driver.SFragment, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)},
	{driver.SColorOutput, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	{driver.SHost, vk.PipelineStageFlags(vk.PipelineStageHostBit)},
	{driver.SBottom, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
}

// pipelineStages converts s, using empty when s is SNone since Vulkan
// rejects empty stage masks.
func pipelineStages(s driver.Sync, empty vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	if s == driver.SAll {
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var f vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.s != 0 {
			f |= b.f
		}
	}
	if f == 0 {
		return vk.PipelineStageFlags(empty)
	}
	return f
}

var accessBits = [...]struct {
	a driver.Access
	f vk.AccessFlags
}{
	{driver.ATransferRead, vk.AccessFlags(vk.AccessTransferReadBit)},
	{driver.ATransferWrite, vk.AccessFlags(vk.AccessTransferWriteBit)},
	{driver.AAccelRead, accessAccelRead},
	{driver.AAccelWrite, accessAccelWrite},
	{driver.AShaderRead, vk.AccessFlags(vk.AccessShaderReadBit)},
	{driver.AShaderWrite, vk.AccessFlags(vk.AccessShaderWriteBit)},
	{driver.AColorWrite, vk.AccessFlags(vk.AccessColorAttachmentWriteBit)},
	{driver.AHostRead, vk.AccessFlags(vk.AccessHostReadBit)},
	{driver.AHostWrite, vk.AccessFlags(vk.AccessHostWriteBit)},
}

func accessFlags(a driver.Access) vk.AccessFlags {
	var f vk.AccessFlags
	for _, b := range accessBits {
		if a&b.a != 0 {
			f |= b.f
		}
	}
	return f
}

func shaderStages(s driver.ShaderStage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlags
	if s&driver.StageRayGen != 0 {
		f |= shaderRayGen
	}
	if s&driver.StageMiss != 0 {
		f |= shaderMiss
	}
	if s&driver.StageClosestHit != 0 {
		f |= shaderClosestHit
	}
	if s&driver.StageFragment != 0 {
		f |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return f
}

func descriptorType(t driver.DescType) vk.DescriptorType {
	switch t {
	case driver.DImage:
		return vk.DescriptorTypeStorageImage
	case driver.DAccel:
		return descAccel
	case driver.DBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeCombinedImageSampler
}

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

var colorLayers = vk.ImageSubresourceLayers{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LayerCount: 1,
}
