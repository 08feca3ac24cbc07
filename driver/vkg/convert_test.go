package vkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult(vk.Success))
	assert.NoError(t, checkResult(vk.Suboptimal))

	for res, want := range map[vk.Result]error{
		vk.ErrorOutOfHostMemory:     driver.ErrNoHostMemory,
		vk.ErrorOutOfDeviceMemory:   driver.ErrNoDeviceMemory,
		vk.ErrorDeviceLost:          driver.ErrDeviceLost,
		vk.ErrorOutOfDate:           driver.ErrSwapchain,
		vk.ErrorSurfaceLost:         driver.ErrSwapchain,
		vk.ErrorExtensionNotPresent: driver.ErrUnsupported,
		vk.ErrorFeatureNotPresent:   driver.ErrUnsupported,
		vk.ErrorIncompatibleDriver:  driver.ErrNotInstalled,
	} {
		assert.True(t, errors.Is(checkResult(res), want), "%v", res)
	}
	assert.Error(t, checkResult(vk.ErrorTooManyObjects))
}

func TestFormats(t *testing.T) {
	for _, pf := range []driver.PixelFmt{driver.RGBA32f, driver.RGBA8un, driver.RGBA8sRGB, driver.BGRA8un, driver.BGRA8sRGB} {
		f := vkFormat(pf)
		assert.NotEqual(t, vk.FormatUndefined, f)
		assert.Equal(t, pf, pixelFmt(f))
	}
	assert.Equal(t, vk.FormatUndefined, vkFormat(driver.FmtInvalid))
	assert.Equal(t, driver.FmtInvalid, pixelFmt(vk.FormatR16g16b16a16Sfloat))
}

func TestPipelineStages(t *testing.T) {
	top := vk.PipelineStageTopOfPipeBit
	assert.Equal(t, vk.PipelineStageFlags(top), pipelineStages(driver.SNone, top))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), pipelineStages(driver.SAll, top))
	assert.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit)|stageRayTracing,
		pipelineStages(driver.STransfer|driver.SRayTracing, top))
	assert.Equal(t, vk.PipelineStageFlags(stageAccelBuild), pipelineStages(driver.SAccelBuild, top))
}

func TestAccessFlags(t *testing.T) {
	assert.Zero(t, accessFlags(0))
	assert.Equal(t,
		vk.AccessFlags(vk.AccessShaderWriteBit)|accessAccelRead,
		accessFlags(driver.AShaderWrite|driver.AAccelRead))
}

func TestShaderStagesAndDescriptors(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(shaderRayTracing),
		shaderStages(driver.StageRayGen|driver.StageMiss|driver.StageClosestHit))
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), shaderStages(driver.StageFragment))

	assert.Equal(t, vk.DescriptorTypeStorageImage, descriptorType(driver.DImage))
	assert.Equal(t, descAccel, descriptorType(driver.DAccel))
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, descriptorType(driver.DBuffer))
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, descriptorType(driver.DTexture))
}

func TestBufferUsage(t *testing.T) {
	flags, addr := bufferUsage(driver.UCopySrc | driver.UCopyDst)
	assert.False(t, addr)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit|vk.BufferUsageTransferDstBit), flags)

	flags, addr = bufferUsage(driver.UShaderBinding)
	assert.True(t, addr)
	assert.NotZero(t, flags&usageSBT)
	assert.NotZero(t, flags&usageDeviceAddress)

	flags, addr = bufferUsage(driver.UAccelStorage)
	assert.True(t, addr)
	assert.NotZero(t, flags&usageAccelStorage)
}

func TestImageUsage(t *testing.T) {
	assert.Equal(t,
		vk.ImageUsageFlags(vk.ImageUsageStorageBit|vk.ImageUsageTransferSrcBit),
		imageUsage(driver.UStorage|driver.UCopySrc))
	assert.Zero(t, imageUsage(driver.UAccelInput))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(2), clamp(1, 2, 8))
	assert.Equal(t, uint32(8), clamp(9, 2, 8))
	assert.Equal(t, uint32(3), clamp(3, 2, 8))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, []string{"\x00", "a\x00", "b\x00"}, safeStrings([]string{"", "a", "b\x00"}))
}

func TestQueueFamilyRender(t *testing.T) {
	family := func(i int, flags vk.QueueFlagBits, count uint32) *QueueFamily {
		return &QueueFamily{Index: i, VKQueueFamilyProperties: vk.QueueFamilyProperties{
			QueueFlags: vk.QueueFlags(flags),
			QueueCount: count,
		}}
	}
	qfs := QueueFamilySlice{
		family(0, vk.QueueTransferBit, 2),
		family(1, vk.QueueComputeBit, 4),
		family(2, vk.QueueGraphicsBit|vk.QueueComputeBit, 0),
		family(3, vk.QueueGraphicsBit|vk.QueueComputeBit|vk.QueueTransferBit, 1),
	}
	qf := qfs.Render(nil)
	if assert.NotNil(t, qf) {
		assert.Equal(t, 3, qf.Index)
	}
	assert.Nil(t, qfs[:3].Render(nil))
	assert.True(t, qfs[1].Has(vk.QueueFlags(vk.QueueComputeBit)))
	assert.False(t, qfs[1].Has(renderQueueFlags))
}
