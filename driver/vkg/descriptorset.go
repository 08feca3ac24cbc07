package vkg

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// DescriptorSet implements driver.DescSet. Every Set call writes the
// descriptor immediately; sets must not be updated while a pending
// submission uses them.
type DescriptorSet struct {
	Device          *Device
	DescriptorPool  *DescriptorPool
	Layout          *DescriptorSetLayout
	VKDescriptorSet vk.DescriptorSet

	pool vk.DescriptorPool
}

func (du *DescriptorSet) write(w vk.WriteDescriptorSet) {
	w.SType = vk.StructureTypeWriteDescriptorSet
	w.DstSet = du.VKDescriptorSet
	w.DescriptorCount = 1
	vk.UpdateDescriptorSets(du.Device.VKDevice, 1, []vk.WriteDescriptorSet{w}, 0, nil)
}

// SetImage implements driver.DescSet. Storage images are accessed in
// the general layout.
func (du *DescriptorSet) SetImage(binding int, img driver.Image) {
	du.write(vk.WriteDescriptorSet{
		DstBinding:     uint32(binding),
		DescriptorType: vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   img.(*Image).View.VKImageView,
			ImageLayout: vk.ImageLayoutGeneral,
		}},
	})
}

// SetAccel implements driver.DescSet.
func (du *DescriptorSet) SetAccel(binding int, as driver.AccelStruct) {
	du.Device.rt.writeAccel(du.Device.VKDevice, du.VKDescriptorSet, binding, as.(*AccelStruct).handle)
}

// SetBuffer implements driver.DescSet.
func (du *DescriptorSet) SetBuffer(binding int, buf driver.Buffer, off, size int64) {
	du.write(vk.WriteDescriptorSet{
		DstBinding:     uint32(binding),
		DescriptorType: vk.DescriptorTypeStorageBuffer,
		PBufferInfo:    []vk.DescriptorBufferInfo{buf.(*Buffer).DSInfo(off, size)},
	})
}

// SetTexture implements driver.DescSet.
func (du *DescriptorSet) SetTexture(binding int, img driver.Image, splr driver.Sampler) {
	du.write(vk.WriteDescriptorSet{
		DstBinding:     uint32(binding),
		DescriptorType: vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     splr.(*Sampler).VKSampler,
			ImageView:   img.(*Image).View.VKImageView,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	})
}

func (du *DescriptorSet) Destroy() {
	if err := du.DescriptorPool.Free(du); err != nil {
		logger.Warningf("free descriptor set: %v", err)
	}
	du.Layout.Destroy()
}
