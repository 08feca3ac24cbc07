package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Image implements driver.Image. Images that shaders access carry a
// view. Swapchain images are owned by their swapchain and are not
// backed by GPU memory blocks.
type Image struct {
	Device   *Device
	VKImage  vk.Image
	VKFormat vk.Format
	View     *ImageView

	mem    *memory
	alloc  *allocation
	pf     driver.PixelFmt
	width  int
	height int
	owned  bool

	// layout is the layout the last recorded transition left the
	// image in.
	layout vk.ImageLayout
}

func imageUsage(usg driver.Usage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usg&driver.UCopySrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usg&driver.UCopyDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if usg&driver.UStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if usg&driver.USampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	return vk.ImageUsageFlags(flags)
}

// CreateImage creates a device local 2D image of pf bound to memory
// from mem.
func (d *Device) CreateImage(mem *memory, pf driver.PixelFmt, width, height int, usg driver.Usage) (*Image, error) {
	format := vkFormat(pf)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("vkg: image format %v: %w", pf, driver.ErrUnsupported)
	}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  uint32(width),
			Height: uint32(height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(usg),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := checkResult(vk.CreateImage(d.VKDevice, &imageInfo, nil, &image)); err != nil {
		return nil, err
	}
	img := &Image{
		Device:   d,
		VKImage:  image,
		VKFormat: format,
		mem:      mem,
		pf:       pf,
		width:    width,
		height:   height,
		owned:    true,
		layout:   vk.ImageLayoutUndefined,
	}

	alloc, err := mem.alloc(img.VKMemoryRequirements(), vk.MemoryPropertyDeviceLocalBit, false)
	if err != nil {
		vk.DestroyImage(d.VKDevice, image, nil)
		return nil, err
	}
	img.alloc = alloc
	if err := checkResult(vk.BindImageMemory(d.VKDevice, image, alloc.block.mem.VKDeviceMemory, vk.DeviceSize(alloc.offset()))); err != nil {
		img.Destroy()
		return nil, err
	}
	if usg&(driver.UStorage|driver.USampled) != 0 {
		if img.View, err = img.CreateImageView(); err != nil {
			img.Destroy()
			return nil, err
		}
	}
	return img, nil
}

// wrapImage wraps an image owned by a swapchain.
func (d *Device) wrapImage(image vk.Image, format vk.Format, width, height int) *Image {
	return &Image{
		Device:   d,
		VKImage:  image,
		VKFormat: format,
		pf:       pixelFmt(format),
		width:    width,
		height:   height,
		layout:   vk.ImageLayoutUndefined,
	}
}

func (i *Image) VKMemoryRequirements() vk.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &memRequirements)
	memRequirements.Deref()
	return memRequirements
}

// Format implements driver.Image.
func (i *Image) Format() driver.PixelFmt { return i.pf }

// Extent implements driver.Image.
func (i *Image) Extent() (width, height int) { return i.width, i.height }

func (i *Image) Destroy() {
	if i.View != nil {
		i.View.Destroy()
		i.View = nil
	}
	if !i.owned {
		return
	}
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	if i.alloc != nil {
		i.mem.free(i.alloc)
		i.alloc = nil
	}
}

// Sampler implements driver.Sampler.
type Sampler struct {
	Device    *Device
	VKSampler vk.Sampler
}

func (d *Device) CreateSampler(nearest bool) (*Sampler, error) {
	filter := vk.FilterLinear
	if nearest {
		filter = vk.FilterNearest
	}
	var samp vk.Sampler
	err := checkResult(vk.CreateSampler(d.VKDevice, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeNearest,
	}, nil, &samp))
	if err != nil {
		return nil, err
	}
	return &Sampler{Device: d, VKSampler: samp}, nil
}

func (s *Sampler) Destroy() {
	vk.DestroySampler(s.Device.VKDevice, s.VKSampler, nil)
}
