package vkg

import (
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Swapchain implements driver.Swapchain. Images are written by
// transfer commands, so they are created with transfer-dst usage.
type Swapchain struct {
	VKExtent    vk.Extent2D
	VKFormat    vk.Format
	Device      *Device
	VKSwapchain vk.Swapchain

	queue  *Queue
	images []*Image
}

func (s *Swapchain) Destroy() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}

func (s *Swapchain) getImages() error {
	var imageCount uint32
	if err := checkResult(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil)); err != nil {
		return err
	}
	swapchainImages := make([]vk.Image, imageCount)
	if err := checkResult(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, swapchainImages)); err != nil {
		return err
	}
	s.images = make([]*Image, imageCount)
	for i := range swapchainImages {
		s.images[i] = s.Device.wrapImage(swapchainImages[i], s.VKFormat, int(s.VKExtent.Width), int(s.VKExtent.Height))
	}
	return nil
}

// Images implements driver.Swapchain.
func (s *Swapchain) Images() []driver.Image {
	imgs := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		imgs[i] = img
	}
	return imgs
}

// Format implements driver.Swapchain.
func (s *Swapchain) Format() driver.PixelFmt { return pixelFmt(s.VKFormat) }

// Extent implements driver.Swapchain.
func (s *Swapchain) Extent() (width, height int) {
	return int(s.VKExtent.Width), int(s.VKExtent.Height)
}

// Next implements driver.Swapchain. A suboptimal swapchain still
// yields its image; Present reports it.
func (s *Swapchain) Next(acquired driver.Semaphore) (int, error) {
	var sem vk.Semaphore
	if acquired != nil {
		sem = acquired.(*Semaphore).VKSemaphore
	}
	var fence vk.Fence
	var idx uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, math.MaxUint64, sem, fence, &idx)
	if err := checkResult(res); err != nil {
		return 0, err
	}
	return int(idx), nil
}

// Present implements driver.Swapchain.
func (s *Swapchain) Present(index int, wait driver.Semaphore) error {
	if index < 0 || index >= len(s.images) {
		return fmt.Errorf("vkg: present of image %d of %d", index, len(s.images))
	}
	var sem *Semaphore
	if wait != nil {
		sem = wait.(*Semaphore)
	}
	return s.queue.Present(s, index, sem)
}

// surfaceFormat picks an sRGB BGRA format, falling back to UNORM.
func surfaceFormat(formats VKSurfaceFormats) (vk.SurfaceFormat, bool) {
	for _, want := range []vk.Format{vk.FormatB8g8r8a8Srgb, vk.FormatB8g8r8a8Unorm} {
		m := formats.Filter(func(f vk.SurfaceFormat) bool {
			f.Deref()
			return f.Format == want
		})
		if len(m) > 0 {
			m[0].Deref()
			return m[0], true
		}
	}
	return vk.SurfaceFormat{}, false
}

// CreateSwapchain creates a swapchain of at least imageCount images
// for surface. width and height size it when the surface leaves the
// extent to the swapchain.
func (p *Device) CreateSwapchain(surface vk.Surface, queue *Queue, width, height, imageCount int) (*Swapchain, error) {
	if !queue.QueueFamily.SupportsPresent(surface) {
		return nil, fmt.Errorf("vkg: queue family %d cannot present: %w", queue.QueueFamily.Index, driver.ErrUnsupported)
	}
	modes, err := p.PhysicalDevice.GetSurfacePresentModes(surface)
	if err != nil {
		return nil, err
	}
	presentMode := vk.PresentModeFifo
	if m := modes.Filter(vk.PresentModeMailbox); len(m) > 0 {
		presentMode = m[0]
	}

	formats, err := p.PhysicalDevice.GetSurfaceFormats(surface)
	if err != nil {
		return nil, err
	}
	format, ok := surfaceFormat(formats)
	if !ok {
		return nil, fmt.Errorf("vkg: no BGRA8 surface format: %w", driver.ErrUnsupported)
	}

	caps, err := p.PhysicalDevice.GetSurfaceCapabilities(surface)
	if err != nil {
		return nil, err
	}
	swapchainSize := caps.CurrentExtent
	if swapchainSize.Width == vk.MaxUint32 {
		swapchainSize = vk.Extent2D{
			Width:  clamp(uint32(width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(uint32(height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}
	if swapchainSize.Width == 0 || swapchainSize.Height == 0 {
		return nil, driver.ErrSwapchain
	}

	count := uint32(imageCount)
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	createInfo := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    count,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      swapchainSize,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	var swapchain vk.Swapchain
	if err := checkResult(vk.CreateSwapchain(p.VKDevice, createInfo, nil, &swapchain)); err != nil {
		return nil, err
	}
	ret := &Swapchain{
		VKSwapchain: swapchain,
		Device:      p,
		VKExtent:    swapchainSize,
		VKFormat:    format.Format,
		queue:       queue,
	}
	if err := ret.getImages(); err != nil {
		ret.Destroy()
		return nil, err
	}
	logger.Debugf("swapchain %dx%d, %d images, %v", swapchainSize.Width, swapchainSize.Height, len(ret.images), pixelFmt(format.Format))
	return ret, nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
