package vkg

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// CommandBuffer implements driver.CmdBuffer. Each recording is
// submitted once.
type CommandBuffer struct {
	Device          *Device
	Pool            *CommandPool
	VKCommandBuffer vk.CommandBuffer

	// pending is the fence of the last submission, which had been
	// reset resets times when it was submitted.
	pending *Fence
	resets  uint64
}

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Begin implements driver.CmdBuffer. It fails with driver.ErrPending
// while the fence of the last submission has not signaled.
func (c *CommandBuffer) Begin() error {
	if f := c.pending; f != nil && f.resets == c.resets {
		ok, err := f.Signaled()
		if err != nil {
			return err
		}
		if !ok {
			return driver.ErrPending
		}
	}
	c.pending = nil
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return checkResult(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// End implements driver.CmdBuffer.
func (c *CommandBuffer) End() error {
	return checkResult(vk.EndCommandBuffer(c.VKCommandBuffer))
}

// Barrier implements driver.CmdBuffer.
func (c *CommandBuffer) Barrier(b []driver.Barrier) {
	for i := range b {
		vk.CmdPipelineBarrier(c.VKCommandBuffer,
			pipelineStages(b[i].SyncBefore, vk.PipelineStageTopOfPipeBit),
			pipelineStages(b[i].SyncAfter, vk.PipelineStageBottomOfPipeBit),
			0, 1, []vk.MemoryBarrier{{
				SType:         vk.StructureTypeMemoryBarrier,
				SrcAccessMask: accessFlags(b[i].AccessBefore),
				DstAccessMask: accessFlags(b[i].AccessAfter),
			}}, 0, nil, 0, nil)
	}
}

// Transition implements driver.CmdBuffer.
func (c *CommandBuffer) Transition(t []driver.Transition) {
	for i := range t {
		img := t[i].Img.(*Image)
		newLayout := imageLayout(t[i].LayoutAfter)
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(t[i].AccessBefore),
			DstAccessMask:       accessFlags(t[i].AccessAfter),
			OldLayout:           imageLayout(t[i].LayoutBefore),
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.VKImage,
			SubresourceRange:    colorSubresource,
		}
		vk.CmdPipelineBarrier(c.VKCommandBuffer,
			pipelineStages(t[i].SyncBefore, vk.PipelineStageTopOfPipeBit),
			pipelineStages(t[i].SyncAfter, vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
		img.layout = newLayout
	}
}

// CopyBuffer implements driver.CmdBuffer.
func (c *CommandBuffer) CopyBuffer(p *driver.BufferCopy) {
	vk.CmdCopyBuffer(c.VKCommandBuffer, p.From.(*Buffer).VKBuffer, p.To.(*Buffer).VKBuffer, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(p.FromOff),
		DstOffset: vk.DeviceSize(p.ToOff),
		Size:      vk.DeviceSize(p.Size),
	}})
}

// CopyImageToBuffer implements driver.CmdBuffer.
func (c *CommandBuffer) CopyImageToBuffer(dst driver.Buffer, off int64, src driver.Image) {
	img := src.(*Image)
	vk.CmdCopyImageToBuffer(c.VKCommandBuffer, img.VKImage, vk.ImageLayoutTransferSrcOptimal, dst.(*Buffer).VKBuffer, 1, []vk.BufferImageCopy{{
		BufferOffset:     vk.DeviceSize(off),
		ImageSubresource: colorLayers,
		ImageExtent: vk.Extent3D{
			Width: uint32(img.width), Height: uint32(img.height), Depth: 1,
		},
	}})
}

// BlitImage implements driver.CmdBuffer.
func (c *CommandBuffer) BlitImage(dst, src driver.Image, nearest bool) {
	d, s := dst.(*Image), src.(*Image)
	filter := vk.FilterLinear
	if nearest {
		filter = vk.FilterNearest
	}
	vk.CmdBlitImage(c.VKCommandBuffer, s.VKImage, vk.ImageLayoutTransferSrcOptimal, d.VKImage, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{{
		SrcSubresource: colorLayers,
		SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(s.width), Y: int32(s.height), Z: 1}},
		DstSubresource: colorLayers,
		DstOffsets:     [2]vk.Offset3D{{}, {X: int32(d.width), Y: int32(d.height), Z: 1}},
	}}, filter)
}

// ClearImage implements driver.CmdBuffer. The image is cleared in the
// layout the last recorded transition left it in.
func (c *CommandBuffer) ClearImage(img driver.Image, color [4]float32) {
	i := img.(*Image)
	layout := i.layout
	if layout != vk.ImageLayoutTransferDstOptimal {
		layout = vk.ImageLayoutGeneral
	}
	c.Device.rt.clear(c.VKCommandBuffer, i.VKImage, layout, color)
}

// BuildAccel implements driver.CmdBuffer.
func (c *CommandBuffer) BuildAccel(b *driver.AccelBuild) {
	c.Device.rt.cmdBuild(c.VKCommandBuffer, b, b.Dst.(*AccelStruct).handle)
}

// SetRTPipeline implements driver.CmdBuffer.
func (c *CommandBuffer) SetRTPipeline(pl driver.RTPipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, bindRayTracing, pl.(*RTPipeline).VKPipeline)
}

// SetDescSet implements driver.CmdBuffer.
func (c *CommandBuffer) SetDescSet(pl driver.RTPipeline, set driver.DescSet) {
	layout := pl.(*RTPipeline).Layout
	vk.CmdBindDescriptorSets(c.VKCommandBuffer, bindRayTracing, layout.VKPipelineLayout, 0, 1,
		[]vk.DescriptorSet{set.(*DescriptorSet).VKDescriptorSet}, 0, nil)
}

// PushConstants implements driver.CmdBuffer.
func (c *CommandBuffer) PushConstants(pl driver.RTPipeline, data []byte) {
	if len(data) == 0 {
		return
	}
	layout := pl.(*RTPipeline).Layout
	vk.CmdPushConstants(c.VKCommandBuffer, layout.VKPipelineLayout, shaderRayTracing, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// TraceRays implements driver.CmdBuffer.
func (c *CommandBuffer) TraceRays(sbt *driver.SBT, width, height, depth int) {
	c.Device.rt.traceRays(c.VKCommandBuffer, sbt, width, height, depth)
}

func (c *CommandBuffer) Destroy() {
	c.Pool.FreeBuffer(c)
}
