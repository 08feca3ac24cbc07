package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// RTPipeline implements driver.RTPipeline. It has one shader group
// per stage, ordered ray generation, miss, hit.
type RTPipeline struct {
	Device     *Device
	Layout     *PipelineLayout
	SetLayout  *DescriptorSetLayout
	VKPipeline vk.Pipeline

	groups     int
	handleSize int
}

// CreateRTPipeline creates a pipeline from desc. handleSize is the
// shader group handle size of the device.
func (d *Device) CreateRTPipeline(desc *driver.RTPipelineDesc, handleSize int) (*RTPipeline, error) {
	if desc.RayGen.Code == nil {
		return nil, fmt.Errorf("vkg: pipeline without ray generation stage")
	}
	setLayout, err := d.CreateDescriptorSetLayout(d.NewDescriptorSetLayout(desc.Bindings))
	if err != nil {
		return nil, err
	}
	layout, err := d.CreatePipelineLayout(desc.PushSize, setLayout)
	if err != nil {
		setLayout.Destroy()
		return nil, err
	}

	stage := func(s driver.Stage, flag int) rtStage {
		return rtStage{module: s.Code.(*ShaderModule).VKShaderModule, stage: flag, name: s.Name}
	}
	stages := []rtStage{stage(desc.RayGen, shaderRayGen)}
	for _, s := range desc.Miss {
		stages = append(stages, stage(s, shaderMiss))
	}
	for _, s := range desc.Hit {
		stages = append(stages, stage(s, shaderClosestHit))
	}
	recursion := desc.MaxRecursion
	if recursion < 1 {
		recursion = 1
	}
	pl, err := d.rt.createPipeline(d.VKDevice, layout.VKPipelineLayout, stages, recursion)
	if err != nil {
		layout.Destroy()
		setLayout.Destroy()
		return nil, err
	}
	logger.Debugf("ray tracing pipeline: %d groups, recursion %d", len(stages), recursion)
	return &RTPipeline{
		Device:     d,
		Layout:     layout,
		SetLayout:  setLayout,
		VKPipeline: pl,
		groups:     len(stages),
		handleSize: handleSize,
	}, nil
}

// GroupCount implements driver.RTPipeline.
func (p *RTPipeline) GroupCount() int { return p.groups }

// GroupHandles implements driver.RTPipeline.
func (p *RTPipeline) GroupHandles() ([]byte, error) {
	return p.Device.rt.groupHandles(p.Device.VKDevice, p.VKPipeline, p.groups, p.handleSize)
}

func (p *RTPipeline) Destroy() {
	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	p.Layout.Destroy()
	p.SetLayout.Destroy()
}

// AccelStruct implements driver.AccelStruct.
type AccelStruct struct {
	Device *Device

	handle accelHandle
	level  driver.AccelLevel
	addr   uint64
}

// CreateAccelStruct creates an acceleration structure stored in size
// bytes of buf from off.
func (d *Device) CreateAccelStruct(level driver.AccelLevel, buf *Buffer, off, size int64) (*AccelStruct, error) {
	if off+size > buf.Size() {
		return nil, fmt.Errorf("vkg: %v of %d bytes at %d overruns %d byte buffer", level, size, off, buf.Size())
	}
	h, addr, err := d.rt.createAccel(d.VKDevice, level, buf.VKBuffer, off, size)
	if err != nil {
		return nil, err
	}
	return &AccelStruct{Device: d, handle: h, level: level, addr: addr}, nil
}

// Level implements driver.AccelStruct.
func (a *AccelStruct) Level() driver.AccelLevel { return a.level }

// Addr implements driver.AccelStruct.
func (a *AccelStruct) Addr() uint64 { return a.addr }

func (a *AccelStruct) Destroy() {
	a.Device.rt.destroyAccel(a.Device.VKDevice, a.handle)
}
