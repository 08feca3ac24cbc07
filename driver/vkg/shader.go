package vkg

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/shaders"
)

// ShaderModule implements driver.ShaderCode.
type ShaderModule struct {
	Device         *Device
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule creates a module from SPIR-V code.
func (d *Device) CreateShaderModule(data []byte) (*ShaderModule, error) {
	if !shaders.IsSPIRV(data) {
		return nil, fmt.Errorf("vkg: shader code is not SPIR-V: %w", driver.ErrUnsupported)
	}
	var module vk.ShaderModule
	err := checkResult(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module))
	if err != nil {
		return nil, err
	}
	return &ShaderModule{Device: d, VKShaderModule: module}, nil
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
