package vkg

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Fence implements driver.Fence.
type Fence struct {
	Device  *Device
	VKFence vk.Fence

	// resets counts Reset calls. A submission that used the fence
	// has completed once the count moves past the one it saw.
	resets uint64
}

func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := checkResult(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence)); err != nil {
		return nil, err
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// Wait implements driver.Fence.
func (f *Fence) Wait(timeout time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}
	res := vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return driver.ErrTimeout
	}
	return checkResult(res)
}

// Signaled implements driver.Fence.
func (f *Fence) Signaled() (bool, error) {
	res := vk.GetFenceStatus(f.Device.VKDevice, f.VKFence)
	if res == vk.NotReady {
		return false, nil
	}
	if err := checkResult(res); err != nil {
		return false, err
	}
	return true, nil
}

// Reset implements driver.Fence.
func (f *Fence) Reset() error {
	if err := checkResult(vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence})); err != nil {
		return err
	}
	f.resets++
	return nil
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}
