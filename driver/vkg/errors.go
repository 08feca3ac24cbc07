package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// checkResult maps a failed vk.Result to the driver error it stands
// for. Results that are not errors map to nil.
func checkResult(res vk.Result) error {
	if res >= 0 {
		return nil
	}
	switch res {
	case vk.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		return driver.ErrDeviceLost
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		return driver.ErrSwapchain
	case vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent, vk.ErrorFormatNotSupported:
		return fmt.Errorf("vkg: %v: %w", vk.Error(res), driver.ErrUnsupported)
	case vk.ErrorIncompatibleDriver, vk.ErrorInitializationFailed:
		return fmt.Errorf("vkg: %v: %w", vk.Error(res), driver.ErrNotInstalled)
	}
	return fmt.Errorf("vkg: %v", vk.Error(res))
}
