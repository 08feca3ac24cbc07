// Package driver defines the GPU interfaces the renderer is written against.
// Each backend (Vulkan in driver/vkg, the CPU reference in driver/soft)
// registers itself from init and is selected by name at context creation.
package driver

import (
	"errors"
	"sort"
	"sync"

	"github.com/celer/vkrt/log"
)

var logger = log.New("driver")

// Driver loads an underlying implementation and opens GPUs on it.
type Driver interface {
	// Name returns the registry name of the driver.
	Name() string

	// Devices lists the devices the driver could open, without
	// opening any of them.
	Devices() ([]DeviceInfo, error)

	// Open creates a GPU on the device selected by opts.
	// The returned GPU owns every object created from it and
	// must be destroyed after them.
	Open(opts *Options) (GPU, error)
}

// Options configures Driver.Open.
type Options struct {
	// Surface is the window the GPU presents to. It is nil for
	// headless rendering.
	Surface Surface

	// Device indexes the slice returned by Devices.
	// A negative value selects the first suitable device.
	Device int

	// Validation enables the backend's debug validation.
	Validation bool

	// AppName is reported to the underlying API.
	AppName string
}

// ErrNotInstalled means that a platform library required by the
// driver is not present in the system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrUnsupported means that the device lacks a required feature,
// such as hardware ray tracing or a required format.
var ErrUnsupported = errors.New("driver: feature not supported")

// ErrNoHostMemory means that host memory could not be allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not be
// allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrDeviceLost means that the GPU connection became invalid.
// Every object created from the GPU must be destroyed; the GPU
// cannot be used further.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrSwapchain means that the swapchain no longer matches its
// surface and must be recreated.
var ErrSwapchain = errors.New("driver: swapchain out of date")

// ErrTimeout means that a bounded wait expired.
var ErrTimeout = errors.New("driver: wait timed out")

// ErrPending means that a command buffer was recorded while a
// previous submission of it had not completed.
var ErrPending = errors.New("driver: command buffer pending execution")

var (
	mu      sync.Mutex
	drivers = make(map[string]Driver)
)

// Register makes drv available by name. A driver registered under
// an existing name replaces it.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := drivers[drv.Name()]; ok {
		logger.Warningf("driver %q replaced", drv.Name())
	}
	drivers[drv.Name()] = drv
}

// Lookup returns the driver registered as name.
func Lookup(name string) (Driver, error) {
	mu.Lock()
	defer mu.Unlock()
	drv, ok := drivers[name]
	if !ok {
		return nil, ErrNotInstalled
	}
	return drv, nil
}

// Drivers returns the registered drivers sorted by name.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, 0, len(drivers))
	for _, d := range drivers {
		drv = append(drv, d)
	}
	sort.Slice(drv, func(i, j int) bool { return drv[i].Name() < drv[j].Name() })
	return drv
}
