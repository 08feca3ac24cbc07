package vkg

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/log"
)

// Name is the registry name of the Vulkan driver.
const Name = "vulkan"

var logger = log.New("vkg")

// apiVersion is the Vulkan version ray tracing is built on.
var apiVersion = Version{Major: 1, Minor: 2}

// WindowSurface is a driver.Surface backed by a window that can create
// a Vulkan surface. The windowing layer implements it.
type WindowSurface interface {
	driver.Surface

	// InstanceExtensions returns the instance extensions the window
	// system requires.
	InstanceExtensions() []string

	// CreateSurface creates the surface of the window on instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// Driver implements driver.Driver. The Vulkan loader is opened on
// first use.
type Driver struct {
	once sync.Once
	err  error
}

func init() {
	driver.Register(&Driver{})
}

func (d *Driver) load() error {
	d.once.Do(func() {
		d.err = loadLibrary()
		if d.err != nil {
			logger.Debugf("vulkan loader: %v", d.err)
		}
	})
	return d.err
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return Name }

// Devices implements driver.Driver.
func (d *Driver) Devices() ([]driver.DeviceInfo, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	app := &App{Name: "vkrt", EngineName: "vkrt", APIVersion: apiVersion}
	inst, err := app.CreateInstance()
	if err != nil {
		return nil, err
	}
	defer inst.Destroy()
	pds, err := inst.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	infos := make([]driver.DeviceInfo, len(pds))
	for i, pd := range pds {
		infos[i] = pd.Info()
	}
	return infos, nil
}

// suitable returns the queue family of pd that rendering uses, or nil
// when pd cannot render (or present to surface, if not nil).
func suitable(pd *PhysicalDevice, surface vk.Surface) *QueueFamily {
	if !pd.HasExtensions(rtExtensions...) {
		return nil
	}
	if surface != nil && !pd.HasExtensions("VK_KHR_swapchain") {
		return nil
	}
	qfs, err := pd.QueueFamilies()
	if err != nil {
		return nil
	}
	return qfs.Render(surface)
}

// Open implements driver.Driver.
func (d *Driver) Open(opts *driver.Options) (driver.GPU, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &driver.Options{Device: -1}
	}
	app := &App{Name: opts.AppName, EngineName: "vkrt", APIVersion: apiVersion}
	if opts.Validation {
		app.EnableDebugging()
	}
	var ws WindowSurface
	if opts.Surface != nil {
		var ok bool
		if ws, ok = opts.Surface.(WindowSurface); !ok {
			return nil, fmt.Errorf("vkg: surface %T cannot create Vulkan surfaces: %w", opts.Surface, driver.ErrUnsupported)
		}
		for _, e := range ws.InstanceExtensions() {
			app.EnableExtension(e)
		}
	}
	inst, err := app.CreateInstance()
	if err != nil {
		return nil, err
	}
	g := &GPU{drv: d, inst: inst}
	if err := g.open(opts, ws); err != nil {
		g.Destroy()
		return nil, err
	}
	logger.Infof("opened %s (Vulkan %s)", g.info.Name, g.info.APIVersion)
	return g, nil
}

// GPU implements driver.GPU on a Vulkan device with a single queue.
type GPU struct {
	drv  *Driver
	inst *Instance

	surface vk.Surface
	pd      *PhysicalDevice
	dev     *Device
	queue   *Queue
	pool    *CommandPool
	mem     *memory
	descs   *DescriptorPool

	caps     rtCaps
	info     driver.DeviceInfo
	limits   driver.Limits
	features driver.Features
}

func (g *GPU) open(opts *driver.Options, ws WindowSurface) error {
	if ws != nil {
		surface, err := ws.CreateSurface(g.inst.VKInstance)
		if err != nil {
			return err
		}
		g.surface = surface
	}

	pds, err := g.inst.PhysicalDevices()
	if err != nil {
		return err
	}
	var qf *QueueFamily
	if opts.Device >= 0 {
		if opts.Device >= len(pds) {
			return fmt.Errorf("vkg: device %d of %d: %w", opts.Device, len(pds), driver.ErrNoDevice)
		}
		g.pd = pds[opts.Device]
		if qf = suitable(g.pd, g.surface); qf == nil {
			return fmt.Errorf("vkg: %s cannot trace rays: %w", g.pd, driver.ErrUnsupported)
		}
	} else {
		for _, pd := range pds {
			if qf = suitable(pd, g.surface); qf != nil {
				g.pd = pd
				break
			}
		}
		if g.pd == nil {
			return driver.ErrNoDevice
		}
	}

	if g.caps, err = queryRTCaps(g.inst.VKInstance, g.pd.VKPhysicalDevice); err != nil {
		return err
	}
	if !g.caps.RayTracing || !g.caps.AccelStruct || !g.caps.DeviceAddress {
		return fmt.Errorf("vkg: %s lacks ray tracing features: %w", g.pd, driver.ErrUnsupported)
	}

	exts := append([]string(nil), rtExtensions...)
	if g.surface != nil {
		exts = append(exts, "VK_KHR_swapchain")
	}
	chain, free := rtFeatureChain()
	defer free()
	g.dev, err = g.pd.CreateLogicalDeviceWithOptions(QueueFamilySlice{qf}, &CreateDeviceOptions{
		EnabledExtensions: exts,
		PNext:             chain,
	})
	if err != nil {
		return err
	}
	if g.dev.rt, err = loadRTProcs(g.inst.VKInstance, g.dev.VKDevice); err != nil {
		return err
	}
	g.queue = g.dev.GetQueue(qf)
	if g.pool, err = g.dev.CreateCommandPool(qf); err != nil {
		return err
	}
	g.mem = newMemory(g.dev, g.dev.rt.allocFlags)
	g.descs = g.dev.NewDescriptorPool()

	props := &g.pd.VKPhysicalDeviceProperties
	g.info = g.pd.Info()
	g.limits = driver.Limits{
		ShaderGroupHandleSize:      g.caps.HandleSize,
		ShaderGroupHandleAlignment: g.caps.HandleAlignment,
		ShaderGroupBaseAlignment:   g.caps.BaseAlignment,
		MaxRecursion:               g.caps.MaxRecursion,
		ScratchAlignment:           g.caps.ScratchAlignment,
		MaxImageDim:                int(props.Limits.MaxImageDimension2D),
		MaxPushSize:                int(props.Limits.MaxPushConstantsSize),
	}
	g.features = driver.Features{
		RayTracing:          g.caps.RayTracing,
		AccelStruct:         g.caps.AccelStruct,
		BufferDeviceAddress: g.caps.DeviceAddress,
		StorageRGBA32f:      g.pd.SupportsFormat(vk.FormatR32g32b32a32Sfloat, vk.FormatFeatureStorageImageBit),
		BlitToRGBA8sRGB:     g.pd.SupportsFormat(vk.FormatR8g8b8a8Srgb, vk.FormatFeatureBlitDstBit),
		Present:             g.surface != nil,
	}
	logger.Debugf("limits %+v", g.limits)
	return nil
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Info implements driver.GPU.
func (g *GPU) Info() driver.DeviceInfo { return g.info }

// Limits implements driver.GPU.
func (g *GPU) Limits() driver.Limits { return g.limits }

// Features implements driver.GPU.
func (g *GPU) Features() driver.Features { return g.features }

// MemoryUsed returns the bytes of device memory held by live buffers
// and images.
func (g *GPU) MemoryUsed() int64 { return g.mem.Used() }

// Submit implements driver.GPU.
func (g *GPU) Submit(s *driver.Submission) error { return g.queue.Submit(s) }

// WaitIdle implements driver.GPU.
func (g *GPU) WaitIdle() error { return g.queue.WaitIdle() }

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) { return g.pool.AllocateBuffer() }

// NewFence implements driver.GPU.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) { return g.dev.CreateFence(signaled) }

// NewSemaphore implements driver.GPU.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) { return g.dev.CreateSemaphore() }

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("vkg: buffer size %d", size)
	}
	flags, address := bufferUsage(usg)
	props := vk.MemoryPropertyDeviceLocalBit
	if visible {
		props = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	buf, err := g.dev.CreateBuffer(g.mem, size, flags, props)
	if err != nil {
		return nil, err
	}
	if address {
		buf.addr = g.dev.rt.bufferAddress(g.dev.VKDevice, buf.VKBuffer)
	}
	return buf, nil
}

// NewImage implements driver.GPU.
func (g *GPU) NewImage(pf driver.PixelFmt, width, height int, usg driver.Usage) (driver.Image, error) {
	if width <= 0 || height <= 0 || width > g.limits.MaxImageDim || height > g.limits.MaxImageDim {
		return nil, fmt.Errorf("vkg: %dx%d image exceeds 1..%d: %w", width, height, g.limits.MaxImageDim, driver.ErrUnsupported)
	}
	if pf == driver.RGBA32f && usg&driver.UStorage != 0 && !g.features.StorageRGBA32f {
		return nil, fmt.Errorf("vkg: %v storage images: %w", pf, driver.ErrUnsupported)
	}
	return g.dev.CreateImage(g.mem, pf, width, height, usg)
}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(nearest bool) (driver.Sampler, error) { return g.dev.CreateSampler(nearest) }

// AccelBuildSizes implements driver.GPU.
func (g *GPU) AccelBuildSizes(b *driver.AccelBuild) (driver.AccelSizes, error) {
	return g.dev.rt.buildSizes(g.dev.VKDevice, b)
}

// NewAccelStruct implements driver.GPU.
func (g *GPU) NewAccelStruct(level driver.AccelLevel, buf driver.Buffer, off, size int64) (driver.AccelStruct, error) {
	return g.dev.CreateAccelStruct(level, buf.(*Buffer), off, size)
}

// NewShaderCode implements driver.GPU. data must be SPIR-V.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	return g.dev.CreateShaderModule(data)
}

// NewRTPipeline implements driver.GPU.
func (g *GPU) NewRTPipeline(desc *driver.RTPipelineDesc) (driver.RTPipeline, error) {
	if desc.MaxRecursion > g.limits.MaxRecursion {
		return nil, fmt.Errorf("vkg: recursion depth %d exceeds %d: %w", desc.MaxRecursion, g.limits.MaxRecursion, driver.ErrUnsupported)
	}
	if desc.PushSize > g.limits.MaxPushSize {
		return nil, fmt.Errorf("vkg: %d bytes of push constants exceed %d: %w", desc.PushSize, g.limits.MaxPushSize, driver.ErrUnsupported)
	}
	return g.dev.CreateRTPipeline(desc, g.limits.ShaderGroupHandleSize)
}

// NewDescSet implements driver.GPU.
func (g *GPU) NewDescSet(bindings []driver.Descriptor) (driver.DescSet, error) {
	layout, err := g.dev.CreateDescriptorSetLayout(g.dev.NewDescriptorSetLayout(bindings))
	if err != nil {
		return nil, err
	}
	set, err := g.descs.Allocate(layout)
	if err != nil {
		layout.Destroy()
		return nil, err
	}
	return set, nil
}

// NewSwapchain implements driver.GPU. sf must be the surface the GPU
// was opened with.
func (g *GPU) NewSwapchain(sf driver.Surface, imageCount int) (driver.Swapchain, error) {
	if g.surface == nil {
		return nil, fmt.Errorf("vkg: headless GPU: %w", driver.ErrUnsupported)
	}
	w, h := sf.Extent()
	return g.dev.CreateSwapchain(g.surface, g.queue, w, h, imageCount)
}

// Destroy implements driver.GPU.
func (g *GPU) Destroy() {
	if g.dev != nil {
		if err := g.dev.WaitIdle(); err != nil {
			logger.Warningf("wait idle: %v", err)
		}
		if g.descs != nil {
			g.descs.Destroy()
		}
		if g.pool != nil {
			g.pool.Destroy()
		}
		if g.mem != nil {
			g.mem.destroy()
		}
		g.dev.Destroy()
		g.dev = nil
	}
	if g.surface != nil {
		vk.DestroySurface(g.inst.VKInstance, g.surface, nil)
		g.surface = nil
	}
	if g.inst != nil {
		g.inst.Destroy()
		g.inst = nil
	}
}
