package vkrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/log"
)

var logger = log.New("vkrt")

// Context owns every GPU object of a renderer: the device, the ray
// tracing pipeline, the frame slots, the swapchain, the scene and the
// window sized render targets. A Context is used from one goroutine,
// except for Invalidate.
type Context struct {
	cfg     Config
	gpu     driver.GPU
	surface driver.Surface

	pipe    *pipeline
	sampler driver.Sampler
	slots   []*frameSlot
	swap    *swapchainManager

	scene *scene
	tgt   *targets

	accum   Accumulation
	camera  Camera
	hasCam  bool
	overlay Overlay
	stats   Stats
	frame   int

	mu      sync.Mutex
	pending *[2]int

	// Objects living as long as the context.
	res cleanup
}

// CreateContext opens the driver named by cfg.Driver. A nil surface
// creates a headless context that renders without presenting.
func CreateContext(surface driver.Surface, cfg Config) (*Context, error) {
	drv, err := driver.Lookup(cfg.Driver)
	if err != nil {
		return nil, &Error{Op: "create context", Kind: Unsupported, Err: err}
	}
	return NewContext(drv, surface, cfg)
}

// NewContext creates a context on a device of drv.
func NewContext(drv driver.Driver, surface driver.Surface, cfg Config) (*Context, error) {
	const op = "create context"
	if err := cfg.check(); err != nil {
		return nil, &Error{Op: op, Kind: Internal, Err: err}
	}
	gpu, err := drv.Open(&driver.Options{
		Surface:    surface,
		Device:     cfg.Device,
		Validation: cfg.Validation,
		AppName:    "vkrt",
	})
	if err != nil {
		return nil, wrap(op, err)
	}

	c := &Context{cfg: cfg, gpu: gpu, surface: surface}
	c.res.add(gpu)
	c.accum = Accumulation{PerFrame: cfg.SamplesPerFrame, Target: cfg.SamplesToRender}
	if err := c.init(); err != nil {
		c.res.run()
		return nil, wrap(op, err)
	}
	info := gpu.Info()
	logger.Infof("using %s (%s driver, %d frames in flight)", info.Name, drv.Name(), cfg.FramesInFlight)
	return c, nil
}

func (c *Context) init() error {
	if err := c.checkFeatures(); err != nil {
		return err
	}

	set, err := loadShaders(c.cfg.ShaderDir)
	if err != nil {
		return err
	}
	if c.pipe, err = newPipeline(c.gpu, set); err != nil {
		return err
	}
	c.res.add(c.pipe)

	if c.sampler, err = c.gpu.NewSampler(false); err != nil {
		return fmt.Errorf("display sampler: %w", err)
	}
	c.res.add(c.sampler)

	for i := 0; i < c.cfg.FramesInFlight; i++ {
		slot, err := newFrameSlot(c.gpu)
		if err != nil {
			return fmt.Errorf("frame slot %d: %w", i, err)
		}
		c.res.add(slot)
		c.slots = append(c.slots, slot)
	}

	if c.surface != nil {
		c.swap = &swapchainManager{gpu: c.gpu, surface: c.surface, count: c.cfg.FramesInFlight + 1}
		c.res.push(c.swap.destroy)
		if err := c.swap.rebuild(); err != nil {
			return err
		}
	}
	return nil
}

// checkFeatures fails with driver.ErrUnsupported naming every missing
// capability.
func (c *Context) checkFeatures() error {
	f := c.gpu.Features()
	var missing []string
	for _, r := range []struct {
		ok   bool
		name string
	}{
		{f.RayTracing, "ray tracing pipelines"},
		{f.AccelStruct, "acceleration structures"},
		{f.BufferDeviceAddress, "buffer device addresses"},
		{f.StorageRGBA32f, "RGBA32F storage images"},
		{f.BlitToRGBA8sRGB, "blits to RGBA8 sRGB"},
		{f.Present || c.surface == nil, "presentation"},
	} {
		if !r.ok {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s lacks %s: %w", c.gpu.Info().Name, strings.Join(missing, ", "), driver.ErrUnsupported)
	}
	return nil
}

// Destroy idles the device and releases everything in the inverse order
// of creation. The context is unusable afterwards.
func (c *Context) Destroy() {
	if c.gpu == nil {
		return
	}
	if err := c.gpu.WaitIdle(); err != nil {
		logger.Warningf("wait idle before destroy: %v", err)
	}
	c.destroyScene()
	c.res.run()
	c.gpu = nil
	logger.Debugf("context destroyed")
}

// GPU returns the device of the context.
func (c *Context) GPU() driver.GPU { return c.gpu }

// Config returns the settings the context was created with.
func (c *Context) Config() Config { return c.cfg }

// Stats returns the frame statistics.
func (c *Context) Stats() Stats { return c.stats }

// Accumulation returns the accumulation state.
func (c *Context) Accumulation() Accumulation { return c.accum }

// ResetAccumulation discards the accumulated samples. The next frame
// starts over.
func (c *Context) ResetAccumulation() { c.accum.Reset() }

// SetSamples changes the accumulation target and the samples traced per
// frame.
func (c *Context) SetSamples(target, perFrame int) { c.accum.SetSamples(target, perFrame) }

// SetOverlay installs the UI recording hook.
func (c *Context) SetOverlay(o Overlay) { c.overlay = o }

// Extent returns the size of the render targets, zero without a scene.
func (c *Context) Extent() (int, int) {
	if c.tgt == nil {
		return 0, 0
	}
	return c.tgt.w, c.tgt.h
}

// DisplayImage returns the RGBA8 sRGB image holding the current
// estimate, in driver.LShaderRead layout between frames, and the set
// sampling it. Both are recreated on resize and scene load.
func (c *Context) DisplayImage() (driver.Image, driver.DescSet) {
	if c.tgt == nil {
		return nil, nil
	}
	return c.tgt.display, c.tgt.displaySet
}

// submitOnce records a short-lived command buffer, submits it and waits
// for its completion.
func (c *Context) submitOnce(record func(cb driver.CmdBuffer)) (err error) {
	var res cleanup
	defer func() {
		c.retire(&res, err)
		res.run()
	}()

	cb, err := c.gpu.NewCmdBuffer()
	if err != nil {
		return err
	}
	res.add(cb)
	if err := cb.Begin(); err != nil {
		return err
	}
	record(cb)
	if err := cb.End(); err != nil {
		return err
	}

	f, err := c.gpu.NewFence(false)
	if err != nil {
		return err
	}
	res.add(f)
	if err := c.gpu.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		return err
	}
	return f.Wait(c.cfg.FenceTimeout)
}

// retire moves the releases of res to the context when err leaves work
// in flight: after a timeout or a lost device nothing it used may be
// destroyed until Destroy has idled the device.
func (c *Context) retire(res *cleanup, err error) {
	if errors.Is(err, driver.ErrTimeout) || errors.Is(err, driver.ErrDeviceLost) {
		c.res = append(c.res, res.take()...)
	}
}

// upload copies data to the start of a device local buffer through a
// host visible staging buffer, in chunks of at most StagingLimit bytes.
// Every chunk is waited for before the staging memory is reused.
func (c *Context) upload(dst driver.Buffer, data []byte) (err error) {
	chunk := int64(len(data))
	if chunk > c.cfg.StagingLimit {
		chunk = c.cfg.StagingLimit
	}
	staging, err := c.gpu.NewBuffer(chunk, true, driver.UCopySrc)
	if err != nil {
		return fmt.Errorf("staging buffer: %w", err)
	}
	res := cleanup{staging.Destroy}
	defer func() {
		c.retire(&res, err)
		res.run()
	}()

	for off := int64(0); off < int64(len(data)); off += chunk {
		n := copy(staging.Bytes(), data[off:])
		err := c.submitOnce(func(cb driver.CmdBuffer) {
			cb.CopyBuffer(&driver.BufferCopy{From: staging, To: dst, ToOff: off, Size: int64(n)})
		})
		if err != nil {
			return fmt.Errorf("staging upload: %w", err)
		}
	}
	return nil
}

func float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func uint32Bytes(v []uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, u := range v {
		binary.LittleEndian.PutUint32(b[4*i:], u)
	}
	return b
}
