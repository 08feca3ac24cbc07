// Package soft implements driver.GPU on the CPU.
//
// It is the reference backend: memory is host slices addressed through
// synthetic device addresses, acceleration structures are BVHs over
// Moller-Trumbore triangles and the ray tracing programs run as Go code.
// Fences signal a configurable latency after submission, which makes the
// CPU/GPU overlap of the frame scheduler observable. A validation layer
// records ordering and lifetime mistakes as findings instead of failing.
package soft

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/log"
)

var logger = log.New("soft")

// Name is the registry name of the default soft driver.
const Name = "soft"

// Config tunes a soft driver.
type Config struct {
	// FenceLatency is the delay between a submission and the
	// signal of its fence.
	FenceLatency time.Duration

	// MemoryLimit bounds the bytes of live buffers and images.
	// Zero means unlimited.
	MemoryLimit int64

	// Workers is the number of goroutines running ray dispatches.
	// Zero selects GOMAXPROCS.
	Workers int

	// Limits overrides the default limits when its handle size
	// is not zero.
	Limits driver.Limits

	// NoRayTracing hides the ray tracing features, as a device
	// without hardware support would.
	NoRayTracing bool
}

// DefaultLimits mirrors the limits reported by common desktop GPUs.
func DefaultLimits() driver.Limits {
	return driver.Limits{
		ShaderGroupHandleSize:      32,
		ShaderGroupHandleAlignment: 32,
		ShaderGroupBaseAlignment:   64,
		MaxRecursion:               1,
		ScratchAlignment:           128,
		MaxImageDim:                16384,
		MaxPushSize:                256,
	}
}

// Driver implements driver.Driver.
type Driver struct {
	name string
	cfg  Config
}

// New returns an unregistered driver using cfg.
func New(cfg Config) *Driver {
	return &Driver{name: Name, cfg: cfg}
}

func init() {
	driver.Register(New(Config{}))
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return d.name }

// Devices implements driver.Driver.
func (d *Driver) Devices() ([]driver.DeviceInfo, error) {
	return []driver.DeviceInfo{d.info()}, nil
}

func (d *Driver) info() driver.DeviceInfo {
	return driver.DeviceInfo{
		Name:         "CPU reference device",
		Type:         "cpu",
		Driver:       d.name,
		APIVersion:   runtime.Version(),
		DeviceMemory: d.cfg.MemoryLimit,
		RayTracing:   !d.cfg.NoRayTracing,
	}
}

// Open implements driver.Driver.
func (d *Driver) Open(opts *driver.Options) (driver.GPU, error) {
	if opts != nil && opts.Device > 0 {
		return nil, driver.ErrNoDevice
	}
	g := &GPU{
		drv:    d,
		cfg:    d.cfg,
		limits: d.cfg.Limits,
		live:   make(map[string]int),
		next:   addrBase,
		accels: make(map[uint64]*accel),
	}
	if g.limits.ShaderGroupHandleSize == 0 {
		g.limits = DefaultLimits()
	}
	if g.cfg.Workers <= 0 {
		g.cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if opts != nil && opts.Surface != nil {
		if _, ok := opts.Surface.(*Surface); !ok {
			return nil, fmt.Errorf("soft: surface %T is not a soft surface: %w", opts.Surface, driver.ErrUnsupported)
		}
	}
	logger.Debugf("opened %s (workers %d, fence latency %v)", g.drv.info().Name, g.cfg.Workers, g.cfg.FenceLatency)
	return g, nil
}

// GPU implements driver.GPU.
type GPU struct {
	drv    *Driver
	cfg    Config
	limits driver.Limits

	mu       sync.Mutex
	used     int64
	live     map[string]int
	findings []string
	idleAt   time.Time
	pipeIDs  uint32
	failNext error

	// Device address space. Buffers are appended in address
	// order and addresses are never reused.
	next   uint64
	bufs   []*buffer
	accels map[uint64]*accel
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Info implements driver.GPU.
func (g *GPU) Info() driver.DeviceInfo { return g.drv.info() }

// Limits implements driver.GPU.
func (g *GPU) Limits() driver.Limits { return g.limits }

// Features implements driver.GPU.
func (g *GPU) Features() driver.Features {
	rt := !g.cfg.NoRayTracing
	return driver.Features{
		RayTracing:          rt,
		AccelStruct:         rt,
		BufferDeviceAddress: true,
		StorageRGBA32f:      true,
		BlitToRGBA8sRGB:     true,
		Present:             true,
	}
}

// SetMemoryLimit changes the memory budget. Allocations that would
// exceed it fail with driver.ErrNoDeviceMemory.
func (g *GPU) SetMemoryLimit(n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.MemoryLimit = n
}

// MemoryUsed returns the bytes held by live buffers and images.
func (g *GPU) MemoryUsed() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// Live returns the number of live objects per kind.
func (g *GPU) Live() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := make(map[string]int, len(g.live))
	for k, v := range g.live {
		if v != 0 {
			m[k] = v
		}
	}
	return m
}

// FailNextSubmit makes the next Submit return err without executing
// or signaling anything, as a device rejecting the work would.
func (g *GPU) FailNextSubmit(err error) {
	g.mu.Lock()
	g.failNext = err
	g.mu.Unlock()
}

// Findings returns the validation findings recorded so far.
func (g *GPU) Findings() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.findings...)
}

func (g *GPU) violation(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warningf("validation: %s", msg)
	g.mu.Lock()
	g.findings = append(g.findings, msg)
	g.mu.Unlock()
}

func (g *GPU) alloc(kind string, size int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.MemoryLimit > 0 && g.used+size > g.cfg.MemoryLimit {
		return fmt.Errorf("soft: %s of %d bytes exceeds budget (%d of %d in use): %w",
			kind, size, g.used, g.cfg.MemoryLimit, driver.ErrNoDeviceMemory)
	}
	g.used += size
	g.live[kind]++
	return nil
}

func (g *GPU) free(kind string, size int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used -= size
	g.live[kind]--
}

func (g *GPU) track(kind string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[kind] += n
}

// Destroy implements driver.GPU.
func (g *GPU) Destroy() {
	live := g.Live()
	if len(live) == 0 {
		return
	}
	kinds := make([]string, 0, len(live))
	for k := range live {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		g.violation("GPU destroyed with %d live %s object(s)", live[k], k)
	}
}

// WaitIdle implements driver.GPU.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	at := g.idleAt
	g.mu.Unlock()
	if d := time.Until(at); d > 0 {
		time.Sleep(d)
	}
	return nil
}

// Submit implements driver.GPU. Commands execute synchronously; the
// fence and the command buffers become reusable FenceLatency later.
func (g *GPU) Submit(s *driver.Submission) error {
	g.mu.Lock()
	err := g.failNext
	g.failNext = nil
	g.mu.Unlock()
	if err != nil {
		return err
	}

	for i, sem := range s.Wait {
		sm := sem.(*semaphore)
		if !sm.consume() {
			g.violation("submission waits on semaphore %d that has no pending signal", i)
		}
	}

	for _, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		if cb.state != cmdExecutable {
			g.violation("submitted command buffer is not executable (state %d)", cb.state)
			continue
		}
		cb.execute()
	}

	ready := time.Now().Add(g.cfg.FenceLatency)
	for _, c := range s.Cmds {
		c.(*cmdBuffer).markBusy(ready)
	}
	for _, sem := range s.Signal {
		if !sem.(*semaphore).signal() {
			g.violation("submission signals a semaphore that is already signaled")
		}
	}
	if s.Fence != nil {
		f := s.Fence.(*fence)
		if err := f.arm(ready); err != nil {
			g.violation("%v", err)
		}
	}

	g.mu.Lock()
	if ready.After(g.idleAt) {
		g.idleAt = ready
	}
	g.mu.Unlock()
	return nil
}
