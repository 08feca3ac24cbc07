package soft

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/celer/vkrt/driver"
)

// addrBase is the first device address handed out. Zero is kept
// invalid so that a missing address is always detected.
const addrBase = 0x10000

// addrAlign aligns every buffer base address.
const addrAlign = 256

type buffer struct {
	g       *GPU
	data    []byte
	addr    uint64
	usage   driver.Usage
	visible bool
	dead    bool
}

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("soft: invalid buffer size %d", size)
	}
	if err := g.alloc("buffer", size); err != nil {
		return nil, err
	}
	b := &buffer{g: g, data: make([]byte, size), usage: usg, visible: visible}

	g.mu.Lock()
	b.addr = g.next
	g.next += uint64((size + addrAlign - 1) / addrAlign * addrAlign)
	g.bufs = append(g.bufs, b)
	g.mu.Unlock()
	return b, nil
}

func (b *buffer) Size() int64   { return int64(len(b.data)) }
func (b *buffer) Visible() bool { return b.visible }

func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

func (b *buffer) Addr() uint64 {
	if b.usage&driver.UDeviceAddress == 0 {
		return 0
	}
	return b.addr
}

func (b *buffer) Destroy() {
	if b.dead {
		b.g.violation("buffer at %#x destroyed twice", b.addr)
		return
	}
	b.dead = true
	b.g.free("buffer", int64(len(b.data)))
}

// resolve maps a device address to the live buffer containing it and
// the offset of the address within that buffer. n is the number of
// bytes about to be accessed.
func (g *GPU) resolve(addr uint64, n int64) (*buffer, int64, error) {
	g.mu.Lock()
	i := sort.Search(len(g.bufs), func(i int) bool { return g.bufs[i].addr > addr }) - 1
	var b *buffer
	if i >= 0 {
		b = g.bufs[i]
	}
	g.mu.Unlock()

	switch {
	case b == nil || addr >= b.addr+uint64(len(b.data)):
		return nil, 0, fmt.Errorf("device address %#x is not backed by a buffer", addr)
	case b.dead:
		return nil, 0, fmt.Errorf("device address %#x refers to a destroyed buffer", addr)
	case b.usage&driver.UDeviceAddress == 0:
		return nil, 0, fmt.Errorf("device address %#x refers to a buffer without device address usage", addr)
	}
	off := int64(addr - b.addr)
	if off+n > int64(len(b.data)) {
		return nil, 0, fmt.Errorf("access of %d bytes at %#x overruns buffer of %d bytes", n, addr, len(b.data))
	}
	return b, off, nil
}

// read returns n bytes at a device address, recording a finding when
// the address is invalid.
func (g *GPU) read(addr uint64, n int64, what string) []byte {
	b, off, err := g.resolve(addr, n)
	if err != nil {
		g.violation("%s: %v", what, err)
		return nil
	}
	return b.data[off : off+n]
}

type image struct {
	g      *GPU
	pf     driver.PixelFmt
	w, h   int
	usage  driver.Usage
	data   []byte
	layout driver.Layout
	dead   bool
	owned  bool
}

// NewImage implements driver.GPU.
func (g *GPU) NewImage(pf driver.PixelFmt, width, height int, usg driver.Usage) (driver.Image, error) {
	if pf.Size() == 0 {
		return nil, fmt.Errorf("soft: unsupported pixel format %v: %w", pf, driver.ErrUnsupported)
	}
	if width <= 0 || height <= 0 || width > g.limits.MaxImageDim || height > g.limits.MaxImageDim {
		return nil, fmt.Errorf("soft: invalid image extent %dx%d", width, height)
	}
	size := int64(width * height * pf.Size())
	if err := g.alloc("image", size); err != nil {
		return nil, err
	}
	return &image{g: g, pf: pf, w: width, h: height, usage: usg, data: make([]byte, size), owned: true}, nil
}

func (im *image) Format() driver.PixelFmt { return im.pf }
func (im *image) Extent() (int, int)      { return im.w, im.h }

func (im *image) Destroy() {
	if !im.owned {
		im.g.violation("swapchain image destroyed by its user")
		return
	}
	if im.dead {
		im.g.violation("image destroyed twice")
		return
	}
	im.dead = true
	im.g.free("image", int64(len(im.data)))
}

// expect records a finding if the image is not in one of layouts.
func (im *image) expect(op string, layouts ...driver.Layout) {
	for _, l := range layouts {
		if im.layout == l {
			return
		}
	}
	im.g.violation("%s on %v image in layout %v, want %v", op, im.pf, im.layout, layouts)
}

// pixel returns the linear RGBA value of pixel (x, y).
func (im *image) pixel(x, y int) [4]float32 {
	i := (y*im.w + x) * im.pf.Size()
	var c [4]float32
	switch im.pf {
	case driver.RGBA32f:
		for k := 0; k < 4; k++ {
			c[k] = math.Float32frombits(binary.LittleEndian.Uint32(im.data[i+4*k:]))
		}
		return c
	case driver.BGRA8un, driver.BGRA8sRGB:
		c = [4]float32{unorm(im.data[i+2]), unorm(im.data[i+1]), unorm(im.data[i]), unorm(im.data[i+3])}
	default:
		c = [4]float32{unorm(im.data[i]), unorm(im.data[i+1]), unorm(im.data[i+2]), unorm(im.data[i+3])}
	}
	if im.pf.SRGB() {
		for k := 0; k < 3; k++ {
			c[k] = toLinear(c[k])
		}
	}
	return c
}

// setPixel stores a linear RGBA value, encoding it for the format.
func (im *image) setPixel(x, y int, c [4]float32) {
	i := (y*im.w + x) * im.pf.Size()
	if im.pf == driver.RGBA32f {
		for k := 0; k < 4; k++ {
			binary.LittleEndian.PutUint32(im.data[i+4*k:], math.Float32bits(c[k]))
		}
		return
	}
	if im.pf.SRGB() {
		for k := 0; k < 3; k++ {
			c[k] = toSRGB(c[k])
		}
	}
	r, g, b, a := toUnorm(c[0]), toUnorm(c[1]), toUnorm(c[2]), toUnorm(c[3])
	switch im.pf {
	case driver.BGRA8un, driver.BGRA8sRGB:
		im.data[i], im.data[i+1], im.data[i+2], im.data[i+3] = b, g, r, a
	default:
		im.data[i], im.data[i+1], im.data[i+2], im.data[i+3] = r, g, b, a
	}
}

type sampler struct {
	g       *GPU
	nearest bool
}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(nearest bool) (driver.Sampler, error) {
	g.track("sampler", 1)
	return &sampler{g: g, nearest: nearest}, nil
}

func (s *sampler) Destroy() { s.g.track("sampler", -1) }
