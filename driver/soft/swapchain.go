package soft

import (
	"fmt"
	"sync"

	"github.com/celer/vkrt/driver"
)

// Surface is an offscreen presentation target. Its extent can be
// changed at any time to emulate a window resize.
type Surface struct {
	mu   sync.Mutex
	w, h int
}

// NewSurface returns a surface of the given extent.
func NewSurface(w, h int) *Surface { return &Surface{w: w, h: h} }

// SetExtent changes the surface extent. Swapchains created for the
// previous extent become stale.
func (s *Surface) SetExtent(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w, s.h = w, h
}

// Extent implements driver.Surface.
func (s *Surface) Extent() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

// Swapchain is the soft driver.Swapchain. The last presented image can
// be inspected through Presented and Last.
type Swapchain struct {
	g      *GPU
	sf     *Surface
	imgs   []*image
	w, h   int
	next   int
	mu     sync.Mutex
	count  int
	last   int
	inUse  []bool
	retire bool
}

// NewSwapchain implements driver.GPU.
func (g *GPU) NewSwapchain(sf driver.Surface, imageCount int) (driver.Swapchain, error) {
	s, ok := sf.(*Surface)
	if !ok {
		return nil, fmt.Errorf("soft: surface %T is not a soft surface: %w", sf, driver.ErrUnsupported)
	}
	w, h := s.Extent()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("soft: surface extent %dx%d: %w", w, h, driver.ErrSwapchain)
	}
	if imageCount < 2 {
		imageCount = 2
	}
	sc := &Swapchain{g: g, sf: s, w: w, h: h, last: -1, inUse: make([]bool, imageCount)}
	g.track("swapchain", 1)
	for i := 0; i < imageCount; i++ {
		img, err := g.NewImage(driver.BGRA8sRGB, w, h, driver.URenderTarget|driver.UCopyDst)
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		im := img.(*image)
		im.owned = false
		sc.imgs = append(sc.imgs, im)
	}
	return sc, nil
}

func (sc *Swapchain) Images() []driver.Image {
	r := make([]driver.Image, len(sc.imgs))
	for i, im := range sc.imgs {
		r[i] = im
	}
	return r
}

func (sc *Swapchain) Format() driver.PixelFmt { return driver.BGRA8sRGB }
func (sc *Swapchain) Extent() (int, int)      { return sc.w, sc.h }

func (sc *Swapchain) stale() bool {
	w, h := sc.sf.Extent()
	return w != sc.w || h != sc.h
}

// Next implements driver.Swapchain. Images are handed out in order.
func (sc *Swapchain) Next(acquired driver.Semaphore) (int, error) {
	if sc.stale() {
		return -1, driver.ErrSwapchain
	}
	sc.mu.Lock()
	i := sc.next
	if sc.inUse[i] {
		sc.mu.Unlock()
		sc.g.violation("swapchain image %d acquired twice without being presented", i)
		return -1, fmt.Errorf("soft: no presentable image available: %w", driver.ErrTimeout)
	}
	sc.inUse[i] = true
	sc.next = (i + 1) % len(sc.imgs)
	sc.mu.Unlock()

	if acquired != nil && !acquired.(*semaphore).signal() {
		sc.g.violation("acquire signals a semaphore that is already signaled")
	}
	return i, nil
}

// Present implements driver.Swapchain.
func (sc *Swapchain) Present(index int, wait driver.Semaphore) error {
	if index < 0 || index >= len(sc.imgs) {
		return fmt.Errorf("soft: invalid swapchain image %d", index)
	}
	sc.mu.Lock()
	if !sc.inUse[index] {
		sc.mu.Unlock()
		sc.g.violation("swapchain image %d presented without being acquired", index)
		return nil
	}
	sc.inUse[index] = false
	sc.mu.Unlock()

	if wait != nil && !wait.(*semaphore).consume() {
		sc.g.violation("present waits on a semaphore that has no pending signal")
	}
	sc.imgs[index].expect("present", driver.LPresent)
	if sc.stale() {
		return driver.ErrSwapchain
	}

	sc.mu.Lock()
	sc.count++
	sc.last = index
	sc.mu.Unlock()
	return nil
}

// Presented returns the number of successful presents.
func (sc *Swapchain) Presented() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.count
}

// Last returns the linear color of pixel (x, y) of the most recently
// presented image.
func (sc *Swapchain) Last(x, y int) ([4]float32, bool) {
	sc.mu.Lock()
	last := sc.last
	sc.mu.Unlock()
	if last < 0 {
		return [4]float32{}, false
	}
	return sc.imgs[last].pixel(x, y), true
}

func (sc *Swapchain) Destroy() {
	if sc.retire {
		sc.g.violation("swapchain destroyed twice")
		return
	}
	sc.retire = true
	for _, im := range sc.imgs {
		im.owned = true
		im.Destroy()
	}
	sc.g.track("swapchain", -1)
}
