package vkrt

import (
	"errors"

	"github.com/celer/vkrt/driver"
)

// swapchainManager owns the presentable images of the surface. It is
// rebuilt on resize without touching any other state.
type swapchainManager struct {
	gpu     driver.GPU
	surface driver.Surface
	count   int

	sc    driver.Swapchain
	stale bool
}

// outOfDate reports whether the swapchain no longer matches the surface.
func (m *swapchainManager) outOfDate() bool {
	if m.stale {
		return true
	}
	w, h := m.surface.Extent()
	if m.sc == nil {
		return w > 0 && h > 0
	}
	sw, sh := m.sc.Extent()
	return w != sw || h != sh
}

// rebuild idles the device and replaces the swapchain. A surface of
// zero extent, as a minimized window has, leaves no swapchain and
// frames are skipped until it grows again.
func (m *swapchainManager) rebuild() error {
	if err := m.gpu.WaitIdle(); err != nil {
		return err
	}
	m.destroy()
	m.stale = false

	w, h := m.surface.Extent()
	if w <= 0 || h <= 0 {
		logger.Debugf("surface is %dx%d, swapchain deferred", w, h)
		return nil
	}
	sc, err := m.gpu.NewSwapchain(m.surface, m.count)
	if errors.Is(err, driver.ErrSwapchain) {
		// The surface changed again while the swapchain was created.
		m.stale = true
		return nil
	} else if err != nil {
		return err
	}
	m.sc = sc
	logger.Infof("swapchain %dx%d with %d %v images", w, h, len(sc.Images()), sc.Format())
	return nil
}

func (m *swapchainManager) destroy() {
	if m.sc != nil {
		m.sc.Destroy()
		m.sc = nil
	}
}
