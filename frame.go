package vkrt

import (
	"errors"
	"fmt"
	"time"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/shaders"
)

// Overlay records UI drawing into the frame command buffer. It runs
// after the display image has been copied to the swapchain image, which
// is in the driver.LTransferDst layout and must be left in it.
type Overlay func(cb driver.CmdBuffer, target driver.Image)

// Stats counts what the frame scheduler did.
type Stats struct {
	// Frames is the number of submitted frames.
	Frames int
	// Skipped counts frames dropped to rebuild the swapchain or the
	// render targets.
	Skipped int
	// Dispatches counts frames that traced rays.
	Dispatches int
	// Converged counts frames that had no samples left to trace.
	Converged int
	// Samples is the accumulated sample count after the last frame.
	Samples int

	LastFrame time.Duration
	FenceWait time.Duration
}

// frameSlot is the per frame in flight state. The fence is waited on
// before the command buffer is recorded again.
type frameSlot struct {
	cmd      driver.CmdBuffer
	acquired driver.Semaphore
	rendered driver.Semaphore
	fence    driver.Fence
}

// replaceFence swaps the fence of the slot for a signaled one. It is
// used when a submission fails after the fence was reset.
func (s *frameSlot) replaceFence(gpu driver.GPU) error {
	f, err := gpu.NewFence(true)
	if err != nil {
		return err
	}
	s.fence.Destroy()
	s.fence = f
	return nil
}

func newFrameSlot(gpu driver.GPU) (s *frameSlot, err error) {
	var res cleanup
	defer func() {
		if err != nil {
			res.run()
		}
	}()
	s = &frameSlot{}
	if s.cmd, err = gpu.NewCmdBuffer(); err != nil {
		return nil, err
	}
	res.add(s.cmd)
	if s.acquired, err = gpu.NewSemaphore(); err != nil {
		return nil, err
	}
	res.add(s.acquired)
	if s.rendered, err = gpu.NewSemaphore(); err != nil {
		return nil, err
	}
	res.add(s.rendered)
	// Signaled, so that the first wait returns at once.
	if s.fence, err = gpu.NewFence(true); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *frameSlot) Destroy() {
	s.fence.Destroy()
	s.rendered.Destroy()
	s.acquired.Destroy()
	s.cmd.Destroy()
}

// Invalidate records a new surface or target size. It may be called from
// any goroutine; the next RenderFrame rebuilds and skips its draw.
func (c *Context) Invalidate(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &[2]int{w, h}
}

func (c *Context) takeInvalidate() (w, h int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return 0, 0, false
	}
	w, h = c.pending[0], c.pending[1]
	c.pending = nil
	return w, h, true
}

// Resize rebuilds the swapchain and the render targets for a new size.
// Resizing to the current size does nothing.
func (c *Context) Resize(w, h int) error {
	return wrap("resize", c.resize(w, h))
}

func (c *Context) resize(w, h int) error {
	swapOK := c.swap == nil || !c.swap.outOfDate()
	tgtOK := c.tgt == nil || (c.tgt.w == w && c.tgt.h == h)
	if swapOK && tgtOK {
		return nil
	}

	// Nothing may be in flight while window sized objects change.
	if err := c.gpu.WaitIdle(); err != nil {
		return err
	}
	if !swapOK {
		if err := c.swap.rebuild(); err != nil {
			return fmt.Errorf("swapchain: %w", err)
		}
	}
	if !tgtOK && w > 0 && h > 0 {
		t, err := c.newTargets(w, h, c.scene)
		if err != nil {
			return err
		}
		c.tgt.Destroy()
		c.tgt = t
		c.accum.Reset()
	}
	logger.Infof("resized to %dx%d", w, h)
	return nil
}

// RenderFrame runs one frame: it waits for the oldest frame slot,
// traces the samples due according to the accumulation state, refreshes
// the display image and presents it. A camera different from the one of
// the previous frame restarts accumulation.
func (c *Context) RenderFrame(cam Camera) error {
	return wrap("render frame", c.renderFrame(cam))
}

func (c *Context) renderFrame(cam Camera) error {
	if c.scene == nil {
		return ErrNoScene
	}
	start := time.Now()
	idx := c.frame % len(c.slots)
	slot := c.slots[idx]

	// The only blocking point of a frame.
	if err := slot.fence.Wait(c.cfg.FenceTimeout); err != nil {
		return fmt.Errorf("frame slot %d: %w", idx, err)
	}
	c.stats.FenceWait += time.Since(start)

	if w, h, ok := c.takeInvalidate(); ok {
		c.stats.Skipped++
		return c.resize(w, h)
	}
	if c.swap != nil && c.swap.outOfDate() {
		c.stats.Skipped++
		w, h := c.surface.Extent()
		return c.resize(w, h)
	}

	if !c.hasCam || cam.viewChanged(&c.camera) || cam.lensChanged(&c.camera) {
		c.accum.Reset()
	}
	c.camera, c.hasCam = cam, true

	image := -1
	if c.swap != nil {
		if c.swap.sc == nil {
			c.stats.Skipped++
			return nil
		}
		i, err := c.swap.sc.Next(slot.acquired)
		if errors.Is(err, driver.ErrSwapchain) {
			c.swap.stale = true
			c.stats.Skipped++
			return nil
		} else if err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
		image = i
	}

	first, n := c.accum.Next()
	if n == 0 && image < 0 {
		// Converged and nothing to present.
		c.stats.Converged++
		return nil
	}

	cb := slot.cmd
	if err := cb.Begin(); err != nil {
		return err
	}
	if n > 0 {
		c.recordDispatch(cb, first, n)
		c.stats.Dispatches++
	} else {
		c.stats.Converged++
	}
	if image >= 0 {
		c.recordPresent(cb, c.swap.sc.Images()[image])
	}
	if err := cb.End(); err != nil {
		return err
	}

	sub := &driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: slot.fence}
	if image >= 0 {
		sub.Wait = []driver.Semaphore{slot.acquired}
		sub.WaitSync = []driver.Sync{driver.STransfer}
		sub.Signal = []driver.Semaphore{slot.rendered}
	}
	if err := slot.fence.Reset(); err != nil {
		return err
	}
	if err := c.gpu.Submit(sub); err != nil {
		// Nothing will signal the reset fence; replace it so the slot
		// does not time out on its next use.
		if ferr := slot.replaceFence(c.gpu); ferr != nil {
			logger.Warningf("frame slot %d: %v", idx, ferr)
		}
		return fmt.Errorf("submit: %w", err)
	}
	c.accum.Commit(n)
	c.frame++
	c.stats.Frames++
	c.stats.Samples = c.accum.Count

	if image >= 0 {
		err := c.swap.sc.Present(image, slot.rendered)
		if errors.Is(err, driver.ErrSwapchain) {
			c.swap.stale = true
		} else if err != nil {
			return fmt.Errorf("present: %w", err)
		}
	}
	c.stats.LastFrame = time.Since(start)
	logger.Debugf("frame %d: slot %d, samples %d+%d of %d, %v", c.frame, idx, first, n, c.accum.Target, c.stats.LastFrame)
	return nil
}

// recordDispatch traces n samples per pixel starting at sample first,
// then blits the accumulation image into the display image.
func (c *Context) recordDispatch(cb driver.CmdBuffer, first, n int) {
	t := c.tgt
	var p shaders.Push
	c.camera.push(&p, float32(t.w)/float32(t.h))
	bg := c.cfg.Background
	p.Background = [4]float32{bg[0], bg[1], bg[2], 1}
	p.SampleStart = uint32(first)
	p.SampleCount = uint32(n)
	p.Seed = c.cfg.Seed

	pl := c.pipe.pl
	cb.SetRTPipeline(pl)
	cb.SetDescSet(pl, t.rtSet)
	cb.PushConstants(pl, p.Bytes())
	cb.TraceRays(&c.pipe.sbt.table, t.w, t.h, 1)

	cb.Transition([]driver.Transition{
		{
			Barrier:      driver.Barrier{SyncBefore: driver.SRayTracing, SyncAfter: driver.STransfer, AccessBefore: driver.AShaderWrite, AccessAfter: driver.ATransferRead},
			LayoutBefore: driver.LGeneral, LayoutAfter: driver.LTransferSrc, Img: t.accum,
		},
		{
			Barrier:      driver.Barrier{SyncBefore: driver.SFragment | driver.STransfer, SyncAfter: driver.STransfer, AccessBefore: driver.AShaderRead | driver.ATransferRead, AccessAfter: driver.ATransferWrite},
			LayoutBefore: driver.LShaderRead, LayoutAfter: driver.LTransferDst, Img: t.display,
		},
	})
	cb.BlitImage(t.display, t.accum, true)
	cb.Transition([]driver.Transition{
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SRayTracing, AccessBefore: driver.ATransferRead, AccessAfter: driver.AShaderRead | driver.AShaderWrite},
			LayoutBefore: driver.LTransferSrc, LayoutAfter: driver.LGeneral, Img: t.accum,
		},
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SFragment | driver.STransfer, AccessBefore: driver.ATransferWrite, AccessAfter: driver.AShaderRead | driver.ATransferRead},
			LayoutBefore: driver.LTransferDst, LayoutAfter: driver.LShaderRead, Img: t.display,
		},
	})
}

// recordPresent copies the display image to a swapchain image, runs the
// overlay and leaves the image ready for presentation.
func (c *Context) recordPresent(cb driver.CmdBuffer, target driver.Image) {
	display := c.tgt.display
	cb.Transition([]driver.Transition{
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.STransfer, AccessBefore: driver.ATransferWrite, AccessAfter: driver.ATransferRead},
			LayoutBefore: driver.LShaderRead, LayoutAfter: driver.LTransferSrc, Img: display,
		},
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.STransfer, AccessAfter: driver.ATransferWrite},
			LayoutBefore: driver.LUndefined, LayoutAfter: driver.LTransferDst, Img: target,
		},
	})
	cb.BlitImage(target, display, false)
	if c.overlay != nil {
		c.overlay(cb, target)
	}
	cb.Transition([]driver.Transition{
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SFragment, AccessBefore: driver.ATransferRead, AccessAfter: driver.AShaderRead},
			LayoutBefore: driver.LTransferSrc, LayoutAfter: driver.LShaderRead, Img: display,
		},
		{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SBottom, AccessBefore: driver.ATransferWrite},
			LayoutBefore: driver.LTransferDst, LayoutAfter: driver.LPresent, Img: target,
		},
	})
}
