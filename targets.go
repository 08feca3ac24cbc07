package vkrt

import (
	"fmt"

	"github.com/celer/vkrt/driver"
)

// targets are the window sized images of a scene: the RGBA32F
// accumulation image written by the ray generation program and the
// RGBA8 sRGB display image sampled by the UI, with their sets.
type targets struct {
	w, h       int
	accum      driver.Image
	display    driver.Image
	rtSet      driver.DescSet
	displaySet driver.DescSet
	res        cleanup
}

// newTargets creates targets for sc. Between frames the accumulation
// image is in the general layout and the display image is shader
// readable.
func (c *Context) newTargets(w, h int, sc *scene) (_ *targets, err error) {
	if limit := c.gpu.Limits().MaxImageDim; w <= 0 || h <= 0 || w > limit || h > limit {
		return nil, fmt.Errorf("render target extent %dx%d out of range", w, h)
	}
	t := &targets{w: w, h: h}
	defer func() {
		if err != nil {
			c.retire(&t.res, err)
			t.res.run()
		}
	}()

	if t.accum, err = c.gpu.NewImage(driver.RGBA32f, w, h, driver.UStorage|driver.UCopySrc|driver.UCopyDst); err != nil {
		return nil, fmt.Errorf("accumulation image: %w", err)
	}
	t.res.add(t.accum)
	if t.display, err = c.gpu.NewImage(driver.RGBA8sRGB, w, h, driver.USampled|driver.UCopySrc|driver.UCopyDst); err != nil {
		return nil, fmt.Errorf("display image: %w", err)
	}
	t.res.add(t.display)

	bg := c.cfg.Background
	err = c.submitOnce(func(cb driver.CmdBuffer) {
		cb.Transition([]driver.Transition{
			{
				Barrier:      driver.Barrier{SyncBefore: driver.STop, SyncAfter: driver.STransfer, AccessAfter: driver.ATransferWrite},
				LayoutBefore: driver.LUndefined, LayoutAfter: driver.LGeneral, Img: t.accum,
			},
			{
				Barrier:      driver.Barrier{SyncBefore: driver.STop, SyncAfter: driver.STransfer, AccessAfter: driver.ATransferWrite},
				LayoutBefore: driver.LUndefined, LayoutAfter: driver.LTransferDst, Img: t.display,
			},
		})
		// Both images show the background until the first dispatch.
		cb.ClearImage(t.accum, [4]float32{bg[0], bg[1], bg[2], 1})
		cb.ClearImage(t.display, [4]float32{bg[0], bg[1], bg[2], 1})
		cb.Barrier([]driver.Barrier{{
			SyncBefore: driver.STransfer, SyncAfter: driver.SRayTracing | driver.STransfer,
			AccessBefore: driver.ATransferWrite, AccessAfter: driver.AShaderRead | driver.AShaderWrite | driver.ATransferRead,
		}})
		cb.Transition([]driver.Transition{{
			Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SFragment | driver.STransfer, AccessBefore: driver.ATransferWrite, AccessAfter: driver.AShaderRead | driver.ATransferRead},
			LayoutBefore: driver.LTransferDst, LayoutAfter: driver.LShaderRead, Img: t.display,
		}})
	})
	if err != nil {
		return nil, fmt.Errorf("render target layouts: %w", err)
	}

	if t.rtSet, err = bindRT(c.gpu, t.accum, sc); err != nil {
		return nil, err
	}
	t.res.add(t.rtSet)
	if t.displaySet, err = bindDisplay(c.gpu, t.display, c.sampler); err != nil {
		return nil, err
	}
	t.res.add(t.displaySet)
	return t, nil
}

func (t *targets) Destroy() { t.res.run() }
