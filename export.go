package vkrt

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/celer/vkrt/driver"
)

type encoder func(w io.Writer, img image.Image) error

var encoders = map[string]encoder{
	".png":  png.Encode,
	".bmp":  bmp.Encode,
	".tif":  tiffEncode,
	".tiff": tiffEncode,
}

func tiffEncode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

// Readback copies the accumulation image to the host as 8 bit sRGB. It
// idles the device first, so it must not be interleaved with frame
// recording.
func (c *Context) Readback() (*image.NRGBA, error) {
	img, err := c.readback()
	if err != nil {
		return nil, wrap("readback", err)
	}
	return img, nil
}

func (c *Context) readback() (_ *image.NRGBA, err error) {
	if c.tgt == nil {
		return nil, ErrNoScene
	}
	if err := c.gpu.WaitIdle(); err != nil {
		return nil, err
	}
	t := c.tgt
	w, h := t.w, t.h

	var res cleanup
	defer func() {
		c.retire(&res, err)
		res.run()
	}()
	dst, err := c.gpu.NewImage(driver.RGBA8sRGB, w, h, driver.UCopyDst|driver.UCopySrc)
	if err != nil {
		return nil, fmt.Errorf("export image: %w", err)
	}
	res.add(dst)
	size := int64(w * h * driver.RGBA8sRGB.Size())
	staging, err := c.gpu.NewBuffer(size, true, driver.UCopyDst)
	if err != nil {
		return nil, fmt.Errorf("export staging buffer: %w", err)
	}
	res.add(staging)

	err = c.submitOnce(func(cb driver.CmdBuffer) {
		cb.Transition([]driver.Transition{
			{
				Barrier:      driver.Barrier{SyncBefore: driver.STop, SyncAfter: driver.STransfer, AccessAfter: driver.ATransferWrite},
				LayoutBefore: driver.LUndefined, LayoutAfter: driver.LTransferDst, Img: dst,
			},
			{
				Barrier:      driver.Barrier{SyncBefore: driver.SRayTracing, SyncAfter: driver.STransfer, AccessBefore: driver.AShaderWrite, AccessAfter: driver.ATransferRead},
				LayoutBefore: driver.LGeneral, LayoutAfter: driver.LTransferSrc, Img: t.accum,
			},
		})
		cb.BlitImage(dst, t.accum, true)
		cb.Transition([]driver.Transition{
			{
				Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.STransfer, AccessBefore: driver.ATransferWrite, AccessAfter: driver.ATransferRead},
				LayoutBefore: driver.LTransferDst, LayoutAfter: driver.LTransferSrc, Img: dst,
			},
			{
				Barrier:      driver.Barrier{SyncBefore: driver.STransfer, SyncAfter: driver.SRayTracing, AccessBefore: driver.ATransferRead, AccessAfter: driver.AShaderRead | driver.AShaderWrite},
				LayoutBefore: driver.LTransferSrc, LayoutAfter: driver.LGeneral, Img: t.accum,
			},
		})
		cb.CopyImageToBuffer(staging, 0, dst)
		cb.Barrier([]driver.Barrier{{
			SyncBefore: driver.STransfer, SyncAfter: driver.SHost,
			AccessBefore: driver.ATransferWrite, AccessAfter: driver.AHostRead,
		}})
	})
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, staging.Bytes())
	return img, nil
}

// Export writes the current estimate to path. The format follows the
// extension: .png, .bmp, .tif or .tiff. Failures leave the scene
// untouched and no partial file behind.
func (c *Context) Export(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	enc, ok := encoders[ext]
	if !ok {
		return &Error{Op: "export", Kind: Encode, Err: fmt.Errorf("unsupported image format %q", ext)}
	}
	return c.export("export", path, enc)
}

// ExportPNG writes the current estimate to path as PNG whatever its
// extension.
func (c *Context) ExportPNG(path string) error {
	return c.export("export png", path, png.Encode)
}

func (c *Context) export(op, path string, enc encoder) error {
	img, err := c.readback()
	if err != nil {
		return wrap(op, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return &Error{Op: op, Kind: IO, Err: err}
	}
	if err := enc(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return &Error{Op: op, Kind: Encode, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &Error{Op: op, Kind: IO, Err: err}
	}
	logger.Infof("exported %dx%d image to %s", img.Rect.Dx(), img.Rect.Dy(), path)
	return nil
}
