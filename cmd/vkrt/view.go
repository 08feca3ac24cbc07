package main

import (
	"path/filepath"

	"github.com/chewxy/math32"
	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkrt"
	"github.com/celer/vkrt/driver/vkg"
	"github.com/celer/vkrt/mesh"
)

// Orbit step per key press, in radians.
const orbitStep = math32.Pi / 36

// orbit places the camera on a sphere around the framed mesh.
type orbit struct {
	base       vkrt.Camera
	yaw, pitch float32
}

func (o *orbit) camera() vkrt.Camera {
	cam := o.base
	var dist float32
	for i := 0; i < 3; i++ {
		d := o.base.Position[i] - o.base.Target[i]
		dist += d * d
	}
	dist = math32.Sqrt(dist)
	cy, sy := math32.Cos(o.yaw), math32.Sin(o.yaw)
	cp, sp := math32.Cos(o.pitch), math32.Sin(o.pitch)
	cam.Position = lin.Vec3{
		o.base.Target[0] + dist*sy*cp,
		o.base.Target[1] + dist*sp,
		o.base.Target[2] + dist*cy*cp,
	}
	return cam
}

// watch sends on the returned channel when the file at path is written
// or replaced. The directory is watched so that editors replacing the
// file are noticed.
func watch(path string) (*fsnotify.Watcher, <-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, nil, err
	}
	path = filepath.Clean(path)
	changed := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warningf("watch %s: %v", path, err)
			}
		}
	}()
	return w, changed, nil
}

// View renders a mesh in a window until it is closed.
func View(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if !ctx.IsSet("driver") {
		cfg.Driver = vkg.Name
	}
	m, err := loadMesh(ctx)
	if err != nil {
		return err
	}

	win, err := newWindow("vkrt", ctx.Int("width"), ctx.Int("height"))
	if err != nil {
		return err
	}
	defer win.Destroy()

	rc, err := vkrt.CreateContext(win, cfg)
	if err != nil {
		return err
	}
	defer rc.Destroy()

	w, h := win.Extent()
	if err := rc.LoadScene(w, h, m); err != nil {
		return err
	}

	var reload <-chan struct{}
	if ctx.Bool("watch") && ctx.NArg() > 0 {
		watcher, changed, err := watch(ctx.Args().First())
		if err != nil {
			return err
		}
		defer watcher.Close()
		reload = changed
	}

	orb := &orbit{base: vkrt.DefaultCamera(m)}
	out := ctx.String("out")
	win.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		rc.Invalidate(width, height)
	})
	win.win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Release {
			return
		}
		switch key {
		case glfw.KeyEscape:
			gw.SetShouldClose(true)
		case glfw.KeyLeft:
			orb.yaw -= orbitStep
		case glfw.KeyRight:
			orb.yaw += orbitStep
		case glfw.KeyUp:
			orb.pitch = math32.Min(orb.pitch+orbitStep, math32.Pi/2-orbitStep)
		case glfw.KeyDown:
			orb.pitch = math32.Max(orb.pitch-orbitStep, -math32.Pi/2+orbitStep)
		case glfw.KeyR:
			rc.ResetAccumulation()
		case glfw.KeyP:
			if err := rc.Export(out); err != nil {
				logger.Warningf("export: %v", err)
			} else {
				logger.Noticef("wrote %s", out)
			}
		}
	})

	for !win.win.ShouldClose() {
		glfw.PollEvents()

		select {
		case <-reload:
			if nm, err := mesh.Load(ctx.Args().First()); err != nil {
				logger.Warningf("reload: %v", err)
			} else if w, h := rc.Extent(); rc.LoadScene(w, h, nm) != nil {
				logger.Warningf("reload: scene upload failed, keeping previous scene")
			} else {
				orb.base = vkrt.DefaultCamera(nm)
				logger.Infof("reloaded %s", ctx.Args().First())
			}
		default:
		}

		if err := rc.RenderFrame(orb.camera()); err != nil {
			if vkrt.IsFatal(err) {
				return err
			}
			logger.Warning(err)
		}
	}
	logger.Infof("%d frames, %d samples", rc.Stats().Frames, rc.Stats().Samples)
	return nil
}
