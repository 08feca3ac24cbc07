package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/celer/vkrt/driver"
)

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
)

// cmdBuffer records commands as closures that run on Submit.
type cmdBuffer struct {
	g         *GPU
	mu        sync.Mutex
	state     cmdState
	ops       []func(*execState)
	busyUntil time.Time
}

// execState is the state of one command buffer execution.
type execState struct {
	g        *GPU
	pipeline *rtPipeline
	set      *descSet
	push     []byte

	// Buffers written by transfers and structures written by builds
	// that no barrier has made visible yet.
	dirty  map[*buffer]bool
	pendAS map[*accel]bool
}

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	g.track("cmdbuffer", 1)
	return &cmdBuffer{g: g}, nil
}

func (cb *cmdBuffer) markBusy(until time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.busyUntil = until
}

func (cb *cmdBuffer) busy() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.busyUntil)
}

// Begin fails with driver.ErrPending while a previous submission of the
// buffer may still be executing.
func (cb *cmdBuffer) Begin() error {
	if cb.busy() {
		cb.g.violation("command buffer re-recorded while its submission is pending")
		return driver.ErrPending
	}
	cb.state = cmdRecording
	cb.ops = cb.ops[:0]
	return nil
}

func (cb *cmdBuffer) End() error {
	if cb.state != cmdRecording {
		return fmt.Errorf("soft: End on a command buffer that is not recording")
	}
	cb.state = cmdExecutable
	return nil
}

func (cb *cmdBuffer) record(name string, op func(*execState)) {
	if cb.state != cmdRecording {
		cb.g.violation("%s recorded outside Begin/End", name)
		return
	}
	cb.ops = append(cb.ops, op)
}

func (cb *cmdBuffer) execute() {
	es := &execState{g: cb.g, dirty: make(map[*buffer]bool), pendAS: make(map[*accel]bool)}
	for _, op := range cb.ops {
		op(es)
	}
}

func (es *execState) barrier(b driver.Barrier) {
	if b.AccessBefore&driver.ATransferWrite != 0 {
		for k := range es.dirty {
			delete(es.dirty, k)
		}
	}
	if b.AccessBefore&driver.AAccelWrite != 0 {
		for k := range es.pendAS {
			delete(es.pendAS, k)
		}
	}
}

func (cb *cmdBuffer) Barrier(bs []driver.Barrier) {
	bs = append([]driver.Barrier(nil), bs...)
	cb.record("Barrier", func(es *execState) {
		for _, b := range bs {
			es.barrier(b)
		}
	})
}

func (cb *cmdBuffer) Transition(ts []driver.Transition) {
	ts = append([]driver.Transition(nil), ts...)
	cb.record("Transition", func(es *execState) {
		for _, t := range ts {
			im := t.Img.(*image)
			if im.dead {
				es.g.violation("transition of a destroyed image")
				continue
			}
			if t.LayoutBefore != driver.LUndefined && im.layout != t.LayoutBefore {
				es.g.violation("transition of %v image from %v, but it is in %v", im.pf, t.LayoutBefore, im.layout)
			}
			im.layout = t.LayoutAfter
			es.barrier(t.Barrier)
		}
	})
}

func (cb *cmdBuffer) CopyBuffer(c *driver.BufferCopy) {
	cp := *c
	cb.record("CopyBuffer", func(es *execState) {
		from, to := cp.From.(*buffer), cp.To.(*buffer)
		switch {
		case from.dead || to.dead:
			es.g.violation("copy between destroyed buffers")
			return
		case from.usage&driver.UCopySrc == 0 || to.usage&driver.UCopyDst == 0:
			es.g.violation("buffer copy without copy usages")
			return
		case cp.FromOff < 0 || cp.ToOff < 0 || cp.Size <= 0 ||
			cp.FromOff+cp.Size > from.Size() || cp.ToOff+cp.Size > to.Size():
			es.g.violation("buffer copy of %d bytes out of range", cp.Size)
			return
		}
		copy(to.data[cp.ToOff:cp.ToOff+cp.Size], from.data[cp.FromOff:])
		es.dirty[to] = true
	})
}

func (cb *cmdBuffer) CopyImageToBuffer(dst driver.Buffer, off int64, src driver.Image) {
	cb.record("CopyImageToBuffer", func(es *execState) {
		b, im := dst.(*buffer), src.(*image)
		im.expect("image to buffer copy", driver.LTransferSrc)
		if b.usage&driver.UCopyDst == 0 || im.usage&driver.UCopySrc == 0 {
			es.g.violation("image to buffer copy without copy usages")
			return
		}
		if off < 0 || off+int64(len(im.data)) > b.Size() {
			es.g.violation("image of %d bytes does not fit buffer of %d at offset %d", len(im.data), b.Size(), off)
			return
		}
		copy(b.data[off:], im.data)
		es.dirty[b] = true
	})
}

func (cb *cmdBuffer) BlitImage(dst, src driver.Image, nearest bool) {
	cb.record("BlitImage", func(es *execState) {
		d, s := dst.(*image), src.(*image)
		s.expect("blit source", driver.LTransferSrc, driver.LGeneral)
		d.expect("blit destination", driver.LTransferDst, driver.LGeneral)
		if s.usage&driver.UCopySrc == 0 || d.usage&driver.UCopyDst == 0 {
			es.g.violation("blit without copy usages")
			return
		}
		blit(d, s, nearest)
	})
}

// blit scales src onto dst, converting through linear color.
func blit(d, s *image, nearest bool) {
	sx := float32(s.w) / float32(d.w)
	sy := float32(s.h) / float32(d.h)
	for y := 0; y < d.h; y++ {
		for x := 0; x < d.w; x++ {
			fx := (float32(x)+0.5)*sx - 0.5
			fy := (float32(y)+0.5)*sy - 0.5
			if nearest || (s.w == d.w && s.h == d.h) {
				d.setPixel(x, y, s.pixel(clamp(int(fx+0.5), s.w), clamp(int(fy+0.5), s.h)))
				continue
			}
			x0, y0 := int(floor(fx)), int(floor(fy))
			tx, ty := fx-float32(x0), fy-float32(y0)
			var c [4]float32
			for k, w := range [4]float32{(1 - tx) * (1 - ty), tx * (1 - ty), (1 - tx) * ty, tx * ty} {
				p := s.pixel(clamp(x0+k%2, s.w), clamp(y0+k/2, s.h))
				for i := range c {
					c[i] += p[i] * w
				}
			}
			d.setPixel(x, y, c)
		}
	}
}

func floor(v float32) float32 {
	i := float32(int(v))
	if i > v {
		i--
	}
	return i
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (cb *cmdBuffer) ClearImage(img driver.Image, color [4]float32) {
	cb.record("ClearImage", func(es *execState) {
		im := img.(*image)
		im.expect("clear", driver.LTransferDst, driver.LGeneral)
		for y := 0; y < im.h; y++ {
			for x := 0; x < im.w; x++ {
				im.setPixel(x, y, color)
			}
		}
	})
}

func (cb *cmdBuffer) BuildAccel(b *driver.AccelBuild) {
	bd := *b
	bd.Triangles = append([]driver.AccelTriangles(nil), b.Triangles...)
	cb.record("BuildAccel", func(es *execState) {
		g := es.g
		a := bd.Dst.(*accel)
		sizes, err := g.AccelBuildSizes(&bd)
		if err != nil {
			g.violation("acceleration structure build: %v", err)
			return
		}
		inputs := []uint64{bd.InstanceAddr}
		if bd.Level == driver.BottomLevel {
			inputs = inputs[:0]
			for _, t := range bd.Triangles {
				inputs = append(inputs, t.VertexAddr, t.IndexAddr)
			}
		}
		for _, addr := range inputs {
			if buf, _, err := g.resolve(addr, 1); err == nil {
				if es.dirty[buf] {
					g.violation("%v build reads a buffer written by a transfer without a barrier", a.level)
				}
				if buf.usage&driver.UAccelInput == 0 {
					g.violation("%v build input at %#x lacks UAccelInput usage", a.level, addr)
				}
			}
		}
		if bd.Level == driver.TopLevel {
			for blas := range es.pendAS {
				if blas.level == driver.BottomLevel {
					g.violation("top level build does not wait for bottom level builds")
					break
				}
			}
		}
		a.build(&bd, sizes)
		es.pendAS[a] = true
	})
}

func (cb *cmdBuffer) SetRTPipeline(pl driver.RTPipeline) {
	cb.record("SetRTPipeline", func(es *execState) {
		es.pipeline = pl.(*rtPipeline)
	})
}

func (cb *cmdBuffer) SetDescSet(pl driver.RTPipeline, set driver.DescSet) {
	cb.record("SetDescSet", func(es *execState) {
		ds := set.(*descSet)
		if !ds.compatible(pl.(*rtPipeline)) {
			es.g.violation("descriptor set is incompatible with the pipeline layout")
			return
		}
		es.set = ds
	})
}

func (cb *cmdBuffer) PushConstants(pl driver.RTPipeline, data []byte) {
	data = append([]byte(nil), data...)
	cb.record("PushConstants", func(es *execState) {
		if len(data) > pl.(*rtPipeline).pushSize {
			es.g.violation("push constants of %d bytes exceed the range of %d", len(data), pl.(*rtPipeline).pushSize)
			return
		}
		es.push = data
	})
}

func (cb *cmdBuffer) TraceRays(sbt *driver.SBT, w, h, d int) {
	t := *sbt
	cb.record("TraceRays", func(es *execState) {
		es.traceRays(&t, w, h, d)
	})
}

func (cb *cmdBuffer) Destroy() {
	if cb.busy() {
		cb.g.violation("command buffer destroyed while its submission is pending")
	}
	cb.g.track("cmdbuffer", -1)
}
