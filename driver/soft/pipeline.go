package soft

import (
	"encoding/binary"
	"fmt"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/shaders"
)

var handleMagic = [4]byte{'S', 'O', 'F', 'T'}

type shaderCode struct {
	g    *GPU
	name string
}

// NewShaderCode implements driver.GPU. The soft backend runs built-in
// programs; data must hold the name of one of them.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	name := string(data)
	if _, ok := programs[name]; !ok {
		if shaders.IsSPIRV(data) {
			return nil, fmt.Errorf("soft: SPIR-V modules cannot run on the CPU: %w", driver.ErrUnsupported)
		}
		return nil, fmt.Errorf("soft: unknown program %q", name)
	}
	g.track("shader", 1)
	return &shaderCode{g: g, name: name}, nil
}

func (s *shaderCode) Destroy() { s.g.track("shader", -1) }

type group struct {
	kind driver.ShaderStage
	prog *program
}

type rtPipeline struct {
	g        *GPU
	id       uint32
	groups   []group
	bindings []driver.Descriptor
	pushSize int
}

// NewRTPipeline implements driver.GPU.
func (g *GPU) NewRTPipeline(desc *driver.RTPipelineDesc) (driver.RTPipeline, error) {
	if !g.Features().RayTracing {
		return nil, driver.ErrUnsupported
	}
	if desc.PushSize > g.limits.MaxPushSize {
		return nil, fmt.Errorf("soft: push constant size %d exceeds %d", desc.PushSize, g.limits.MaxPushSize)
	}

	g.mu.Lock()
	g.pipeIDs++
	pl := &rtPipeline{g: g, id: g.pipeIDs, bindings: desc.Bindings, pushSize: desc.PushSize}
	g.mu.Unlock()

	add := func(st driver.Stage, kind driver.ShaderStage) error {
		sc, ok := st.Code.(*shaderCode)
		if !ok {
			return fmt.Errorf("soft: stage code %T is not soft shader code", st.Code)
		}
		p := programs[sc.name]
		if p.kind != kind {
			return fmt.Errorf("soft: program %q used in the wrong stage", sc.name)
		}
		pl.groups = append(pl.groups, group{kind: kind, prog: p})
		return nil
	}
	if err := add(desc.RayGen, driver.StageRayGen); err != nil {
		return nil, err
	}
	for _, st := range desc.Miss {
		if err := add(st, driver.StageMiss); err != nil {
			return nil, err
		}
	}
	for _, st := range desc.Hit {
		if err := add(st, driver.StageClosestHit); err != nil {
			return nil, err
		}
	}
	g.track("pipeline", 1)
	return pl, nil
}

func (pl *rtPipeline) GroupCount() int { return len(pl.groups) }

// GroupHandles returns one handle per group: a magic word, the
// pipeline id and the group index, zero padded to the handle size.
func (pl *rtPipeline) GroupHandles() ([]byte, error) {
	hs := pl.g.limits.ShaderGroupHandleSize
	if hs < 12 {
		return nil, fmt.Errorf("soft: handle size %d too small", hs)
	}
	b := make([]byte, hs*len(pl.groups))
	for i := range pl.groups {
		h := b[i*hs:]
		copy(h, handleMagic[:])
		binary.LittleEndian.PutUint32(h[4:], pl.id)
		binary.LittleEndian.PutUint32(h[8:], uint32(i))
	}
	return b, nil
}

// groupAt decodes the handle stored at a device address.
func (pl *rtPipeline) groupAt(addr uint64, kind driver.ShaderStage, what string) *group {
	hs := int64(pl.g.limits.ShaderGroupHandleSize)
	h := pl.g.read(addr, hs, what)
	if h == nil {
		return nil
	}
	if [4]byte{h[0], h[1], h[2], h[3]} != handleMagic || binary.LittleEndian.Uint32(h[4:]) != pl.id {
		pl.g.violation("%s record at %#x does not hold a handle of the bound pipeline", what, addr)
		return nil
	}
	idx := int(binary.LittleEndian.Uint32(h[8:]))
	if idx >= len(pl.groups) || pl.groups[idx].kind != kind {
		pl.g.violation("%s record at %#x holds group %d of the wrong kind", what, addr, idx)
		return nil
	}
	return &pl.groups[idx]
}

func (pl *rtPipeline) Destroy() { pl.g.track("pipeline", -1) }

type descSet struct {
	g        *GPU
	bindings map[int]driver.DescType
	images   map[int]*image
	accels   map[int]*accel
	buffers  map[int]bufferRange
	samplers map[int]*sampler
}

type bufferRange struct {
	buf       *buffer
	off, size int64
}

// NewDescSet implements driver.GPU.
func (g *GPU) NewDescSet(bindings []driver.Descriptor) (driver.DescSet, error) {
	ds := &descSet{
		g:        g,
		bindings: make(map[int]driver.DescType, len(bindings)),
		images:   make(map[int]*image),
		accels:   make(map[int]*accel),
		buffers:  make(map[int]bufferRange),
		samplers: make(map[int]*sampler),
	}
	for _, b := range bindings {
		if _, dup := ds.bindings[b.Binding]; dup {
			return nil, fmt.Errorf("soft: binding %d declared twice", b.Binding)
		}
		ds.bindings[b.Binding] = b.Type
	}
	g.track("descset", 1)
	return ds, nil
}

func (ds *descSet) check(binding int, t driver.DescType) bool {
	if bt, ok := ds.bindings[binding]; !ok || bt != t {
		ds.g.violation("descriptor write of type %d to binding %d declared as %d", t, binding, bt)
		return false
	}
	return true
}

func (ds *descSet) SetImage(binding int, img driver.Image) {
	if ds.check(binding, driver.DImage) {
		ds.images[binding] = img.(*image)
	}
}

func (ds *descSet) SetAccel(binding int, as driver.AccelStruct) {
	if ds.check(binding, driver.DAccel) {
		ds.accels[binding] = as.(*accel)
	}
}

func (ds *descSet) SetBuffer(binding int, buf driver.Buffer, off, size int64) {
	if ds.check(binding, driver.DBuffer) {
		ds.buffers[binding] = bufferRange{buf: buf.(*buffer), off: off, size: size}
	}
}

func (ds *descSet) SetTexture(binding int, img driver.Image, splr driver.Sampler) {
	if ds.check(binding, driver.DTexture) {
		ds.images[binding] = img.(*image)
		ds.samplers[binding] = splr.(*sampler)
	}
}

func (ds *descSet) Destroy() { ds.g.track("descset", -1) }

// compatible reports whether the set declares the pipeline's bindings.
func (ds *descSet) compatible(pl *rtPipeline) bool {
	if len(ds.bindings) != len(pl.bindings) {
		return false
	}
	for _, b := range pl.bindings {
		if t, ok := ds.bindings[b.Binding]; !ok || t != b.Type {
			return false
		}
	}
	return true
}
