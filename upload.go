package vkrt

import (
	"errors"
	"fmt"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/mesh"
)

// Instance places the scene mesh in the top level structure.
type Instance struct {
	Transform [3][4]float32
	// Mask is matched against the ray mask; zero means 0xff.
	Mask  uint8
	Flags driver.InstanceFlags
}

// SceneDesc is a mesh with its instances. No instances means a single
// instance with the identity transform.
type SceneDesc struct {
	Mesh      *mesh.Mesh
	Instances []Instance
}

// scene holds the device side of a SceneDesc. Nothing in it is
// modified after the load.
type scene struct {
	mesh      *mesh.Mesh
	vertices  driver.Buffer
	indices   driver.Buffer
	blas      driver.AccelStruct
	tlas      driver.AccelStruct
	instances int
	res       cleanup
}

func (s *scene) Destroy() { s.res.run() }

// LoadScene uploads m as a single instance scene and creates render
// targets of w x h pixels.
func (c *Context) LoadScene(w, h int, m *mesh.Mesh) error {
	return c.LoadSceneDesc(w, h, SceneDesc{Mesh: m})
}

// LoadSceneDesc uploads desc and creates render targets of w x h
// pixels. The load is transactional: on failure the previous scene and
// targets are left as they were. On success they are destroyed and
// accumulation restarts.
func (c *Context) LoadSceneDesc(w, h int, desc SceneDesc) error {
	const op = "load scene"
	if desc.Mesh == nil {
		return &Error{Op: op, Kind: InvalidMesh, Err: errors.New("no mesh")}
	}
	if err := desc.Mesh.Validate(); err != nil {
		return &Error{Op: op, Kind: InvalidMesh, Err: err}
	}

	sc, err := c.uploadScene(&desc)
	if err != nil {
		return wrap(op, err)
	}
	t, err := c.newTargets(w, h, sc)
	if err != nil {
		sc.Destroy()
		return wrap(op, err)
	}

	// The previous scene may still be read by frames in flight.
	if err := c.gpu.WaitIdle(); err != nil {
		t.Destroy()
		sc.Destroy()
		return wrap(op, err)
	}
	c.destroyScene()
	c.scene, c.tgt = sc, t
	c.accum.Reset()
	logger.Infof("loaded %q: %d vertices, %d triangles, %d instance(s), %dx%d",
		desc.Mesh.Name, desc.Mesh.VertexCount(), desc.Mesh.TriangleCount(), sc.instances, w, h)
	return nil
}

// DestroyScene idles the device and releases the scene and its render
// targets.
func (c *Context) DestroyScene() error {
	if c.scene == nil {
		return nil
	}
	if err := c.gpu.WaitIdle(); err != nil {
		return wrap("destroy scene", err)
	}
	c.destroyScene()
	return nil
}

func (c *Context) destroyScene() {
	if c.tgt != nil {
		c.tgt.Destroy()
		c.tgt = nil
	}
	if c.scene != nil {
		c.scene.Destroy()
		c.scene = nil
	}
	c.accum.Reset()
}

// uploadScene creates the mesh buffers, the bottom level structure of
// the mesh and the top level structure of its instances. Every object
// is registered on a transaction stack that is unwound on failure.
func (c *Context) uploadScene(desc *SceneDesc) (_ *scene, err error) {
	var tx cleanup
	defer func() {
		c.retire(&tx, err)
		tx.run()
	}()

	m := desc.Mesh
	sc := &scene{mesh: m}
	geometry := driver.UCopyDst | driver.UStorage | driver.UAccelInput | driver.UDeviceAddress
	if sc.vertices, err = c.deviceBuffer(float32Bytes(m.Vertices), geometry); err != nil {
		return nil, fmt.Errorf("vertex buffer: %w", err)
	}
	tx.add(sc.vertices)
	if sc.indices, err = c.deviceBuffer(uint32Bytes(m.Indices), geometry); err != nil {
		return nil, fmt.Errorf("index buffer: %w", err)
	}
	tx.add(sc.indices)

	sc.blas, err = c.buildAccel(&tx, &driver.AccelBuild{
		Level: driver.BottomLevel,
		Triangles: []driver.AccelTriangles{{
			VertexAddr:    sc.vertices.Addr(),
			VertexStride:  12,
			VertexCount:   m.VertexCount(),
			IndexAddr:     sc.indices.Addr(),
			TriangleCount: m.TriangleCount(),
			Opaque:        true,
		}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("bottom level build: %w", err)
	}

	insts := desc.Instances
	if len(insts) == 0 {
		insts = []Instance{{Transform: driver.Identity()}}
	}
	raw := make([]byte, len(insts)*driver.InstanceSize)
	for i, in := range insts {
		rec := driver.Instance{
			Transform:   in.Transform,
			CustomIndex: uint32(i),
			Mask:        in.Mask,
			Flags:       in.Flags,
			AccelAddr:   sc.blas.Addr(),
		}
		if rec.Mask == 0 {
			rec.Mask = 0xff
		}
		rec.Encode(raw[i*driver.InstanceSize:])
	}
	sc.instances = len(insts)

	instBuf, err := c.gpu.NewBuffer(int64(len(raw)), false, driver.UCopyDst|driver.UAccelInput|driver.UDeviceAddress)
	if err != nil {
		return nil, fmt.Errorf("instance buffer: %w", err)
	}
	tx.add(instBuf)
	staging, err := c.gpu.NewBuffer(int64(len(raw)), true, driver.UCopySrc)
	if err != nil {
		return nil, fmt.Errorf("instance staging buffer: %w", err)
	}
	defer staging.Destroy()
	copy(staging.Bytes(), raw)

	// The instance records are copied in the build's command buffer,
	// so the build waits for the copy through a barrier.
	sc.tlas, err = c.buildAccel(&tx, &driver.AccelBuild{
		Level:         driver.TopLevel,
		InstanceAddr:  instBuf.Addr(),
		InstanceCount: len(insts),
	}, func(cb driver.CmdBuffer) {
		cb.CopyBuffer(&driver.BufferCopy{From: staging, To: instBuf, Size: int64(len(raw))})
	})
	if err != nil {
		return nil, fmt.Errorf("top level build: %w", err)
	}

	sc.res = tx.take()
	return sc, nil
}

// deviceBuffer creates a device local buffer holding data.
func (c *Context) deviceBuffer(data []byte, usg driver.Usage) (driver.Buffer, error) {
	buf, err := c.gpu.NewBuffer(int64(len(data)), false, usg|driver.UCopyDst)
	if err != nil {
		return nil, err
	}
	if err := c.upload(buf, data); err != nil {
		res := cleanup{buf.Destroy}
		c.retire(&res, err)
		res.run()
		return nil, err
	}
	return buf, nil
}

// buildAccel allocates the storage of an acceleration structure on tx
// and builds it in a short-lived command buffer, after the commands
// recorded by pre. The scratch buffer is released right after the
// build.
func (c *Context) buildAccel(tx *cleanup, b *driver.AccelBuild, pre func(cb driver.CmdBuffer)) (_ driver.AccelStruct, err error) {
	sizes, err := c.gpu.AccelBuildSizes(b)
	if err != nil {
		return nil, err
	}
	buf, err := c.gpu.NewBuffer(sizes.AccelSize, false, driver.UAccelStorage|driver.UDeviceAddress)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	tx.add(buf)
	as, err := c.gpu.NewAccelStruct(b.Level, buf, 0, sizes.AccelSize)
	if err != nil {
		return nil, err
	}
	tx.add(as)

	align := int64(c.gpu.Limits().ScratchAlignment)
	scratch, err := c.gpu.NewBuffer(sizes.ScratchSize+align, false, driver.UStorage|driver.UDeviceAddress)
	if err != nil {
		return nil, fmt.Errorf("scratch: %w", err)
	}
	res := cleanup{scratch.Destroy}
	defer func() {
		c.retire(&res, err)
		res.run()
	}()

	b.Dst = as
	b.ScratchAddr = uint64(roundUp(int64(scratch.Addr()), align))
	err = c.submitOnce(func(cb driver.CmdBuffer) {
		if pre != nil {
			pre(cb)
		}
		cb.Barrier([]driver.Barrier{{
			SyncBefore:   driver.STransfer | driver.SAccelBuild,
			SyncAfter:    driver.SAccelBuild,
			AccessBefore: driver.ATransferWrite | driver.AAccelWrite,
			AccessAfter:  driver.AAccelRead,
		}})
		cb.BuildAccel(b)
	})
	if err != nil {
		return nil, err
	}
	logger.Debugf("built %v structure: %d bytes, %d bytes of scratch", b.Level, sizes.AccelSize, sizes.ScratchSize)
	return as, nil
}
