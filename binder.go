package vkrt

import (
	"fmt"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/shaders"
)

// Bindings of the ray tracing descriptor set.
const (
	bindTarget   = 0
	bindTLAS     = 1
	bindVertices = 2
	bindIndices  = 3
)

var rtBindings = []driver.Descriptor{
	{Type: driver.DImage, Stages: driver.StageRayGen, Binding: bindTarget},
	{Type: driver.DAccel, Stages: driver.StageRayGen, Binding: bindTLAS},
	{Type: driver.DBuffer, Stages: driver.StageClosestHit, Binding: bindVertices},
	{Type: driver.DBuffer, Stages: driver.StageClosestHit, Binding: bindIndices},
}

// displayBindings is the set sampled by the UI layer.
var displayBindings = []driver.Descriptor{
	{Type: driver.DTexture, Stages: driver.StageFragment, Binding: 0},
}

// pipeline is the ray tracing pipeline with its shader binding table.
// Both live as long as the context.
type pipeline struct {
	pl  driver.RTPipeline
	sbt *sbt
}

func loadShaders(dir string) (*shaders.Set, error) {
	if dir == "" {
		return shaders.Builtin(), nil
	}
	return shaders.Load(dir)
}

func newPipeline(gpu driver.GPU, set *shaders.Set) (*pipeline, error) {
	var codes cleanup
	// Modules are only needed while the pipeline is created.
	defer codes.run()

	code := func(name string, b []byte) (driver.ShaderCode, error) {
		sc, err := gpu.NewShaderCode(b)
		if err != nil {
			return nil, fmt.Errorf("%s shader: %w", name, err)
		}
		codes.add(sc)
		return sc, nil
	}
	rgen, err := code(shaders.RayGen, set.RayGen)
	if err != nil {
		return nil, err
	}
	miss, err := code(shaders.Miss, set.Miss)
	if err != nil {
		return nil, err
	}
	chit, err := code(shaders.ClosestHit, set.ClosestHit)
	if err != nil {
		return nil, err
	}

	pl, err := gpu.NewRTPipeline(&driver.RTPipelineDesc{
		Bindings:     rtBindings,
		PushSize:     shaders.PushSize,
		RayGen:       driver.Stage{Code: rgen, Name: shaders.Entry},
		Miss:         []driver.Stage{{Code: miss, Name: shaders.Entry}},
		Hit:          []driver.Stage{{Code: chit, Name: shaders.Entry}},
		MaxRecursion: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("ray tracing pipeline: %w", err)
	}
	table, err := newSBT(gpu, pl, 1, 1)
	if err != nil {
		pl.Destroy()
		return nil, err
	}
	return &pipeline{pl: pl, sbt: table}, nil
}

func (p *pipeline) Destroy() {
	p.sbt.Destroy()
	p.pl.Destroy()
}

// bindRT creates the ray tracing set of a render target and a scene.
// The set is recreated whenever one of them is.
func bindRT(gpu driver.GPU, target driver.Image, sc *scene) (driver.DescSet, error) {
	set, err := gpu.NewDescSet(rtBindings)
	if err != nil {
		return nil, fmt.Errorf("ray tracing descriptor set: %w", err)
	}
	set.SetImage(bindTarget, target)
	set.SetAccel(bindTLAS, sc.tlas)
	set.SetBuffer(bindVertices, sc.vertices, 0, sc.vertices.Size())
	set.SetBuffer(bindIndices, sc.indices, 0, sc.indices.Size())
	return set, nil
}

// bindDisplay creates the set through which the UI samples the display
// image.
func bindDisplay(gpu driver.GPU, display driver.Image, splr driver.Sampler) (driver.DescSet, error) {
	set, err := gpu.NewDescSet(displayBindings)
	if err != nil {
		return nil, fmt.Errorf("display descriptor set: %w", err)
	}
	set.SetTexture(0, display, splr)
	return set, nil
}
