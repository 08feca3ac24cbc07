// Package shaders holds the ray tracing programs and the push constant
// block they share with the host.
//
// The GLSL sources are compiled to SPIR-V with glslangValidator; the
// Vulkan backend loads the .spv files from a directory at run time. The
// CPU backend runs Go versions of the same programs, selected by name.
package shaders

//go:generate glslangValidator --target-env vulkan1.2 -o raygen.spv raygen.rgen
//go:generate glslangValidator --target-env vulkan1.2 -o miss.spv miss.rmiss
//go:generate glslangValidator --target-env vulkan1.2 -o closesthit.spv closesthit.rchit

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Program names. They double as the file stems of the compiled modules.
const (
	RayGen     = "raygen"
	Miss       = "miss"
	ClosestHit = "closesthit"
)

// Entry is the entry point of every stage.
const Entry = "main"

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Set is the code of the three programs.
type Set struct {
	RayGen     []byte
	Miss       []byte
	ClosestHit []byte
}

// Load reads the compiled modules from dir.
func Load(dir string) (*Set, error) {
	var s Set
	for name, dst := range map[string]*[]byte{RayGen: &s.RayGen, Miss: &s.Miss, ClosestHit: &s.ClosestHit} {
		path := filepath.Join(dir, name+".spv")
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("shaders: %w", err)
		}
		if !IsSPIRV(b) {
			return nil, fmt.Errorf("shaders: %s is not a SPIR-V module", path)
		}
		*dst = b
	}
	return &s, nil
}

// Builtin returns the program names understood by backends that run
// the programs natively instead of compiling SPIR-V.
func Builtin() *Set {
	return &Set{RayGen: []byte(RayGen), Miss: []byte(Miss), ClosestHit: []byte(ClosestHit)}
}

// IsSPIRV reports whether b starts with the SPIR-V magic number.
func IsSPIRV(b []byte) bool {
	return len(b) >= 20 && len(b)%4 == 0 && binary.LittleEndian.Uint32(b) == spirvMagic
}

// PushSize is the size in bytes of the encoded Push block.
const PushSize = 96

// Push mirrors the push constant block declared in common.glsl.
type Push struct {
	// Origin is the camera position; the fourth component is
	// the lens radius (zero for a pinhole camera).
	Origin     [4]float32
	LowerLeft  [4]float32
	Horizontal [4]float32
	Vertical   [4]float32
	Background [4]float32

	// SampleStart is the number of samples already accumulated;
	// zero makes the ray generation program discard the image.
	SampleStart uint32
	SampleCount uint32
	Seed        uint32
	Flags       uint32
}

// Bytes encodes p with the std430 layout of the GLSL block.
func (p *Push) Bytes() []byte {
	b := make([]byte, PushSize)
	for i, v := range [][4]float32{p.Origin, p.LowerLeft, p.Horizontal, p.Vertical, p.Background} {
		for k := 0; k < 4; k++ {
			binary.LittleEndian.PutUint32(b[16*i+4*k:], math.Float32bits(v[k]))
		}
	}
	binary.LittleEndian.PutUint32(b[80:], p.SampleStart)
	binary.LittleEndian.PutUint32(b[84:], p.SampleCount)
	binary.LittleEndian.PutUint32(b[88:], p.Seed)
	binary.LittleEndian.PutUint32(b[92:], p.Flags)
	return b
}

// DecodePush reads a block written by Bytes.
func DecodePush(b []byte) (p Push, err error) {
	if len(b) < PushSize {
		return p, fmt.Errorf("shaders: push block is %d bytes, want %d", len(b), PushSize)
	}
	for i, v := range []*[4]float32{&p.Origin, &p.LowerLeft, &p.Horizontal, &p.Vertical, &p.Background} {
		for k := 0; k < 4; k++ {
			v[k] = math.Float32frombits(binary.LittleEndian.Uint32(b[16*i+4*k:]))
		}
	}
	p.SampleStart = binary.LittleEndian.Uint32(b[80:])
	p.SampleCount = binary.LittleEndian.Uint32(b[84:])
	p.Seed = binary.LittleEndian.Uint32(b[88:])
	p.Flags = binary.LittleEndian.Uint32(b[92:])
	return p, nil
}

// PCG is the hash used to derive per-pixel random streams.
func PCG(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}
