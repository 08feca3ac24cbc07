package driver

import (
	"encoding/binary"
	"math"
)

// InstanceSize is the size in bytes of an encoded Instance.
const InstanceSize = 64

// InstanceFlags controls per-instance culling and opacity.
type InstanceFlags uint8

const (
	InstCullDisable InstanceFlags = 1 << iota
	InstFlipFacing
	InstForceOpaque
	InstForceNoOpaque
)

// Instance is a top level acceleration structure instance record.
// Its encoding matches VkAccelerationStructureInstanceKHR: a row
// major 3x4 transform, the custom index in the low 24 bits of a
// word with the mask in the high 8, the SBT record offset with
// the flags likewise, and the bottom level structure address.
type Instance struct {
	Transform   [3][4]float32
	CustomIndex uint32
	Mask        uint8
	SBTOffset   uint32
	Flags       InstanceFlags
	AccelAddr   uint64
}

// Identity returns the identity instance transform.
func Identity() [3][4]float32 {
	return [3][4]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// Encode writes the instance into b, which must be at least
// InstanceSize bytes long.
func (in *Instance) Encode(b []byte) {
	_ = b[InstanceSize-1]
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(b[16*r+4*c:], math.Float32bits(in.Transform[r][c]))
		}
	}
	binary.LittleEndian.PutUint32(b[48:], in.CustomIndex&0xffffff|uint32(in.Mask)<<24)
	binary.LittleEndian.PutUint32(b[52:], in.SBTOffset&0xffffff|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(b[56:], in.AccelAddr)
}

// DecodeInstance reads an instance written by Encode.
func DecodeInstance(b []byte) Instance {
	_ = b[InstanceSize-1]
	var in Instance
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			in.Transform[r][c] = math.Float32frombits(binary.LittleEndian.Uint32(b[16*r+4*c:]))
		}
	}
	w := binary.LittleEndian.Uint32(b[48:])
	in.CustomIndex, in.Mask = w&0xffffff, uint8(w>>24)
	w = binary.LittleEndian.Uint32(b[52:])
	in.SBTOffset, in.Flags = w&0xffffff, InstanceFlags(w>>24)
	in.AccelAddr = binary.LittleEndian.Uint64(b[56:])
	return in
}
