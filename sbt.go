package vkrt

import (
	"fmt"

	"github.com/celer/vkrt/driver"
)

func roundUp(v, a int64) int64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// SBTRegion is the placement of one shader binding table region
// relative to the start of the table.
type SBTRegion struct {
	Offset int64
	Stride int64
	Size   int64
}

// SBTLayout is the placement of the regions of a shader binding table.
// Records are spaced by the aligned handle size and every region starts
// on the group base alignment. The ray generation region holds a single
// record whose stride equals its size.
type SBTLayout struct {
	HandleSize        int64
	AlignedHandleSize int64

	RayGen   SBTRegion
	Miss     SBTRegion
	Hit      SBTRegion
	Callable SBTRegion

	Size int64
}

// LayoutSBT computes the layout of a table with one ray generation
// record, missCount miss records and hitCount hit records.
func LayoutSBT(l driver.Limits, missCount, hitCount int) SBTLayout {
	hs := int64(l.ShaderGroupHandleSize)
	base := int64(l.ShaderGroupBaseAlignment)
	aligned := roundUp(hs, int64(l.ShaderGroupHandleAlignment))

	var s SBTLayout
	s.HandleSize, s.AlignedHandleSize = hs, aligned

	rg := roundUp(aligned, base)
	s.RayGen = SBTRegion{Offset: 0, Stride: rg, Size: rg}
	s.Miss = SBTRegion{Offset: s.RayGen.Size, Stride: aligned, Size: roundUp(int64(missCount)*aligned, base)}
	s.Hit = SBTRegion{Offset: s.Miss.Offset + s.Miss.Size, Stride: aligned, Size: roundUp(int64(hitCount)*aligned, base)}
	s.Callable = SBTRegion{Offset: s.Hit.Offset + s.Hit.Size}
	s.Size = s.RayGen.Size + s.Miss.Size + s.Hit.Size
	return s
}

// Fill copies the group handles into table, which starts at a region
// base aligned address. Handle i of a region is placed at the region
// offset plus i times the stride; padding is left untouched.
func (s *SBTLayout) Fill(table, handles []byte, missCount, hitCount int) error {
	groups := 1 + missCount + hitCount
	if int64(len(handles)) < int64(groups)*s.HandleSize {
		return fmt.Errorf("have %d bytes of group handles, want %d", len(handles), int64(groups)*s.HandleSize)
	}
	if int64(len(table)) < s.Size {
		return fmt.Errorf("table of %d bytes is smaller than the layout size %d", len(table), s.Size)
	}
	handle := func(g int) []byte { return handles[int64(g)*s.HandleSize : int64(g+1)*s.HandleSize] }

	copy(table[s.RayGen.Offset:], handle(0))
	for i := 0; i < missCount; i++ {
		copy(table[s.Miss.Offset+int64(i)*s.Miss.Stride:], handle(1+i))
	}
	for i := 0; i < hitCount; i++ {
		copy(table[s.Hit.Offset+int64(i)*s.Hit.Stride:], handle(1+missCount+i))
	}
	return nil
}

// sbt is a shader binding table in a host visible buffer.
type sbt struct {
	layout SBTLayout
	buf    driver.Buffer
	table  driver.SBT
}

// newSBT builds the table of pl. The buffer is over-allocated by the
// base alignment so that the first region can start on an aligned
// device address whatever the buffer's own alignment.
func newSBT(gpu driver.GPU, pl driver.RTPipeline, missCount, hitCount int) (*sbt, error) {
	limits := gpu.Limits()
	layout := LayoutSBT(limits, missCount, hitCount)
	handles, err := pl.GroupHandles()
	if err != nil {
		return nil, fmt.Errorf("shader group handles: %w", err)
	}

	base := int64(limits.ShaderGroupBaseAlignment)
	buf, err := gpu.NewBuffer(layout.Size+base, true, driver.UShaderBinding|driver.UDeviceAddress)
	if err != nil {
		return nil, fmt.Errorf("shader binding table buffer: %w", err)
	}
	addr := buf.Addr()
	start := roundUp(int64(addr), base) - int64(addr)
	if err := layout.Fill(buf.Bytes()[start:], handles, missCount, hitCount); err != nil {
		buf.Destroy()
		return nil, err
	}

	region := func(r SBTRegion) driver.SBTRegion {
		if r.Size == 0 {
			return driver.SBTRegion{}
		}
		return driver.SBTRegion{Addr: addr + uint64(start+r.Offset), Stride: r.Stride, Size: r.Size}
	}
	s := &sbt{layout: layout, buf: buf}
	s.table = driver.SBT{
		RayGen:   region(layout.RayGen),
		Miss:     region(layout.Miss),
		Hit:      region(layout.Hit),
		Callable: region(layout.Callable),
	}
	logger.Debugf("shader binding table: %d bytes, handle %d aligned to %d", layout.Size, layout.HandleSize, layout.AlignedHandleSize)
	return s, nil
}

func (s *sbt) Destroy() { s.buf.Destroy() }
