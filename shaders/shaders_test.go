package shaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLayout(t *testing.T) {
	p := Push{
		Origin:      [4]float32{1, 2, 3, 0.25},
		Background:  [4]float32{0.1, 0.2, 0.3, 1},
		SampleStart: 7,
		SampleCount: 2,
		Seed:        99,
	}
	b := p.Bytes()
	require.Len(t, b, PushSize)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[80:]))

	got, err := DecodePush(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodePush(b[:40])
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	module := make([]byte, 20)
	binary.LittleEndian.PutUint32(module, spirvMagic)
	for _, name := range []string{RayGen, Miss, ClosestHit} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".spv"), module, 0o644))
	}

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, module, s.ClosestHit)

	require.NoError(t, os.WriteFile(filepath.Join(dir, Miss+".spv"), []byte("miss"), 0o644))
	_, err = Load(dir)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestBuiltin(t *testing.T) {
	s := Builtin()
	assert.False(t, IsSPIRV(s.RayGen))
	assert.Equal(t, RayGen, string(s.RayGen))
}

func TestPCGSpread(t *testing.T) {
	seen := map[uint32]bool{}
	for i := uint32(0); i < 1000; i++ {
		seen[PCG(i)] = true
	}
	assert.Len(t, seen, 1000)
}
