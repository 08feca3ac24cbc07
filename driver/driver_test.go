package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDriver struct{ name string }

func (d nopDriver) Name() string                    { return d.name }
func (d nopDriver) Devices() ([]DeviceInfo, error)  { return nil, nil }
func (d nopDriver) Open(opts *Options) (GPU, error) { return nil, ErrNoDevice }

func TestRegistry(t *testing.T) {
	Register(nopDriver{"zz-test"})
	Register(nopDriver{"aa-test"})

	drv, err := Lookup("zz-test")
	require.NoError(t, err)
	assert.Equal(t, "zz-test", drv.Name())

	_, err = Lookup("missing")
	assert.ErrorIs(t, err, ErrNotInstalled)

	names := []string{}
	for _, d := range Drivers() {
		names = append(names, d.Name())
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "aa-test")
}

func TestInstanceEncoding(t *testing.T) {
	in := Instance{
		Transform:   Identity(),
		CustomIndex: 0x123456,
		Mask:        0xff,
		SBTOffset:   2,
		Flags:       InstCullDisable | InstForceOpaque,
		AccelAddr:   0xdeadbeef00,
	}
	in.Transform[0][3] = 2.5

	b := make([]byte, InstanceSize)
	in.Encode(b)

	// Custom index in the low 24 bits, mask in the high 8.
	assert.Equal(t, []byte{0x56, 0x34, 0x12, 0xff}, b[48:52])
	assert.Equal(t, byte(InstCullDisable|InstForceOpaque), b[55])
	assert.Equal(t, in, DecodeInstance(b))
}

func TestPixelFmt(t *testing.T) {
	assert.Equal(t, 16, RGBA32f.Size())
	assert.Equal(t, 4, BGRA8sRGB.Size())
	assert.True(t, RGBA8sRGB.SRGB())
	assert.False(t, RGBA8un.SRGB())
	assert.Equal(t, "RGBA32f", RGBA32f.String())
}
