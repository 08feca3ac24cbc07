package vkrt

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/mesh"
)

func TestKindOf(t *testing.T) {
	_, pathErr := os.Open("/nonexistent/vkrt")
	for _, tc := range []struct {
		err  error
		kind Kind
	}{
		{driver.ErrUnsupported, Unsupported},
		{fmt.Errorf("open: %w", driver.ErrNoDevice), Unsupported},
		{driver.ErrNoDeviceMemory, Exhausted},
		{fmt.Errorf("staging: %w", driver.ErrNoHostMemory), Exhausted},
		{driver.ErrDeviceLost, DeviceLost},
		{driver.ErrTimeout, DeviceLost},
		{mesh.ErrNoTriangles, InvalidMesh},
		{pathErr, IO},
		{errors.New("boom"), Internal},
		{&Error{Op: "export", Kind: Encode, Err: errors.New("bad")}, Encode},
	} {
		assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap("op", nil))

	err := wrap("load scene", fmt.Errorf("vertex buffer: %w", driver.ErrNoDeviceMemory))
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, Exhausted, e.Kind)
	assert.Equal(t, "load scene", e.Op)
	assert.True(t, errors.Is(err, driver.ErrNoDeviceMemory))
	assert.EqualError(t, err, "vkrt: load scene: vertex buffer: "+driver.ErrNoDeviceMemory.Error())

	outer := wrap("render frame", &Error{Op: "resize", Kind: Internal, Err: errors.New("x")})
	assert.True(t, errors.As(outer, &e))
	assert.Equal(t, "render frame: resize", e.Op)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(wrap("submit", driver.ErrDeviceLost)))
	assert.True(t, IsFatal(&Error{Kind: Unsupported, Err: driver.ErrUnsupported}))
	assert.False(t, IsFatal(wrap("load", driver.ErrNoDeviceMemory)))
	assert.False(t, IsFatal(&Error{Kind: IO}))
}
