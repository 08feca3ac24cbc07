package vkrt

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/celer/vkrt/driver"
	"github.com/celer/vkrt/mesh"
)

// Kind classifies the errors returned by a Context.
type Kind int

const (
	// Internal is a failure that fits no other kind, usually a
	// programming error.
	Internal Kind = iota
	// Unsupported means the device lacks a required capability.
	Unsupported
	// Exhausted means host or device memory ran out. The operation
	// failed and the prior state is untouched.
	Exhausted
	// DeviceLost means the device stopped responding.
	DeviceLost
	// InvalidMesh means the mesh handed to LoadScene was rejected.
	InvalidMesh
	// IO is a file system failure of the export path.
	IO
	// Encode is an image encoding failure of the export path.
	Encode
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported hardware"
	case Exhausted:
		return "resource exhaustion"
	case DeviceLost:
		return "device lost"
	case InvalidMesh:
		return "invalid mesh"
	case IO:
		return "I/O error"
	case Encode:
		return "encode error"
	}
	return "internal error"
}

// ErrNoScene is returned by operations that need a loaded scene.
var ErrNoScene = errors.New("no scene loaded")

// Error is the error type returned by a Context. Op names the step that
// failed and Err the underlying status.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vkrt: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap returns err as an *Error for op, classifying it with KindOf.
// Errors that already are an *Error keep their kind and gain the outer
// step as a prefix.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Op: op + ": " + e.Op, Kind: e.Kind, Err: e.Err}
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// KindOf classifies err. Driver sentinels map to the matching kind;
// anything unknown is Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, driver.ErrUnsupported), errors.Is(err, driver.ErrNoDevice), errors.Is(err, driver.ErrNotInstalled):
		return Unsupported
	case errors.Is(err, driver.ErrNoDeviceMemory), errors.Is(err, driver.ErrNoHostMemory):
		return Exhausted
	case errors.Is(err, driver.ErrDeviceLost), errors.Is(err, driver.ErrTimeout):
		return DeviceLost
	case errors.Is(err, mesh.ErrNoTriangles):
		return InvalidMesh
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return IO
	}
	return Internal
}

// IsFatal reports whether err ends the session: the context must be
// destroyed and nothing can be retried.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case Unsupported, DeviceLost:
		return true
	}
	return false
}
