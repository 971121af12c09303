package backend

import (
	"errors"

	"github.com/gogpu/fsr/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or no registered backend could open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU device.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU device (gogpu/wgpu).
	BackendNative = "native"
)

// Device is a gpucore.Device that owns its resources.
type Device interface {
	gpucore.Device

	// Destroy releases every resource the device holds.
	// It is safe to call more than once.
	Destroy()
}

// Factory opens a new device. A factory returns an error when its
// hardware or driver is missing.
type Factory func() (Device, error)
