package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent device resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// TargetID is an opaque handle to a render target (a 2D texture).
type TargetID uint64

// BufferID is an opaque handle to a structured parameter buffer.
type BufferID uint64

// KernelID is an opaque handle to a loaded compute kernel.
type KernelID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Kernel entry point indices.
const (
	// KernelMain applies the algorithm: read InputTexture, write OutputTexture.
	KernelMain = 0

	// KernelInit packs the parameter buffer from scalar/vector constants.
	// It is dispatched with a single 1x1x1 thread group.
	KernelInit = 1
)

// Kernel names understood by the devices in this module.
const (
	// KernelEASU is the edge adaptive spatial upsampling kernel.
	KernelEASU = "EdgeAdaptiveScaleUpsampling"

	// KernelRCAS is the robust contrast adaptive sharpening kernel.
	KernelRCAS = "RobustContrastAdaptiveSharpen"
)

// UintVectorSize is the size in bytes of one uint4 parameter element.
const UintVectorSize = 16

// ColorSpace describes how the values stored in a target are encoded.
type ColorSpace uint8

const (
	// ColorSpaceLinear stores linear light values.
	ColorSpaceLinear ColorSpace = iota

	// ColorSpaceSRGB stores sRGB-encoded values.
	ColorSpaceSRGB
)

// String returns the color space name.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceLinear:
		return "linear"
	case ColorSpaceSRGB:
		return "sRGB"
	default:
		return fmt.Sprintf("ColorSpace(%d)", c)
	}
}

// TargetDesc describes a render target allocation.
type TargetDesc struct {
	// Label is a debug label.
	Label string

	// Width and Height are the target dimensions in pixels. Both must be >= 1.
	Width  int
	Height int

	// Format is the color format of the target.
	Format gputypes.TextureFormat

	// ColorSpace is the encoding of the stored values.
	ColorSpace ColorSpace

	// RandomWrite enables unordered writes from compute kernels.
	RandomWrite bool
}

// Validate reports whether the descriptor can be allocated.
func (d *TargetDesc) Validate() error {
	if d == nil {
		return fmt.Errorf("gpucore: nil target descriptor")
	}
	if d.Width < 1 || d.Height < 1 {
		return fmt.Errorf("gpucore: target %q has invalid size %dx%d", d.Label, d.Width, d.Height)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("gpucore: target %q has undefined format", d.Label)
	}
	return nil
}

// Groups is a 3D thread-group count for a compute dispatch.
type Groups struct {
	X, Y, Z uint32
}

// String returns the group count as XxYxZ.
func (g Groups) String() string {
	return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z)
}

// Total returns the number of thread groups.
func (g Groups) Total() uint64 {
	return uint64(g.X) * uint64(g.Y) * uint64(g.Z)
}
