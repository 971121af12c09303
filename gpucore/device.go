package gpucore

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Common device errors. Devices wrap these with resource details.
var (
	// ErrAllocation is returned when a target or buffer cannot be allocated.
	ErrAllocation = errors.New("gpucore: allocation failed")

	// ErrUnknownKernel is returned by LoadKernel for names the device cannot provide.
	ErrUnknownKernel = errors.New("gpucore: unknown kernel")

	// ErrInvalidResource is returned when a command references a released or unknown ID.
	ErrInvalidResource = errors.New("gpucore: invalid resource")

	// ErrUnsupportedFormat is returned for color formats the device cannot write from kernels.
	ErrUnsupportedFormat = errors.New("gpucore: unsupported format")
)

// Device is the host rendering service the pipeline is built on.
//
// It owns every GPU resource the pipeline touches. Release methods are
// idempotent: releasing InvalidID or an already-released ID is a no-op.
type Device interface {
	// LoadKernel resolves a compute kernel by name (for example KernelEASU).
	// A missing kernel returns an error wrapping ErrUnknownKernel.
	LoadKernel(name string) (KernelID, error)

	// AllocateTarget creates a persistent render target.
	AllocateTarget(desc *TargetDesc) (TargetID, error)

	// ReleaseTarget destroys a target created by AllocateTarget.
	ReleaseTarget(id TargetID)

	// AcquireTemporary returns a scratch target for single-frame use.
	// The target may come from a pool and its contents are undefined.
	AcquireTemporary(width, height int, format gputypes.TextureFormat) (TargetID, error)

	// ReleaseTemporary returns a scratch target to the pool.
	ReleaseTemporary(id TargetID)

	// CreateBuffer creates a structured buffer of count elements of stride bytes.
	CreateBuffer(count, stride int, label string) (BufferID, error)

	// DestroyBuffer destroys a buffer created by CreateBuffer.
	DestroyBuffer(id BufferID)

	// TargetInfo returns the descriptor a live target was created with.
	TargetInfo(id TargetID) (TargetDesc, bool)

	// NewEncoder starts a command stream.
	NewEncoder() Encoder
}

// Encoder records kernel parameters, dispatches and blits.
//
// Commands execute in recording order once Submit is called. Parameter
// setters affect only dispatches recorded after them.
type Encoder interface {
	// SetVector sets a float4 constant on every entry point of a kernel.
	SetVector(kernel KernelID, name PropertyID, v [4]float32)

	// SetFloat sets a scalar constant on every entry point of a kernel.
	SetFloat(kernel KernelID, name PropertyID, v float32)

	// SetBuffer binds a buffer to one entry point of a kernel.
	SetBuffer(kernel KernelID, index int, name PropertyID, buf BufferID)

	// SetTexture binds a target to one entry point of a kernel.
	SetTexture(kernel KernelID, index int, name PropertyID, target TargetID)

	// Dispatch runs an entry point over a grid of thread groups.
	Dispatch(kernel KernelID, index int, groups Groups)

	// Blit copies src to dst without scaling. Both targets must have the same size.
	Blit(src, dst TargetID)

	// Submit hands the recorded commands to the device. The encoder must
	// not be reused afterwards.
	Submit() error
}

// DynamicResolution is implemented by devices whose render backend can
// render subsequent passes at a fraction of the full target size.
type DynamicResolution interface {
	// ResizeBuffers sets the render scale. (1, 1) restores full resolution.
	ResizeBuffers(scaleX, scaleY float32)
}

// TemporaryTrimmer is implemented by devices that pool scratch targets.
// TrimTemporaries destroys the pooled targets not currently acquired.
type TemporaryTrimmer interface {
	TrimTemporaries()
}

// TargetUploader is implemented by devices that accept host pixel data.
// Pixels are tightly packed RGBA8 rows with the given stride in bytes.
type TargetUploader interface {
	UploadTarget(id TargetID, pix []byte, stride int) error
}

// TargetReader is implemented by devices that can read a target back to
// the host as tightly packed RGBA8 rows.
type TargetReader interface {
	ReadTarget(id TargetID) ([]byte, error)
}
