package fsr

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

// Parameter buffer layouts: 4 and 1 uint4 elements.
const (
	easuParamCount = 4
	rcasParamCount = 1
)

// Targets are the full-resolution intermediate targets of one frame.
type Targets struct {
	// Upscaled receives the EASU output.
	Upscaled gpucore.TargetID

	// Sharpened receives the RCAS output. It is InvalidID while
	// sharpening is off.
	Sharpened gpucore.TargetID

	Width, Height int
	Format        gputypes.TextureFormat
}

// Output returns the target the composite blit reads from.
func (t Targets) Output() gpucore.TargetID {
	if t.Sharpened != gpucore.InvalidID {
		return t.Sharpened
	}
	return t.Upscaled
}

// ResourceManager owns the intermediate targets and the parameter buffers
// of a pipeline.
//
// Targets are allocated lazily by Ensure and kept until the output size or
// format changes. Buffers have a fixed size and live from InitBuffers to
// Release.
//
// ResourceManager is not safe for concurrent use; the Pipeline serializes
// access.
type ResourceManager struct {
	dev gpucore.Device

	targets    Targets
	rcasSetup  bool
	prevWidth  int
	prevHeight int
	prevFormat gputypes.TextureFormat

	easuParams gpucore.BufferID
	rcasParams gpucore.BufferID

	allocations int
}

// NewResourceManager creates a manager that allocates from dev.
func NewResourceManager(dev gpucore.Device) *ResourceManager {
	return &ResourceManager{dev: dev}
}

// InitBuffers creates the EASU and RCAS parameter buffers. It is a no-op
// once the buffers exist. On failure nothing stays allocated.
func (m *ResourceManager) InitBuffers() error {
	if m.easuParams != gpucore.InvalidID {
		return nil
	}
	easu, err := m.dev.CreateBuffer(easuParamCount, gpucore.UintVectorSize, gpucore.NameEASUParameters)
	if err != nil {
		return fmt.Errorf("fsr: easu parameters: %w", err)
	}
	rcas, err := m.dev.CreateBuffer(rcasParamCount, gpucore.UintVectorSize, gpucore.NameRCASParameters)
	if err != nil {
		m.dev.DestroyBuffer(easu)
		return fmt.Errorf("fsr: rcas parameters: %w", err)
	}
	m.easuParams, m.rcasParams = easu, rcas
	return nil
}

// Buffers returns the parameter buffers. Both are InvalidID before
// InitBuffers.
func (m *ResourceManager) Buffers() (easu, rcas gpucore.BufferID) {
	return m.easuParams, m.rcasParams
}

// Targets returns the current targets without allocating.
func (m *ResourceManager) Targets() Targets {
	return m.targets
}

// Allocations returns the number of targets allocated so far.
func (m *ResourceManager) Allocations() int {
	return m.allocations
}

// Ensure returns targets for a width x height output, allocating them when
// needed. reallocated reports whether any target was (re)created.
//
// Allocation happens when no target exists yet, when the size or format
// differs from the last successful allocation, or when sharpening is on
// and the RCAS target is missing. In the last case the EASU target is kept
// if its size and format still match. Turning sharpening off releases the
// RCAS target.
//
// On error no target from this call stays allocated and the previous size
// is kept, so the next call retries.
func (m *ResourceManager) Ensure(width, height int, sharpening bool, format gputypes.TextureFormat) (t Targets, reallocated bool, err error) {
	if width < 1 || height < 1 {
		return Targets{}, false, fmt.Errorf("%w: target %dx%d", ErrInvalidDimensions, width, height)
	}

	if !sharpening && m.rcasSetup {
		m.dev.ReleaseTarget(m.targets.Sharpened)
		m.targets.Sharpened = gpucore.InvalidID
		m.rcasSetup = false
		Logger().Debug("fsr: sharpening off, rcas target released")
	}

	sizeChanged := m.targets.Upscaled == gpucore.InvalidID ||
		width != m.prevWidth || height != m.prevHeight || format != m.prevFormat
	needRCAS := sharpening && !m.rcasSetup
	if !sizeChanged && !needRCAS {
		return m.targets, false, nil
	}

	next := m.targets
	if sizeChanged {
		m.releaseTargets()
		next = Targets{Width: width, Height: height, Format: format}
		next.Upscaled, err = m.allocate("fsr easu output", width, height, format)
		if err != nil {
			return Targets{}, false, err
		}
	}
	if sharpening {
		next.Sharpened, err = m.allocate("fsr rcas output", width, height, format)
		if err != nil {
			if sizeChanged {
				m.dev.ReleaseTarget(next.Upscaled)
			}
			return Targets{}, false, err
		}
	}

	m.targets = next
	m.rcasSetup = sharpening
	m.prevWidth, m.prevHeight, m.prevFormat = width, height, format
	Logger().Info("fsr: targets allocated",
		"width", width, "height", height, "format", format, "sharpening", sharpening)
	return m.targets, true, nil
}

func (m *ResourceManager) allocate(label string, width, height int, format gputypes.TextureFormat) (gpucore.TargetID, error) {
	id, err := m.dev.AllocateTarget(&gpucore.TargetDesc{
		Label:       label,
		Width:       width,
		Height:      height,
		Format:      format,
		ColorSpace:  gpucore.ColorSpaceSRGB,
		RandomWrite: true,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("fsr: allocate %s %dx%d: %w", label, width, height, err)
	}
	m.allocations++
	return id, nil
}

func (m *ResourceManager) releaseTargets() {
	m.dev.ReleaseTarget(m.targets.Upscaled)
	m.dev.ReleaseTarget(m.targets.Sharpened)
	m.targets = Targets{}
	m.rcasSetup = false
}

// Release frees every target and buffer. It is safe to call repeatedly.
func (m *ResourceManager) Release() {
	m.releaseTargets()
	m.prevWidth, m.prevHeight, m.prevFormat = 0, 0, gputypes.TextureFormatUndefined
	if m.easuParams != gpucore.InvalidID {
		m.dev.DestroyBuffer(m.easuParams)
		m.easuParams = gpucore.InvalidID
	}
	if m.rcasParams != gpucore.InvalidID {
		m.dev.DestroyBuffer(m.rcasParams)
		m.rcasParams = gpucore.InvalidID
	}
}
