package fsr

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

// Stage is a step of a frame.
type Stage int

const (
	// StageIdle is the state between frames.
	StageIdle Stage = iota
	// StageRenderLowRes renders the scene into a reduced-size scratch target.
	StageRenderLowRes
	// StageEASUInit packs the EASU parameters.
	StageEASUInit
	// StageEASUMain upsamples the scene into the EASU target.
	StageEASUMain
	// StageRCASInit packs the RCAS parameters.
	StageRCASInit
	// StageRCASMain sharpens the EASU target into the RCAS target.
	StageRCASMain
	// StageCompositeBlit copies the result to the destination.
	StageCompositeBlit
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageRenderLowRes:
		return "RenderLowRes"
	case StageEASUInit:
		return "EASUInit"
	case StageEASUMain:
		return "EASUMain"
	case StageRCASInit:
		return "RCASInit"
	case StageRCASMain:
		return "RCASMain"
	case StageCompositeBlit:
		return "CompositeBlit"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// SceneRenderer draws the scene into a reduced-resolution target.
type SceneRenderer interface {
	RenderScene(target gpucore.TargetID, width, height int) error
}

// SceneFunc adapts a function to SceneRenderer.
type SceneFunc func(target gpucore.TargetID, width, height int) error

// RenderScene calls f.
func (f SceneFunc) RenderScene(target gpucore.TargetID, width, height int) error {
	return f(target, width, height)
}

// Frame describes one frame to render.
type Frame struct {
	// Width and Height are the full output size.
	Width, Height int

	// Format is the scene color format. Zero uses the pipeline default.
	Format gputypes.TextureFormat

	// Destination receives the result. It must be Width x Height.
	// InvalidID skips the composite blit; FrameStats.Output then names
	// the target holding the result until the next frame.
	Destination gpucore.TargetID

	// Scene renders the low-resolution input. Nil leaves the scratch
	// target as the device returned it.
	Scene SceneRenderer
}

// FrameStats describes a rendered frame.
type FrameStats struct {
	Stages        []Stage
	ReducedWidth  int
	ReducedHeight int
	Groups        gpucore.Groups
	Reallocated   bool
	Output        gpucore.TargetID
}

// Ran reports whether the frame went through stage s.
func (fs FrameStats) Ran(s Stage) bool {
	for _, st := range fs.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Frames      uint64
	EASUInits   uint64
	RCASInits   uint64
	Allocations int
}

// Pipeline runs the EASU and RCAS passes for a device.
//
// Lifecycle: New, Initialize, RenderFrame per frame, Teardown. A torn down
// pipeline can be initialized again.
//
// Thread safety: Pipeline is safe for concurrent use; frames are
// serialized.
type Pipeline struct {
	mu sync.Mutex

	dev  gpucore.Device
	opts options
	res  *ResourceManager

	settings    Settings
	initialized bool
	easu, rcas  gpucore.KernelID

	// Inputs of the last packed parameters. Valid only after a
	// successful submit.
	easuPacked bool
	easuIn     [2]int
	rcasPacked bool
	rcasScale  float32

	stats Stats
}

// New creates a pipeline for dev. Call Initialize before rendering.
func New(dev gpucore.Device, opts ...Option) (*Pipeline, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pipeline{
		dev:      dev,
		opts:     o,
		res:      NewResourceManager(dev),
		settings: o.settings.Clamped(),
	}
	return p, nil
}

// Initialize loads both kernels and creates the parameter buffers.
// A missing kernel is fatal and returns ErrKernelUnavailable. On failure
// nothing stays allocated. Initialize on an initialized pipeline is a no-op.
func (p *Pipeline) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	easu, err := p.dev.LoadKernel(gpucore.KernelEASU)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrKernelUnavailable, gpucore.KernelEASU, err)
	}
	rcas, err := p.dev.LoadKernel(gpucore.KernelRCAS)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrKernelUnavailable, gpucore.KernelRCAS, err)
	}
	if err := p.res.InitBuffers(); err != nil {
		p.res.Release()
		return err
	}

	p.easu, p.rcas = easu, rcas
	p.initialized = true
	trackDevice(p)
	Logger().Info("fsr: pipeline initialized",
		"scale", p.settings.ScaleFactor, "sharpening", p.settings.Sharpening)
	return nil
}

// Teardown releases every resource and restores full-resolution rendering
// on devices that support dynamic resolution. It is safe to call
// repeatedly and after a failed frame.
func (p *Pipeline) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.res.Release()
	if tt, ok := p.dev.(gpucore.TemporaryTrimmer); ok {
		tt.TrimTemporaries()
	}
	if dr, ok := p.dev.(gpucore.DynamicResolution); ok {
		dr.ResizeBuffers(1, 1)
	}
	p.easuPacked, p.rcasPacked = false, false
	if p.initialized {
		p.initialized = false
		untrackDevice(p)
		Logger().Info("fsr: pipeline torn down")
	}
}

// Settings returns the current settings.
func (p *Pipeline) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the settings. Out of range values are clamped.
// The change applies from the next frame.
func (p *Pipeline) SetSettings(s Settings) {
	c := s.Clamped()
	if c != s {
		Logger().Warn("fsr: settings clamped",
			"scale", s.ScaleFactor, "sharpness", s.Sharpness,
			"clampedScale", c.ScaleFactor, "clampedSharpness", c.Sharpness)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = c
}

// MipBias returns the texture LOD bias for the current scale factor.
func (p *Pipeline) MipBias() float32 {
	return p.Settings().MipBias()
}

// Stats returns the cumulative counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Allocations = p.res.Allocations()
	return s
}

// Targets returns the current intermediate targets.
func (p *Pipeline) Targets() Targets {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.res.Targets()
}

// RenderFrame renders one frame.
//
// Any error aborts the frame before the composite blit, so the destination
// keeps its previous contents. The scratch target is released on every
// path.
func (p *Pipeline) RenderFrame(f Frame) (FrameStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return FrameStats{}, ErrNotInitialized
	}
	if f.Width < 1 || f.Height < 1 {
		return FrameStats{}, fmt.Errorf("%w: frame %dx%d", ErrInvalidDimensions, f.Width, f.Height)
	}
	if f.Destination != gpucore.InvalidID {
		desc, ok := p.dev.TargetInfo(f.Destination)
		if !ok {
			return FrameStats{}, fmt.Errorf("fsr: destination %d: %w", f.Destination, gpucore.ErrInvalidResource)
		}
		if desc.Width != f.Width || desc.Height != f.Height {
			return FrameStats{}, fmt.Errorf("%w: destination %dx%d for frame %dx%d",
				ErrInvalidDimensions, desc.Width, desc.Height, f.Width, f.Height)
		}
	}
	format := f.Format
	if format == gputypes.TextureFormatUndefined {
		format = p.opts.format
	}
	s := p.settings
	fs := FrameStats{Stages: make([]Stage, 0, 7)}

	if dr, ok := p.dev.(gpucore.DynamicResolution); ok {
		dr.ResizeBuffers(1/s.ScaleFactor, 1/s.ScaleFactor)
	}

	// RenderLowRes
	fs.ReducedWidth, fs.ReducedHeight = s.ReducedSize(f.Width, f.Height)
	fs.Stages = append(fs.Stages, StageRenderLowRes)
	low, err := p.dev.AcquireTemporary(fs.ReducedWidth, fs.ReducedHeight, format)
	if err != nil {
		return fs, fmt.Errorf("fsr: scene target %dx%d: %w", fs.ReducedWidth, fs.ReducedHeight, err)
	}
	defer p.dev.ReleaseTemporary(low)
	if f.Scene != nil {
		if err := f.Scene.RenderScene(low, fs.ReducedWidth, fs.ReducedHeight); err != nil {
			return fs, fmt.Errorf("fsr: render scene: %w", err)
		}
	}

	targets, reallocated, err := p.res.Ensure(f.Width, f.Height, s.Sharpening, format)
	if err != nil {
		return fs, err
	}
	fs.Reallocated = reallocated
	inputs, err := NewEASUInputs(fs.ReducedWidth, fs.ReducedHeight, targets.Width, targets.Height)
	if err != nil {
		return fs, err
	}
	easuParams, rcasParams := p.res.Buffers()
	fs.Groups = Plan(targets.Width, targets.Height)

	enc := p.dev.NewEncoder()

	easuIn := [2]int{fs.ReducedWidth, fs.ReducedHeight}
	easuInit := p.opts.alwaysInit || reallocated || !p.easuPacked || p.easuIn != easuIn
	if easuInit {
		fs.Stages = append(fs.Stages, StageEASUInit)
		enc.SetVector(p.easu, gpucore.PropEASUViewportSize, inputs.ViewportSize)
		enc.SetVector(p.easu, gpucore.PropEASUInputImageSize, inputs.InputImageSize)
		enc.SetVector(p.easu, gpucore.PropEASUOutputSize, inputs.OutputSize)
		enc.SetBuffer(p.easu, gpucore.KernelInit, gpucore.PropEASUParameters, easuParams)
		enc.Dispatch(p.easu, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
	}

	fs.Stages = append(fs.Stages, StageEASUMain)
	enc.SetTexture(p.easu, gpucore.KernelMain, gpucore.PropInputTexture, low)
	enc.SetTexture(p.easu, gpucore.KernelMain, gpucore.PropOutputTexture, targets.Upscaled)
	enc.SetBuffer(p.easu, gpucore.KernelMain, gpucore.PropEASUParameters, easuParams)
	enc.Dispatch(p.easu, gpucore.KernelMain, fs.Groups)

	var rcasInit bool
	scale := RCASScale(s.Sharpness)
	if s.Sharpening {
		rcasInit = p.opts.alwaysInit || reallocated || !p.rcasPacked || p.rcasScale != scale
		if rcasInit {
			fs.Stages = append(fs.Stages, StageRCASInit)
			enc.SetFloat(p.rcas, gpucore.PropRCASScale, scale)
			enc.SetBuffer(p.rcas, gpucore.KernelInit, gpucore.PropRCASParameters, rcasParams)
			enc.Dispatch(p.rcas, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}

		fs.Stages = append(fs.Stages, StageRCASMain)
		enc.SetTexture(p.rcas, gpucore.KernelMain, gpucore.PropInputTexture, targets.Upscaled)
		enc.SetTexture(p.rcas, gpucore.KernelMain, gpucore.PropOutputTexture, targets.Sharpened)
		enc.SetBuffer(p.rcas, gpucore.KernelMain, gpucore.PropRCASParameters, rcasParams)
		enc.Dispatch(p.rcas, gpucore.KernelMain, fs.Groups)
	}

	fs.Output = targets.Output()
	if f.Destination != gpucore.InvalidID {
		fs.Stages = append(fs.Stages, StageCompositeBlit)
		enc.Blit(fs.Output, f.Destination)
	}

	if err := enc.Submit(); err != nil {
		p.easuPacked, p.rcasPacked = false, false
		return fs, fmt.Errorf("fsr: submit frame: %w", err)
	}

	if easuInit {
		p.easuPacked, p.easuIn = true, easuIn
		p.stats.EASUInits++
	}
	if rcasInit {
		p.rcasPacked, p.rcasScale = true, scale
		p.stats.RCASInits++
	}
	p.stats.Frames++
	fs.Stages = append(fs.Stages, StageIdle)

	Logger().Debug("fsr: frame rendered",
		"width", f.Width, "height", f.Height,
		"reduced", fmt.Sprintf("%dx%d", fs.ReducedWidth, fs.ReducedHeight),
		"groups", fs.Groups, "stages", len(fs.Stages), "reallocated", reallocated)
	return fs, nil
}
