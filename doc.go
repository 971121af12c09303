// Package fsr implements a spatial super-resolution pipeline: the scene is
// rendered at a reduced resolution, upsampled with Edge Adaptive Spatial
// Upsampling (EASU), optionally sharpened with Robust Contrast Adaptive
// Sharpening (RCAS), and copied to a full-resolution destination.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/fsr"
//	    "github.com/gogpu/fsr/backend/software"
//	)
//
//	dev := software.New()
//	defer dev.Destroy()
//
//	p, err := fsr.New(dev, fsr.WithSettings(fsr.QualitySettings(fsr.Quality)))
//	if err != nil {
//	    return err
//	}
//	if err := p.Initialize(); err != nil {
//	    return err
//	}
//	defer p.Teardown()
//
//	stats, err := p.RenderFrame(fsr.Frame{
//	    Width:       1920,
//	    Height:      1080,
//	    Destination: screen,
//	    Scene:       scene,
//	})
//
// # Frame Stages
//
// Each frame runs through a fixed sequence of stages:
//
//	RenderLowRes -> EASUInit -> EASUMain -> [RCASInit -> RCASMain] -> CompositeBlit -> Idle
//
// The init stages pack kernel parameters into small buffers on the device.
// They run only when their inputs change: the first frame, a resize, a new
// reduced size or a new sharpness. Use [WithAlwaysInit] to run them every
// frame.
//
// # Resources
//
// Two full-resolution targets (EASU output and RCAS output) and two
// parameter buffers are owned by the [ResourceManager]. Targets are
// reallocated only when the output size or format changes or when
// sharpening is switched on. Switching sharpening off releases the RCAS
// target. The low-resolution scene target is a per-frame scratch target.
//
// # Backends
//
// The pipeline talks to a [gpucore.Device]. Two implementations ship with
// this module:
//   - backend/software: CPU execution, deterministic, no GPU required
//   - backend/native: gogpu/wgpu HAL with WGSL kernels compiled by naga
//
// # Logging
//
// The package is silent by default. Call [SetLogger] to enable structured
// logging via log/slog.
package fsr
