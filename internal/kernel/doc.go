// Package kernel implements the EASU and RCAS image kernels on the CPU.
//
// The functions here mirror the WGSL kernels in internal/shaders one to one:
// the init entry points pack constant blocks ([EasuCon], [RcasCon]) and the
// main entry points evaluate one output pixel ([EasuPixel], [RcasPixel]).
// The software device runs them per thread; tests use them as the numeric
// reference for the GPU path.
//
// All color math operates on the stored (perceptual) values of a [Surface],
// in the [0, 1] range.
package kernel
