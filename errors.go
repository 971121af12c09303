package fsr

import (
	"errors"

	"github.com/gogpu/fsr/gpucore"
)

// Sentinel errors. Operations wrap them with context; test with errors.Is.
var (
	// ErrNilDevice is returned by New when no device is given.
	ErrNilDevice = errors.New("fsr: nil device")

	// ErrInvalidDimensions is returned for sizes below 1x1.
	ErrInvalidDimensions = errors.New("fsr: invalid dimensions")

	// ErrKernelUnavailable is returned by Initialize when the device cannot
	// provide the EASU or RCAS kernel.
	ErrKernelUnavailable = errors.New("fsr: kernel unavailable")

	// ErrNotInitialized is returned by RenderFrame before Initialize or
	// after Teardown.
	ErrNotInitialized = errors.New("fsr: pipeline not initialized")

	// ErrAllocation is returned when the device runs out of memory for a
	// target or buffer. It is the device-level sentinel.
	ErrAllocation = gpucore.ErrAllocation
)
