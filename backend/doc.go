// Package backend selects the device an FSR pipeline runs on.
//
// Device packages register a factory on import:
//
//	import (
//		_ "github.com/gogpu/fsr/backend/native"   // GPU via gogpu/wgpu
//		_ "github.com/gogpu/fsr/backend/software" // CPU fallback
//	)
//
// # Backend Selection
//
// Use OpenDefault to get the best device that opens, or Open to request a
// specific backend by name:
//
//	dev, name, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
//
//	p, err := fsr.New(dev)
//
// # Available Backends
//
//   - "native": compute shaders on a HAL device (needs a HAL backend, for
//     example github.com/gogpu/wgpu/hal/allbackends)
//   - "software": CPU reference kernels (always available)
package backend
