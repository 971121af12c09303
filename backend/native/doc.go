// Package native implements gpucore.Device on a gogpu/wgpu HAL device.
//
// Kernels are the WGSL sources from internal/shaders, compiled to SPIR-V
// with naga and run as compute pipelines. Targets are rgba8unorm textures
// usable as sampled inputs, storage outputs and copy endpoints.
//
// The device can share a host's GPU:
//
//	dev, err := native.NewFromProvider(provider) // gpucontext.DeviceProvider
//
// or open its own adapter:
//
//	dev, err := native.Open(gputypes.BackendVulkan)
//	defer dev.Destroy()
//
// Resources referenced by submitted work are destroyed only after the
// queue reports the submission complete.
//
// Building with the nogpu tag leaves the package empty; the backend then
// does not register.
package native
