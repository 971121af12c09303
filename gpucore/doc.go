// Package gpucore provides the host-service abstractions the fsr pipeline
// runs against.
//
// The pipeline never talks to a graphics API directly. Instead it calls into a
// [Device], which allocates render targets and parameter buffers and loads
// compute kernels, and records work on an [Encoder], which captures kernel
// parameters, dispatches and blits in submission order.
//
// # Architecture
//
//	               +------------------+
//	               |   fsr.Pipeline   |
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               | gpucore.Device   |
//	               | gpucore.Encoder  |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v---------+         +---------v--------+
//	| backend/software |         |  backend/native  |
//	|  (CPU kernels)   |         |  (wgpu HAL+WGSL) |
//	+------------------+         +------------------+
//
// # Resource Model
//
// Resources are referenced by opaque IDs ([TargetID], [BufferID],
// [KernelID]). Each device keeps the mapping between IDs and its own
// backing objects. The zero value [InvalidID] never names a live resource.
//
// # Kernel Contract
//
// Every kernel exposes two entry points: index [KernelMain] applies the
// algorithm (input texture to output texture) and index [KernelInit] packs
// the parameter buffer from scalar and vector constants. Bind points are
// named and resolved once through [PropertyToID].
//
// # Recording
//
// [Recording] implements the state-setting half of [Encoder] so that devices
// only have to implement Submit. Each dispatch snapshots the parameter state
// visible to its kernel at record time, matching the semantics of engine
// command buffers.
package gpucore
