//go:build !nogpu

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/shaders"
)

// kernelBinds names the properties behind a kernel's buffer bindings.
type kernelBinds struct {
	// constants are packed in order into the binding 0 uniform block, one
	// 16-byte slot each.
	constants []gpucore.PropertyID

	// params is bound at binding 1.
	params gpucore.PropertyID
}

var binds = map[string]kernelBinds{
	gpucore.KernelEASU: {
		constants: []gpucore.PropertyID{
			gpucore.PropEASUViewportSize,
			gpucore.PropEASUInputImageSize,
			gpucore.PropEASUOutputSize,
		},
		params: gpucore.PropEASUParameters,
	},
	gpucore.KernelRCAS: {
		constants: []gpucore.PropertyID{gpucore.PropRCASScale},
		params:    gpucore.PropRCASParameters,
	},
}

// entryPipeline is one compiled entry point.
type entryPipeline struct {
	name     string
	bindings []uint32
	layout   hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// gpuKernel is a shader module with its entry point pipelines, indexed by
// gpucore.KernelMain and gpucore.KernelInit.
type gpuKernel struct {
	name    string
	src     *shaders.Kernel
	binds   kernelBinds
	module  hal.ShaderModule
	entries [2]*entryPipeline
}

// LoadKernel implements gpucore.Device. The first load of a name compiles
// the kernel and creates its pipelines; later loads return the same ID.
func (d *Device) LoadKernel(name string) (gpucore.KernelID, error) {
	src, err := shaders.Lookup(name)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: %q: %w", name, gpucore.ErrUnknownKernel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, fmt.Errorf("native: load %q: device destroyed", name)
	}
	if id, ok := d.byName[name]; ok {
		return id, nil
	}
	k, err := d.createKernel(src)
	if err != nil {
		return gpucore.InvalidID, err
	}
	k.binds = binds[name]

	id := gpucore.KernelID(d.newID())
	d.kernels[id] = k
	d.byName[name] = id
	slogger().Debug("native: kernel loaded", "name", name, "id", id)
	return id, nil
}

// blitKernel returns the color space conversion kernel, creating it on
// first use.
func (d *Device) blitKernel() (*gpuKernel, error) {
	if d.blit != nil {
		return d.blit, nil
	}
	k, err := d.createKernel(shaders.Blit)
	if err != nil {
		return nil, err
	}
	d.blit = k
	return k, nil
}

func (d *Device) createKernel(src *shaders.Kernel) (*gpuKernel, error) {
	code, err := src.SPIRV()
	if err != nil {
		return nil, fmt.Errorf("native: compile %s: %w", src.Name, err)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.Name,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module %s: %w", src.Name, err)
	}

	k := &gpuKernel{name: src.Name, src: src, module: module}
	for i, entry := range shaders.EntryPoints {
		bindings := src.Bindings(entry)
		if bindings == nil {
			continue
		}
		e, err := d.createEntry(k, entry, bindings)
		if err != nil {
			k.destroy(d.device)
			return nil, err
		}
		k.entries[i] = e
	}
	return k, nil
}

func (d *Device) createEntry(k *gpuKernel, entry string, bindings []uint32) (*entryPipeline, error) {
	label := k.name + "." + entry
	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = layoutEntry(b)
	}

	e := &entryPipeline{name: entry, bindings: bindings}
	var err error
	e.layout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group layout %s: %w", label, err)
	}
	e.pipeLay, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []hal.BindGroupLayout{e.layout},
	})
	if err != nil {
		e.destroy(d.device)
		return nil, fmt.Errorf("native: create pipeline layout %s: %w", label, err)
	}
	e.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label,
		Layout:  e.pipeLay,
		Compute: hal.ComputeState{Module: k.module, EntryPoint: entry},
	})
	if err != nil {
		e.destroy(d.device)
		return nil, fmt.Errorf("native: create compute pipeline %s: %w", label, err)
	}
	return e, nil
}

// layoutEntry returns the layout of one of the shared binding slots.
func layoutEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: binding, Visibility: gputypes.ShaderStageCompute}
	switch binding {
	case shaders.BindingConstants:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case shaders.BindingParams:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case shaders.BindingInput:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case shaders.BindingOutput:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        storageFormat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	}
	return e
}

func (e *entryPipeline) destroy(dev hal.Device) {
	if e.pipeline != nil {
		dev.DestroyComputePipeline(e.pipeline)
	}
	if e.pipeLay != nil {
		dev.DestroyPipelineLayout(e.pipeLay)
	}
	if e.layout != nil {
		dev.DestroyBindGroupLayout(e.layout)
	}
}

func (k *gpuKernel) destroy(dev hal.Device) {
	for i, e := range k.entries {
		if e != nil {
			e.destroy(dev)
			k.entries[i] = nil
		}
	}
	if k.module != nil {
		dev.DestroyShaderModule(k.module)
		k.module = nil
	}
}

var errConstantUnset = errors.New("constant not set")

// packConstants lays out the kernel's constants as the binding 0 uniform
// block. Vectors fill a slot; scalars take its first lane.
func packConstants(props []gpucore.PropertyID, cmd *gpucore.DispatchCommand) ([]byte, error) {
	data := make([]byte, len(props)*gpucore.UintVectorSize)
	for i, p := range props {
		slot := data[i*gpucore.UintVectorSize:]
		if v, ok := cmd.Vector(p); ok {
			for j, f := range v {
				binary.LittleEndian.PutUint32(slot[j*4:], math.Float32bits(f))
			}
			continue
		}
		if f, ok := cmd.Float(p); ok {
			binary.LittleEndian.PutUint32(slot, math.Float32bits(f))
			continue
		}
		return nil, fmt.Errorf("%s: %w", p, errConstantUnset)
	}
	return data, nil
}
