//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/shaders"
)

// encoder records commands and encodes them into one HAL command buffer on
// Submit.
type encoder struct {
	gpucore.Recording
	dev *Device
}

// frameResources are the per-submission objects freed once the GPU has
// finished the submission.
type frameResources struct {
	bindGroups []hal.BindGroup
	uniforms   []hal.Buffer

	// usages holds each touched target's usage before this submission.
	usages map[*target]gputypes.TextureUsage
}

// use records a barrier moving t into usage.
func (f *frameResources) use(enc hal.CommandEncoder, t *target, usage gputypes.TextureUsage) {
	if _, ok := f.usages[t]; !ok {
		if f.usages == nil {
			f.usages = make(map[*target]gputypes.TextureUsage)
		}
		f.usages[t] = t.usage
	}
	transition(enc, t, usage)
}

// rollback restores the usages of a discarded submission.
func (f *frameResources) rollback() {
	for t, u := range f.usages {
		t.usage = u
	}
}

func (f *frameResources) release(dev hal.Device) {
	for _, bg := range f.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	for _, b := range f.uniforms {
		dev.DestroyBuffer(b)
	}
	f.bindGroups, f.uniforms = nil, nil
}

// Submit encodes the recorded commands in order, each dispatch in its own
// compute pass, and submits them to the queue. Nothing is submitted when a
// command fails to encode.
func (e *encoder) Submit() error {
	cmds, err := e.Finish()
	if err != nil {
		return err
	}

	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("native: submit: device destroyed")
	}
	d.collect(false)

	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fsr"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("fsr"); err != nil {
		enc.Destroy()
		return fmt.Errorf("native: begin encoding: %w", err)
	}

	frame := &frameResources{}
	fail := func(err error) error {
		enc.DiscardEncoding()
		enc.Destroy()
		frame.rollback()
		frame.release(d.device)
		return err
	}

	for i, c := range cmds {
		switch cmd := c.(type) {
		case *gpucore.DispatchCommand:
			err = d.encodeDispatch(enc, frame, cmd)
		case *gpucore.BlitCommand:
			err = d.encodeBlit(enc, frame, cmd)
		default:
			err = fmt.Errorf("unknown command %T", c)
		}
		if err != nil {
			return fail(fmt.Errorf("native: command %d: %w", i, err))
		}
	}

	cb, err := enc.EndEncoding()
	if err != nil {
		return fail(fmt.Errorf("native: end encoding: %w", err))
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		d.device.FreeCommandBuffer(cb)
		enc.Destroy()
		frame.rollback()
		frame.release(d.device)
		return fmt.Errorf("native: submit: %w", err)
	}
	d.lastSubmit = index
	d.stats.Submissions++

	dev := d.device
	d.retire(func() {
		dev.FreeCommandBuffer(cb)
		enc.Destroy()
		frame.release(dev)
	})
	slogger().Debug("native: submitted", "commands", len(cmds), "index", index)
	return nil
}

func (d *Device) encodeDispatch(enc hal.CommandEncoder, frame *frameResources, cmd *gpucore.DispatchCommand) error {
	k, ok := d.kernels[cmd.Kernel]
	if !ok {
		return fmt.Errorf("kernel %d: %w", cmd.Kernel, gpucore.ErrInvalidResource)
	}
	if cmd.Index < 0 || cmd.Index >= len(k.entries) || k.entries[cmd.Index] == nil {
		return fmt.Errorf("%s has no entry point %d", k.name, cmd.Index)
	}
	entry := k.entries[cmd.Index]

	resources := make(map[uint32]gputypes.BindingResource, len(entry.bindings))
	for _, b := range entry.bindings {
		var err error
		switch b {
		case shaders.BindingConstants:
			var data []byte
			if data, err = packConstants(k.binds.constants, cmd); err == nil {
				resources[b], err = d.uniform(frame, k.name, data)
			}
		case shaders.BindingParams:
			buf, ok := d.buffers[cmd.Buffer(k.binds.params)]
			if !ok {
				err = fmt.Errorf("%s: %w", k.binds.params, gpucore.ErrInvalidResource)
				break
			}
			resources[b] = gputypes.BufferBinding{Buffer: buf.buf.NativeHandle(), Size: buf.size}
		case shaders.BindingInput:
			resources[b], err = d.bindTarget(enc, frame, cmd, gpucore.PropInputTexture, gputypes.TextureUsageTextureBinding)
		case shaders.BindingOutput:
			resources[b], err = d.bindTarget(enc, frame, cmd, gpucore.PropOutputTexture, gputypes.TextureUsageStorageBinding)
		}
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", k.name, cmd.Index, err)
		}
	}

	if err := d.encodePass(enc, frame, k.name, entry, resources, cmd.Groups); err != nil {
		return fmt.Errorf("%s[%d]: %w", k.name, cmd.Index, err)
	}
	d.stats.Dispatches++
	return nil
}

// bindTarget resolves a texture property and moves the target into usage.
func (d *Device) bindTarget(enc hal.CommandEncoder, frame *frameResources, cmd *gpucore.DispatchCommand,
	name gpucore.PropertyID, usage gputypes.TextureUsage,
) (gputypes.BindingResource, error) {
	t, ok := d.targets[cmd.Texture(name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, gpucore.ErrInvalidResource)
	}
	frame.use(enc, t, usage)
	return gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}, nil
}

// uniform creates a per-dispatch uniform buffer holding data.
func (d *Device) uniform(frame *frameResources, label string, data []byte) (gputypes.BindingResource, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + " constants",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocErr("buffer", label+" constants", err)
	}
	frame.uniforms = append(frame.uniforms, buf)
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		return nil, fmt.Errorf("write constants: %w", err)
	}
	return gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: uint64(len(data))}, nil
}

// encodePass creates the bind group for one entry point and records a
// compute pass that dispatches it.
func (d *Device) encodePass(enc hal.CommandEncoder, frame *frameResources, label string,
	entry *entryPipeline, resources map[uint32]gputypes.BindingResource, groups gpucore.Groups,
) error {
	entries := make([]gputypes.BindGroupEntry, len(entry.bindings))
	for i, b := range entry.bindings {
		entries[i] = gputypes.BindGroupEntry{Binding: b, Resource: resources[b]}
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "." + entry.name,
		Layout:  entry.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	frame.bindGroups = append(frame.bindGroups, bg)

	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: label + "." + entry.name})
	pass.SetPipeline(entry.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups.X, groups.Y, groups.Z)
	pass.End()
	return nil
}

// encodeBlit copies src to dst. Targets in the same color space are copied
// directly; otherwise the Blit kernel re-encodes the values.
func (d *Device) encodeBlit(enc hal.CommandEncoder, frame *frameResources, cmd *gpucore.BlitCommand) error {
	src, ok := d.targets[cmd.Src]
	if !ok {
		return fmt.Errorf("blit source %d: %w", cmd.Src, gpucore.ErrInvalidResource)
	}
	dst, ok := d.targets[cmd.Dst]
	if !ok {
		return fmt.Errorf("blit destination %d: %w", cmd.Dst, gpucore.ErrInvalidResource)
	}
	w, h := src.desc.Width, src.desc.Height
	if w != dst.desc.Width || h != dst.desc.Height {
		return fmt.Errorf("blit %dx%d to %dx%d: size mismatch", w, h, dst.desc.Width, dst.desc.Height)
	}
	if src == dst {
		d.stats.Blits++
		return nil
	}

	mode := blitMode(src.desc.ColorSpace, dst.desc.ColorSpace)
	if mode == shaders.BlitCopy {
		frame.use(enc, src, gputypes.TextureUsageCopySrc)
		frame.use(enc, dst, gputypes.TextureUsageCopyDst)
		enc.CopyTextureToTexture(src.tex, dst.tex, []hal.TextureCopy{{
			SrcBase: hal.ImageCopyTexture{Texture: src.tex, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: dst.tex, Aspect: gputypes.TextureAspectAll},
			Size:    hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}, //nolint:gosec // target size
		}})
		d.stats.Blits++
		return nil
	}

	k, err := d.blitKernel()
	if err != nil {
		return err
	}
	data := make([]byte, gpucore.UintVectorSize)
	binary.LittleEndian.PutUint32(data, mode)
	constants, err := d.uniform(frame, k.name, data)
	if err != nil {
		return err
	}
	frame.use(enc, src, gputypes.TextureUsageTextureBinding)
	frame.use(enc, dst, gputypes.TextureUsageStorageBinding)
	resources := map[uint32]gputypes.BindingResource{
		shaders.BindingConstants: constants,
		shaders.BindingInput:     gputypes.TextureViewBinding{TextureView: src.view.NativeHandle()},
		shaders.BindingOutput:    gputypes.TextureViewBinding{TextureView: dst.view.NativeHandle()},
	}
	groups := gpucore.Groups{X: ceilGroups(w), Y: ceilGroups(h), Z: 1}
	if err := d.encodePass(enc, frame, k.name, k.entries[gpucore.KernelMain], resources, groups); err != nil {
		return err
	}
	d.stats.Blits++
	return nil
}

func blitMode(from, to gpucore.ColorSpace) uint32 {
	switch {
	case from == to:
		return shaders.BlitCopy
	case from == gpucore.ColorSpaceSRGB:
		return shaders.BlitDecode
	default:
		return shaders.BlitEncode
	}
}

func ceilGroups(n int) uint32 {
	return uint32((n + shaders.WorkgroupSize - 1) / shaders.WorkgroupSize) //nolint:gosec // target size
}
