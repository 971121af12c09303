//go:build !nogpu

package native

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/color"
)

// storageFormat is the texture format of every target. It is the only
// format the kernels' storage bindings are declared with.
const storageFormat = gputypes.TextureFormatRGBA8Unorm

// copyPitchAlignment is the BytesPerRow alignment of texture-to-buffer copies.
const copyPitchAlignment = 256

const targetUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding |
	gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst

// target is one render target.
type target struct {
	desc      gpucore.TargetDesc
	tex       hal.Texture
	view      hal.TextureView
	size      int64
	temporary bool

	// usage is the last usage recorded in a barrier.
	usage gputypes.TextureUsage
}

// buffer is one structured parameter buffer.
type buffer struct {
	buf  hal.Buffer
	size uint64
}

type tempKey struct {
	width, height int
	format        gputypes.TextureFormat
}

// checkFormat reports whether targets of format f can be stored as
// rgba8unorm. Float formats need storage bindings the kernels do not
// declare.
func checkFormat(f gputypes.TextureFormat) error {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return nil
	default:
		return fmt.Errorf("native: %s: %w", f, gpucore.ErrUnsupportedFormat)
	}
}

func (d *Device) createTarget(desc *gpucore.TargetDesc, temporary bool) (gpucore.TargetID, error) {
	if d.destroyed {
		return gpucore.InvalidID, fmt.Errorf("native: device destroyed: %w", gpucore.ErrAllocation)
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if err := checkFormat(desc.Format); err != nil {
		return gpucore.InvalidID, err
	}
	size := int64(desc.Width) * int64(desc.Height) * 4
	if err := d.reserve(size, desc.Label); err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1}, //nolint:gosec // validated >= 1
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        storageFormat,
		Usage:         targetUsage,
	})
	if err != nil {
		d.stats.BytesInUse -= size
		return gpucore.InvalidID, allocErr("texture", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          storageFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		d.stats.BytesInUse -= size
		return gpucore.InvalidID, allocErr("texture view", desc.Label, err)
	}

	id := gpucore.TargetID(d.newID())
	d.targets[id] = &target{
		desc:      *desc,
		tex:       tex,
		view:      view,
		size:      size,
		temporary: temporary,
	}
	d.stats.LiveTargets++
	return id, nil
}

// AllocateTarget implements gpucore.Device.
func (d *Device) AllocateTarget(desc *gpucore.TargetDesc) (gpucore.TargetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.createTarget(desc, false)
	if err != nil {
		return gpucore.InvalidID, err
	}
	d.stats.TargetsAllocated++
	slogger().Debug("native: target allocated",
		"id", id, "label", desc.Label, "width", desc.Width, "height", desc.Height,
		"format", desc.Format, "colorSpace", desc.ColorSpace)
	return id, nil
}

// destroyTarget forgets a target and destroys its texture once the GPU is
// done with it.
func (d *Device) destroyTarget(id gpucore.TargetID) bool {
	t, ok := d.targets[id]
	if !ok {
		return false
	}
	delete(d.targets, id)
	d.stats.BytesInUse -= t.size
	d.stats.LiveTargets--
	dev := d.device
	d.retire(func() {
		dev.DestroyTextureView(t.view)
		dev.DestroyTexture(t.tex)
	})
	return true
}

// ReleaseTarget implements gpucore.Device.
func (d *Device) ReleaseTarget(id gpucore.TargetID) {
	if id == gpucore.InvalidID {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.targets[id]; !ok || t.temporary {
		return
	}
	d.destroyTarget(id)
	d.stats.TargetsReleased++
	slogger().Debug("native: target released", "id", id)
}

// AcquireTemporary implements gpucore.Device.
func (d *Device) AcquireTemporary(width, height int, format gputypes.TextureFormat) (gpucore.TargetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := tempKey{width, height, format}
	if ids := d.free[key]; len(ids) > 0 {
		id := ids[len(ids)-1]
		d.free[key] = ids[:len(ids)-1]
		return id, nil
	}

	id, err := d.createTarget(&gpucore.TargetDesc{
		Label:       "temporary",
		Width:       width,
		Height:      height,
		Format:      format,
		ColorSpace:  gpucore.ColorSpaceSRGB,
		RandomWrite: true,
	}, true)
	if err != nil {
		return gpucore.InvalidID, err
	}
	d.stats.TemporariesCreated++
	return id, nil
}

// ReleaseTemporary implements gpucore.Device.
func (d *Device) ReleaseTemporary(id gpucore.TargetID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[id]
	if !ok || !t.temporary {
		return
	}
	key := tempKey{t.desc.Width, t.desc.Height, t.desc.Format}
	for _, free := range d.free[key] {
		if free == id {
			return
		}
	}
	d.free[key] = append(d.free[key], id)
	d.evictPooled(&key)
}

// TrimTemporaries implements gpucore.TemporaryTrimmer. It destroys every
// pooled scratch target that is not in use.
func (d *Device) TrimTemporaries() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictPooled(nil)
}

// evictPooled destroys the pooled scratch targets of every size except
// keep. After a resize the old sizes are never acquired again.
func (d *Device) evictPooled(keep *tempKey) {
	for key, ids := range d.free {
		if keep != nil && key == *keep {
			continue
		}
		for _, id := range ids {
			d.destroyTarget(id)
		}
		delete(d.free, key)
	}
}

// CreateBuffer implements gpucore.Device. The buffer is zeroed.
func (d *Device) CreateBuffer(count, stride int, label string) (gpucore.BufferID, error) {
	if count < 1 || stride < 4 || stride%4 != 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %q: invalid layout %d x %d bytes", label, count, stride)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, fmt.Errorf("native: device destroyed: %w", gpucore.ErrAllocation)
	}
	size := int64(count) * int64(stride)
	if err := d.reserve(size, label); err != nil {
		return gpucore.InvalidID, err
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		d.stats.BytesInUse -= size
		return gpucore.InvalidID, allocErr("buffer", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, make([]byte, size)); err != nil {
		d.device.DestroyBuffer(buf)
		d.stats.BytesInUse -= size
		return gpucore.InvalidID, fmt.Errorf("native: clear buffer %q: %w", label, err)
	}

	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &buffer{buf: buf, size: uint64(size)}
	d.stats.LiveBuffers++
	slogger().Debug("native: buffer created", "id", id, "label", label, "bytes", size)
	return id, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.stats.BytesInUse -= int64(b.size)
	d.stats.LiveBuffers--
	dev := d.device
	d.retire(func() { dev.DestroyBuffer(b.buf) })
}

// TargetInfo implements gpucore.Device.
func (d *Device) TargetInfo(id gpucore.TargetID) (gpucore.TargetDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.targets[id]
	if !ok {
		return gpucore.TargetDesc{}, false
	}
	return t.desc, true
}

// UploadTarget implements gpucore.TargetUploader.
// pix holds sRGB-encoded RGBA8 rows of stride bytes.
func (d *Device) UploadTarget(id gpucore.TargetID, pix []byte, stride int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[id]
	if !ok {
		return fmt.Errorf("native: upload to target %d: %w", id, gpucore.ErrInvalidResource)
	}
	w, h := t.desc.Width, t.desc.Height
	if stride < w*4 || len(pix) < stride*(h-1)+w*4 {
		return fmt.Errorf("native: upload to target %d: %d bytes with stride %d is too small for %dx%d",
			id, len(pix), stride, w, h)
	}

	data := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		copy(data[y*w*4:(y+1)*w*4], pix[y*stride:y*stride+w*4])
	}
	if t.desc.ColorSpace == gpucore.ColorSpaceLinear {
		decode8(data)
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(w * 4), RowsPerImage: uint32(h)}, //nolint:gosec // target size
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},  //nolint:gosec // target size
	)
	if err != nil {
		return fmt.Errorf("native: upload to target %d: %w", id, err)
	}
	return nil
}

// ReadTarget implements gpucore.TargetReader. It waits for the GPU.
func (d *Device) ReadTarget(id gpucore.TargetID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[id]
	if !ok {
		return nil, fmt.Errorf("native: read target %d: %w", id, gpucore.ErrInvalidResource)
	}
	w, h := uint32(t.desc.Width), uint32(t.desc.Height) //nolint:gosec // validated >= 1
	bytesPerRow := w * 4
	pitch := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(pitch) * uint64(h)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fsr readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocErr("buffer", "fsr readback", err)
	}
	defer d.device.DestroyBuffer(staging)

	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fsr readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("fsr readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	transition(enc, t, gputypes.TextureUsageCopySrc)
	enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cb)

	index, err := d.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		return nil, fmt.Errorf("native: submit readback: %w", err)
	}
	d.lastSubmit = index
	if err := d.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("native: wait for readback: %w", err)
	}
	d.collect(false)

	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("native: map readback: %w", err)
	}
	mapped := unsafe.Slice((*byte)(mapping.Ptr), size)
	out := make([]byte, uint64(bytesPerRow)*uint64(h))
	for y := uint32(0); y < h; y++ {
		copy(out[y*bytesPerRow:(y+1)*bytesPerRow], mapped[y*pitch:y*pitch+bytesPerRow])
	}
	if err := d.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("native: unmap readback: %w", err)
	}

	if t.desc.ColorSpace == gpucore.ColorSpaceLinear {
		encode8(out)
	}
	return out, nil
}

// decode8 converts sRGB RGBA8 pixels to linear RGBA8 in place.
func decode8(pix []byte) {
	for i := 0; i < len(pix); i += 4 {
		for c := 0; c < 3; c++ {
			pix[i+c] = uint8(color.DecodeSRGB8(pix[i+c])*255 + 0.5)
		}
	}
}

// encode8 converts linear RGBA8 pixels to sRGB RGBA8 in place.
func encode8(pix []byte) {
	for i := 0; i < len(pix); i += 4 {
		for c := 0; c < 3; c++ {
			pix[i+c] = color.EncodeSRGB8(float32(pix[i+c]) / 255)
		}
	}
}

// transition records a barrier when the target's usage changes.
func transition(enc hal.CommandEncoder, t *target, usage gputypes.TextureUsage) {
	if t.usage == usage {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1},
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	}})
	t.usage = usage
}
