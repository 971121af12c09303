// Package software implements gpucore.Device on the CPU.
//
// Targets are float RGBA surfaces, kernels are the reference implementations
// from internal/kernel, and every dispatch is spread over a worker pool one
// thread-group row at a time. The device is deterministic and needs no GPU,
// which makes it the default for tests and headless tools.
//
// Example:
//
//	dev := software.New()
//	defer dev.Destroy()
//
//	p, err := fsr.New(dev)
package software

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/color"
	"github.com/gogpu/fsr/internal/kernel"
	"github.com/gogpu/fsr/internal/parallel"
)

// Compile-time interface checks.
var (
	_ gpucore.Device            = (*Device)(nil)
	_ gpucore.DynamicResolution = (*Device)(nil)
	_ gpucore.TargetUploader    = (*Device)(nil)
	_ gpucore.TargetReader      = (*Device)(nil)
	_ gpucore.TemporaryTrimmer  = (*Device)(nil)
)

// Option configures a Device.
type Option func(*config)

type config struct {
	workers     int
	memoryLimit int64
}

// WithWorkers sets the number of dispatch workers. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithMemoryLimit caps the bytes of target and buffer storage the device
// will hand out. Allocations beyond the limit fail with
// gpucore.ErrAllocation, which emulates running out of video memory.
// Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// target is one render target.
type target struct {
	desc      gpucore.TargetDesc
	surf      *kernel.Surface
	size      int64
	temporary bool
}

type tempKey struct {
	width, height int
	format        gputypes.TextureFormat
}

// Stats reports device resource counters.
type Stats struct {
	TargetsAllocated   int // AllocateTarget calls that succeeded
	TargetsReleased    int // ReleaseTarget calls that freed a target
	TemporariesCreated int // scratch targets created (pool misses)
	LiveTargets        int
	LiveBuffers        int
	Dispatches         int
	Blits              int
	BytesInUse         int64
}

// Device is a CPU implementation of gpucore.Device.
//
// Thread safety: Device is safe for concurrent use; command submission is
// serialized.
type Device struct {
	mu sync.Mutex

	cfg  config
	pool *parallel.Pool

	nextID  uint64
	targets map[gpucore.TargetID]*target
	buffers map[gpucore.BufferID][]uint32
	free    map[tempKey][]gpucore.TargetID
	kernels map[gpucore.KernelID]*cpuKernel

	scaleX, scaleY float32
	stats          Stats
	destroyed      bool
}

// New creates a software device.
func New(opts ...Option) *Device {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Device{
		cfg:     cfg,
		pool:    parallel.NewPool(cfg.workers),
		targets: make(map[gpucore.TargetID]*target),
		buffers: make(map[gpucore.BufferID][]uint32),
		free:    make(map[tempKey][]gpucore.TargetID),
		kernels: make(map[gpucore.KernelID]*cpuKernel),
		scaleX:  1,
		scaleY:  1,
	}
	slogger().Debug("software: device created", "workers", d.pool.Workers())
	return d
}

// SetLogger sets the logger used by the software backend.
func (d *Device) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Destroy releases all resources and stops the worker pool.
// Destroy is safe to call multiple times.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.pool.Close()
	clear(d.targets)
	clear(d.buffers)
	clear(d.free)
	d.stats.LiveTargets = 0
	d.stats.LiveBuffers = 0
	d.stats.BytesInUse = 0
	slogger().Debug("software: device destroyed")
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// LoadKernel implements gpucore.Device.
func (d *Device) LoadKernel(name string) (gpucore.KernelID, error) {
	k, ok := cpuKernels[name]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: %q: %w", name, gpucore.ErrUnknownKernel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, loaded := range d.kernels {
		if loaded == k {
			return id, nil
		}
	}
	id := gpucore.KernelID(d.newID())
	d.kernels[id] = k
	slogger().Debug("software: kernel loaded", "name", name, "id", id)
	return id, nil
}

// bytesPerPixel returns the storage cost a real device would pay.
func bytesPerPixel(f gputypes.TextureFormat) (int64, bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return 4, true
	case gputypes.TextureFormatRGBA16Float:
		return 8, true
	case gputypes.TextureFormatRGBA32Float:
		return 16, true
	default:
		return 0, false
	}
}

// reserve accounts for size bytes against the memory limit.
func (d *Device) reserve(size int64, label string) error {
	if d.cfg.memoryLimit > 0 && d.stats.BytesInUse+size > d.cfg.memoryLimit {
		return fmt.Errorf("software: %q needs %d bytes, %d of %d in use: %w",
			label, size, d.stats.BytesInUse, d.cfg.memoryLimit, gpucore.ErrAllocation)
	}
	d.stats.BytesInUse += size
	return nil
}

func (d *Device) createTarget(desc *gpucore.TargetDesc, temporary bool) (gpucore.TargetID, error) {
	if d.destroyed {
		return gpucore.InvalidID, fmt.Errorf("software: device destroyed: %w", gpucore.ErrAllocation)
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	bpp, ok := bytesPerPixel(desc.Format)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: %s: %w", desc.Format, gpucore.ErrUnsupportedFormat)
	}
	size := int64(desc.Width) * int64(desc.Height) * bpp
	if err := d.reserve(size, desc.Label); err != nil {
		return gpucore.InvalidID, err
	}

	id := gpucore.TargetID(d.newID())
	d.targets[id] = &target{
		desc:      *desc,
		surf:      kernel.NewSurface(desc.Width, desc.Height),
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
	slogger().Debug("software: target allocated",
		"id", id, "label", desc.Label, "width", desc.Width, "height", desc.Height,
		"format", desc.Format, "colorSpace", desc.ColorSpace)
	return id, nil
}

func (d *Device) destroyTarget(id gpucore.TargetID) bool {
	t, ok := d.targets[id]
	if !ok {
		return false
	}
	delete(d.targets, id)
	d.stats.BytesInUse -= t.size
	d.stats.LiveTargets--
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
	slogger().Debug("software: target released", "id", id)
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

	// Scratch targets hold encoded values so the kernels run in
	// perceptual space.
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

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(count, stride int, label string) (gpucore.BufferID, error) {
	if count < 1 || stride < 4 || stride%4 != 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: invalid layout %d x %d bytes", label, count, stride)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, fmt.Errorf("software: device destroyed: %w", gpucore.ErrAllocation)
	}
	size := int64(count) * int64(stride)
	if err := d.reserve(size, label); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = make([]uint32, size/4)
	d.stats.LiveBuffers++
	slogger().Debug("software: buffer created", "id", id, "label", label, "bytes", size)
	return id, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.stats.BytesInUse -= int64(len(words)) * 4
	d.stats.LiveBuffers--
}

// BufferWords returns a copy of a buffer's contents.
func (d *Device) BufferWords(id gpucore.BufferID) ([]uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	return append([]uint32(nil), words...), true
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

// ResizeBuffers implements gpucore.DynamicResolution.
func (d *Device) ResizeBuffers(scaleX, scaleY float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scaleX, d.scaleY = scaleX, scaleY
}

// RenderScale returns the scale last set by ResizeBuffers.
func (d *Device) RenderScale() (x, y float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scaleX, d.scaleY
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// UploadTarget implements gpucore.TargetUploader.
// pix holds sRGB-encoded RGBA8 rows of stride bytes.
func (d *Device) UploadTarget(id gpucore.TargetID, pix []byte, stride int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[id]
	if !ok {
		return fmt.Errorf("software: upload to target %d: %w", id, gpucore.ErrInvalidResource)
	}
	w, h := t.desc.Width, t.desc.Height
	if stride < w*4 || len(pix) < stride*(h-1)+w*4 {
		return fmt.Errorf("software: upload to target %d: %d bytes with stride %d is too small for %dx%d",
			id, len(pix), stride, w, h)
	}
	for y := 0; y < h; y++ {
		color.Unpack(t.surf.Pix[y*w*4:(y+1)*w*4], pix[y*stride:y*stride+w*4], t.desc.ColorSpace)
	}
	return nil
}

// ReadTarget implements gpucore.TargetReader.
func (d *Device) ReadTarget(id gpucore.TargetID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[id]
	if !ok {
		return nil, fmt.Errorf("software: read target %d: %w", id, gpucore.ErrInvalidResource)
	}
	out := make([]byte, len(t.surf.Pix))
	color.Pack(out, t.surf.Pix, t.desc.ColorSpace)
	return out, nil
}

// UploadImage draws img into a target, resampling it to the target size
// with the given scaler. A nil scaler uses draw.CatmullRom.
func (d *Device) UploadImage(id gpucore.TargetID, img image.Image, scaler draw.Scaler) error {
	desc, ok := d.TargetInfo(id)
	if !ok {
		return fmt.Errorf("software: upload image to target %d: %w", id, gpucore.ErrInvalidResource)
	}
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height))
	if img.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return d.UploadTarget(id, dst.Pix, dst.Stride)
}

// Image reads a target back as an *image.RGBA.
func (d *Device) Image(id gpucore.TargetID) (*image.RGBA, error) {
	desc, ok := d.TargetInfo(id)
	if !ok {
		return nil, fmt.Errorf("software: image of target %d: %w", id, gpucore.ErrInvalidResource)
	}
	pix, err := d.ReadTarget(id)
	if err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    pix,
		Stride: desc.Width * 4,
		Rect:   image.Rect(0, 0, desc.Width, desc.Height),
	}, nil
}

// NewEncoder implements gpucore.Device.
func (d *Device) NewEncoder() gpucore.Encoder {
	return &encoder{dev: d}
}
