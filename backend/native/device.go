//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fsr/gpucore"
)

// Compile-time interface checks.
var (
	_ gpucore.Device            = (*Device)(nil)
	_ gpucore.DynamicResolution = (*Device)(nil)
	_ gpucore.TargetUploader    = (*Device)(nil)
	_ gpucore.TargetReader      = (*Device)(nil)
	_ gpucore.TemporaryTrimmer  = (*Device)(nil)
)

// Device errors.
var (
	// ErrNilDevice is returned when a HAL device or queue is missing.
	ErrNilDevice = errors.New("native: HAL device is nil")

	// ErrNoAdapter is returned by Open when the backend exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter available")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL types")
)

// Option configures a Device.
type Option func(*config)

type config struct {
	memoryLimit int64
}

// WithMemoryLimit caps the bytes of target and buffer storage the device
// will hand out. Allocations beyond the limit fail with
// gpucore.ErrAllocation. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}

// Stats reports device resource counters.
type Stats struct {
	TargetsAllocated   int
	TargetsReleased    int
	TemporariesCreated int
	LiveTargets        int
	LiveBuffers        int
	Dispatches         int
	Blits              int
	Submissions        int
	BytesInUse         int64
}

// retired is a deferred free that waits for a submission to complete.
type retired struct {
	index uint64
	free  func()
}

// Device is a GPU implementation of gpucore.Device.
//
// Thread safety: Device is safe for concurrent use; command recording and
// submission are serialized.
type Device struct {
	mu sync.Mutex

	cfg    config
	device hal.Device
	queue  hal.Queue

	// Set when Open created the device; Destroy then tears it down.
	instance hal.Instance
	owned    bool

	format gputypes.TextureFormat

	nextID  uint64
	targets map[gpucore.TargetID]*target
	buffers map[gpucore.BufferID]*buffer
	free    map[tempKey][]gpucore.TargetID
	kernels map[gpucore.KernelID]*gpuKernel
	byName  map[string]gpucore.KernelID
	blit    *gpuKernel

	lastSubmit uint64
	retired    []retired

	scaleX, scaleY float32
	stats          Stats
	destroyed      bool
}

// New wraps an existing HAL device and queue. The caller keeps ownership
// of both; Destroy releases only what the Device created.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Device{
		cfg:     cfg,
		device:  device,
		queue:   queue,
		format:  gputypes.TextureFormatRGBA8Unorm,
		targets: make(map[gpucore.TargetID]*target),
		buffers: make(map[gpucore.BufferID]*buffer),
		free:    make(map[tempKey][]gpucore.TargetID),
		kernels: make(map[gpucore.KernelID]*gpuKernel),
		byName:  make(map[string]gpucore.KernelID),
		scaleX:  1,
		scaleY:  1,
	}
	slogger().Debug("native: device created")
	return d, nil
}

// NewFromProvider uses the GPU device of a host application.
//
// The provider must expose HAL types, either through HalDevice() and
// HalQueue() methods or by returning hal.Device and hal.Queue from
// Device() and Queue(). The provider's surface format becomes the
// device's preferred format.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	if provider == nil {
		return nil, ErrNilDevice
	}
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	d, err := New(device, queue, opts...)
	if err != nil {
		return nil, err
	}
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		d.format = f
	}
	slogger().Info("native: using shared GPU device", "surfaceFormat", d.format)
	return d, nil
}

func halFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	var dev, queue any
	if hp, ok := provider.(halProvider); ok {
		dev, queue = hp.HalDevice(), hp.HalQueue()
	} else {
		dev, queue = provider.Device(), provider.Queue()
	}
	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: device is %T", ErrNoHAL, dev)
	}
	q, ok := queue.(hal.Queue)
	if !ok || q == nil {
		return nil, nil, fmt.Errorf("%w: queue is %T", ErrNoHAL, queue)
	}
	return device, q, nil
}

// Open creates a HAL instance for the given backend and opens the first
// discrete or integrated adapter, falling back to the first one listed.
func Open(variant gputypes.Backend, opts ...Option) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("native: %v: %w", variant, hal.ErrBackendNotFound)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open %s: %w", selected.Info.Name, err)
	}

	d, err := New(open.Device, open.Queue, opts...)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	slogger().Info("native: adapter opened", "name", selected.Info.Name, "backend", variant)
	return d, nil
}

// preferredBackends is the order OpenBest tries HAL backends in.
var preferredBackends = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

// OpenBest opens the first registered hardware backend that has an
// adapter. HAL backends register themselves on import, for example through
// github.com/gogpu/wgpu/hal/allbackends.
func OpenBest(opts ...Option) (*Device, error) {
	var errs []error
	for _, variant := range preferredBackends {
		if _, ok := hal.GetBackend(variant); !ok {
			continue
		}
		d, err := Open(variant, opts...)
		if err == nil {
			return d, nil
		}
		slogger().Warn("native: backend unavailable", "backend", variant, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoAdapter
	}
	return nil, errors.Join(errs...)
}

// SetLogger sets the logger used by the native backend.
func (d *Device) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Format returns the preferred output format: the host surface format for
// shared devices, RGBA8Unorm otherwise.
func (d *Device) Format() gputypes.TextureFormat {
	return d.format
}

// Destroy waits for the GPU, releases every resource the Device created
// and, for devices made by Open, the HAL device itself.
// Destroy is safe to call multiple times.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true

	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("native: wait idle on destroy", "err", err)
	}
	d.collect(true)
	d.lastSubmit = 0

	for id := range d.targets {
		d.destroyTarget(id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	for id, k := range d.kernels {
		k.destroy(d.device)
		delete(d.kernels, id)
	}
	if d.blit != nil {
		d.blit.destroy(d.device)
		d.blit = nil
	}
	clear(d.byName)
	clear(d.free)
	d.stats.LiveBuffers = 0
	d.stats.BytesInUse = 0

	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	slogger().Debug("native: device destroyed")
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// reserve accounts for size bytes against the memory limit.
func (d *Device) reserve(size int64, label string) error {
	if d.cfg.memoryLimit > 0 && d.stats.BytesInUse+size > d.cfg.memoryLimit {
		return fmt.Errorf("native: %q needs %d bytes, %d of %d in use: %w",
			label, size, d.stats.BytesInUse, d.cfg.memoryLimit, gpucore.ErrAllocation)
	}
	d.stats.BytesInUse += size
	return nil
}

// allocErr maps a HAL creation failure to gpucore.ErrAllocation.
func allocErr(what, label string, err error) error {
	return fmt.Errorf("native: create %s %q: %w: %w", what, label, gpucore.ErrAllocation, err)
}

// retire schedules free to run once everything submitted so far has
// completed.
func (d *Device) retire(free func()) {
	if d.lastSubmit == 0 || d.queue.PollCompleted() >= d.lastSubmit {
		free()
		return
	}
	d.retired = append(d.retired, retired{index: d.lastSubmit, free: free})
}

// collect runs the deferred frees whose submissions have completed, or all
// of them when all is set.
func (d *Device) collect(all bool) {
	if len(d.retired) == 0 {
		return
	}
	done := d.queue.PollCompleted()
	kept := d.retired[:0]
	for _, r := range d.retired {
		if all || r.index <= done {
			r.free()
			continue
		}
		kept = append(kept, r)
	}
	clear(d.retired[len(kept):])
	d.retired = kept
}

// ResizeBuffers implements gpucore.DynamicResolution. The scale is
// recorded for hosts that size their own passes from RenderScale.
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

// NewEncoder implements gpucore.Device.
func (d *Device) NewEncoder() gpucore.Encoder {
	return &encoder{dev: d}
}
