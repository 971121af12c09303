package fsr

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

// mockDevice records every call the pipeline makes. It executes nothing.
type mockDevice struct {
	mu sync.Mutex

	nextID     uint64
	targets    map[gpucore.TargetID]gpucore.TargetDesc
	buffers    map[gpucore.BufferID]int
	temps      map[gpucore.TargetID]bool
	kernels    map[string]gpucore.KernelID
	missing    map[string]bool
	submitted  [][]gpucore.Command
	scale      [2]float32
	logger     *slog.Logger
	allocated  int
	released   int
	tempsTaken int

	// failAllocAfter makes AllocateTarget fail once this many targets
	// have been allocated. Negative disables it.
	failAllocAfter int
	failBuffers    bool
	failSubmit     bool
}

var (
	_ gpucore.Device            = (*mockDevice)(nil)
	_ gpucore.DynamicResolution = (*mockDevice)(nil)
)

func newMockDevice() *mockDevice {
	return &mockDevice{
		targets:        make(map[gpucore.TargetID]gpucore.TargetDesc),
		buffers:        make(map[gpucore.BufferID]int),
		temps:          make(map[gpucore.TargetID]bool),
		kernels:        make(map[string]gpucore.KernelID),
		missing:        make(map[string]bool),
		scale:          [2]float32{1, 1},
		failAllocAfter: -1,
	}
}

func (d *mockDevice) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *mockDevice) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

func (d *mockDevice) LoadKernel(name string) (gpucore.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.missing[name] {
		return gpucore.InvalidID, fmt.Errorf("mock: %s: %w", name, gpucore.ErrUnknownKernel)
	}
	if id, ok := d.kernels[name]; ok {
		return id, nil
	}
	id := gpucore.KernelID(d.id())
	d.kernels[name] = id
	return id, nil
}

func (d *mockDevice) AllocateTarget(desc *gpucore.TargetDesc) (gpucore.TargetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAllocAfter >= 0 && d.allocated >= d.failAllocAfter {
		return gpucore.InvalidID, fmt.Errorf("mock: %q: %w", desc.Label, gpucore.ErrAllocation)
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.TargetID(d.id())
	d.targets[id] = *desc
	d.allocated++
	return id, nil
}

func (d *mockDevice) ReleaseTarget(id gpucore.TargetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.targets[id]; ok && !d.temps[id] {
		delete(d.targets, id)
		d.released++
	}
}

func (d *mockDevice) AcquireTemporary(width, height int, format gputypes.TextureFormat) (gpucore.TargetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.TargetID(d.id())
	d.targets[id] = gpucore.TargetDesc{Width: width, Height: height, Format: format}
	d.temps[id] = true
	d.tempsTaken++
	return id, nil
}

func (d *mockDevice) ReleaseTemporary(id gpucore.TargetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.temps[id] {
		delete(d.temps, id)
		delete(d.targets, id)
	}
}

func (d *mockDevice) CreateBuffer(count, stride int, label string) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failBuffers && len(d.buffers) > 0 {
		return gpucore.InvalidID, fmt.Errorf("mock: buffer %q: %w", label, gpucore.ErrAllocation)
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = count
	return id, nil
}

func (d *mockDevice) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

func (d *mockDevice) TargetInfo(id gpucore.TargetID) (gpucore.TargetDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.targets[id]
	return desc, ok
}

func (d *mockDevice) ResizeBuffers(scaleX, scaleY float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scale = [2]float32{scaleX, scaleY}
}

func (d *mockDevice) NewEncoder() gpucore.Encoder {
	return &mockEncoder{dev: d}
}

// liveTargets counts persistent targets.
func (d *mockDevice) liveTargets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets) - len(d.temps)
}

func (d *mockDevice) lastSubmit() []gpucore.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submitted) == 0 {
		return nil
	}
	return d.submitted[len(d.submitted)-1]
}

type mockEncoder struct {
	gpucore.Recording
	dev *mockDevice
}

func (e *mockEncoder) Submit() error {
	cmds, err := e.Finish()
	if err != nil {
		return err
	}
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	if e.dev.failSubmit {
		return fmt.Errorf("mock: submit: %w", gpucore.ErrInvalidResource)
	}
	e.dev.submitted = append(e.dev.submitted, cmds)
	return nil
}

// dispatches returns the dispatch commands of cmds for kernel k.
func dispatches(cmds []gpucore.Command, k gpucore.KernelID) []*gpucore.DispatchCommand {
	var out []*gpucore.DispatchCommand
	for _, c := range cmds {
		if d, ok := c.(*gpucore.DispatchCommand); ok && d.Kernel == k {
			out = append(out, d)
		}
	}
	return out
}

func blits(cmds []gpucore.Command) []*gpucore.BlitCommand {
	var out []*gpucore.BlitCommand
	for _, c := range cmds {
		if b, ok := c.(*gpucore.BlitCommand); ok {
			out = append(out, b)
		}
	}
	return out
}
