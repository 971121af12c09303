package gpucore

import (
	"errors"
	"maps"
)

// ErrSubmitted is returned when an encoder is used after Submit.
var ErrSubmitted = errors.New("gpucore: encoder already submitted")

// Command is one recorded operation: *DispatchCommand or *BlitCommand.
type Command interface {
	command()
}

// DispatchCommand is a recorded compute dispatch together with the parameter
// state visible to the entry point when it was recorded.
type DispatchCommand struct {
	Kernel   KernelID
	Index    int
	Groups   Groups
	Vectors  map[PropertyID][4]float32
	Floats   map[PropertyID]float32
	Buffers  map[PropertyID]BufferID
	Textures map[PropertyID]TargetID
}

// BlitCommand is a recorded full-size copy.
type BlitCommand struct {
	Src TargetID
	Dst TargetID
}

func (*DispatchCommand) command() {}
func (*BlitCommand) command()     {}

// Vector returns a vector constant and whether it was set.
func (c *DispatchCommand) Vector(name PropertyID) ([4]float32, bool) {
	v, ok := c.Vectors[name]
	return v, ok
}

// Float returns a scalar constant and whether it was set.
func (c *DispatchCommand) Float(name PropertyID) (float32, bool) {
	v, ok := c.Floats[name]
	return v, ok
}

// Buffer returns the buffer bound to name, or InvalidID.
func (c *DispatchCommand) Buffer(name PropertyID) BufferID {
	return c.Buffers[name]
}

// Texture returns the target bound to name, or InvalidID.
func (c *DispatchCommand) Texture(name PropertyID) TargetID {
	return c.Textures[name]
}

type entryKey struct {
	kernel KernelID
	index  int
}

type kernelState struct {
	vectors map[PropertyID][4]float32
	floats  map[PropertyID]float32
}

type entryState struct {
	buffers  map[PropertyID]BufferID
	textures map[PropertyID]TargetID
}

// Recording accumulates commands for an [Encoder] implementation.
//
// Devices embed a Recording and implement Submit by walking Commands.
// Kernel-wide constants (SetVector, SetFloat) and per-entry bindings
// (SetBuffer, SetTexture) are tracked separately, as engines do.
type Recording struct {
	commands  []Command
	kernels   map[KernelID]*kernelState
	entries   map[entryKey]*entryState
	submitted bool
}

func (r *Recording) kernel(k KernelID) *kernelState {
	if r.kernels == nil {
		r.kernels = make(map[KernelID]*kernelState)
	}
	ks := r.kernels[k]
	if ks == nil {
		ks = &kernelState{
			vectors: make(map[PropertyID][4]float32),
			floats:  make(map[PropertyID]float32),
		}
		r.kernels[k] = ks
	}
	return ks
}

func (r *Recording) entry(k KernelID, index int) *entryState {
	if r.entries == nil {
		r.entries = make(map[entryKey]*entryState)
	}
	key := entryKey{k, index}
	es := r.entries[key]
	if es == nil {
		es = &entryState{
			buffers:  make(map[PropertyID]BufferID),
			textures: make(map[PropertyID]TargetID),
		}
		r.entries[key] = es
	}
	return es
}

// SetVector records a kernel-wide float4 constant.
func (r *Recording) SetVector(kernel KernelID, name PropertyID, v [4]float32) {
	r.kernel(kernel).vectors[name] = v
}

// SetFloat records a kernel-wide scalar constant.
func (r *Recording) SetFloat(kernel KernelID, name PropertyID, v float32) {
	r.kernel(kernel).floats[name] = v
}

// SetBuffer records a buffer binding for one entry point.
func (r *Recording) SetBuffer(kernel KernelID, index int, name PropertyID, buf BufferID) {
	r.entry(kernel, index).buffers[name] = buf
}

// SetTexture records a texture binding for one entry point.
func (r *Recording) SetTexture(kernel KernelID, index int, name PropertyID, target TargetID) {
	r.entry(kernel, index).textures[name] = target
}

// Dispatch records a dispatch with a snapshot of the current state.
func (r *Recording) Dispatch(kernel KernelID, index int, groups Groups) {
	ks := r.kernel(kernel)
	es := r.entry(kernel, index)
	cmd := &DispatchCommand{
		Kernel:   kernel,
		Index:    index,
		Groups:   groups,
		Vectors:  maps.Clone(ks.vectors),
		Floats:   maps.Clone(ks.floats),
		Buffers:  maps.Clone(es.buffers),
		Textures: maps.Clone(es.textures),
	}
	r.commands = append(r.commands, cmd)
}

// Blit records a full-size copy.
func (r *Recording) Blit(src, dst TargetID) {
	r.commands = append(r.commands, &BlitCommand{Src: src, Dst: dst})
}

// Commands returns the recorded commands in submission order.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Len returns the number of recorded commands.
func (r *Recording) Len() int {
	return len(r.commands)
}

// Finish marks the recording as submitted and returns its commands.
// A second call returns ErrSubmitted.
func (r *Recording) Finish() ([]Command, error) {
	if r.submitted {
		return nil, ErrSubmitted
	}
	r.submitted = true
	cmds := r.commands
	r.commands = nil
	return cmds, nil
}
