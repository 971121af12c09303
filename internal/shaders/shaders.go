// Package shaders holds the WGSL sources of the EASU and RCAS kernels and
// compiles them to SPIR-V with naga.
//
// Both kernels use the same binding slots:
//
//	binding 0: uniform constants (sizes or scale), read by init
//	binding 1: storage parameter buffer, written by init, read by main
//	binding 2: input texture, read by main
//	binding 3: rgba8unorm storage texture, written by main
//
// The Blit kernel has only a main entry point and binds 0, 2 and 3.
package shaders

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/fsr/gpucore"
)

//go:embed easu.wgsl
var easuSource string

//go:embed rcas.wgsl
var rcasSource string

//go:embed blit.wgsl
var blitSource string

// Entry point names, indexed by gpucore.KernelMain and gpucore.KernelInit.
var EntryPoints = [2]string{
	gpucore.KernelMain: "main",
	gpucore.KernelInit: "init",
}

// Binding slots of the shared layout.
const (
	BindingConstants = 0
	BindingParams    = 1
	BindingInput     = 2
	BindingOutput    = 3
)

// WorkgroupSize is the edge of the main entry point's square workgroup.
const WorkgroupSize = 8

// ErrUnknownKernel is returned by Lookup for names with no source.
var ErrUnknownKernel = errors.New("shaders: unknown kernel")

// Kernel is one WGSL compute kernel.
type Kernel struct {
	Name   string
	Source string

	// ConstantsSize is the byte size of the binding 0 uniform block.
	ConstantsSize uint64

	// ParamsSize is the byte size of the binding 1 parameter buffer.
	ParamsSize uint64

	// entries maps required entry point names to workgroup sizes.
	entries map[string][3]uint32

	// bindings lists the slots each entry point reads or writes.
	bindings map[string][]uint32

	once  sync.Once
	spirv []uint32
	err   error
}

// kernelEntries are the entry points of an init/main kernel.
var kernelEntries = map[string][3]uint32{
	EntryPoints[gpucore.KernelMain]: {WorkgroupSize, WorkgroupSize, 1},
	EntryPoints[gpucore.KernelInit]: {1, 1, 1},
}

var kernelBindings = map[string][]uint32{
	EntryPoints[gpucore.KernelMain]: {BindingParams, BindingInput, BindingOutput},
	EntryPoints[gpucore.KernelInit]: {BindingConstants, BindingParams},
}

// Blit modes understood by the Blit kernel.
const (
	BlitCopy   = 0
	BlitDecode = 1 // sRGB to linear
	BlitEncode = 2 // linear to sRGB
)

// Blit re-encodes a full-size copy between color spaces. It is not
// returned by Lookup.
var Blit = &Kernel{
	Name:          "Blit",
	Source:        blitSource,
	ConstantsSize: gpucore.UintVectorSize,
	entries: map[string][3]uint32{
		EntryPoints[gpucore.KernelMain]: {WorkgroupSize, WorkgroupSize, 1},
	},
	bindings: map[string][]uint32{
		EntryPoints[gpucore.KernelMain]: {BindingConstants, BindingInput, BindingOutput},
	},
}

var kernels = map[string]*Kernel{
	gpucore.KernelEASU: {
		Name:          gpucore.KernelEASU,
		Source:        easuSource,
		ConstantsSize: 3 * gpucore.UintVectorSize,
		ParamsSize:    4 * gpucore.UintVectorSize,
		entries:       kernelEntries,
		bindings:      kernelBindings,
	},
	gpucore.KernelRCAS: {
		Name:          gpucore.KernelRCAS,
		Source:        rcasSource,
		ConstantsSize: gpucore.UintVectorSize,
		ParamsSize:    gpucore.UintVectorSize,
		entries:       kernelEntries,
		bindings:      kernelBindings,
	},
}

// Lookup returns the kernel with the given name.
func Lookup(name string) (*Kernel, error) {
	k, ok := kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return k, nil
}

// Names returns the kernel names in sorted order.
func Names() []string {
	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bindings returns the binding slots the entry point uses in ascending
// order, or nil when the kernel has no such entry point.
func (k *Kernel) Bindings(entry string) []uint32 {
	return k.bindings[entry]
}

// SPIRV compiles the kernel once and returns the SPIR-V words.
func (k *Kernel) SPIRV() ([]uint32, error) {
	k.once.Do(func() {
		k.spirv, k.err = compile(k.Name, k.Source, k.entries)
	})
	return k.spirv, k.err
}

// compile runs the naga stages one by one so that the entry points can be
// checked on the IR before code generation.
func compile(name, source string, entries map[string][3]uint32) ([]uint32, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shaders: %s: %w", name, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shaders: %s: lower: %w", name, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("shaders: %s: validate: %w", name, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("shaders: %s: validate: %w", name, &verrs[0])
	}
	if err := checkEntryPoints(module, entries); err != nil {
		return nil, fmt.Errorf("shaders: %s: %w", name, err)
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("shaders: %s: %w", name, err)
	}
	return Words(code)
}

// checkEntryPoints verifies that every required entry point exists as a
// compute shader with the workgroup size the dispatch planner assumes.
func checkEntryPoints(m *ir.Module, required map[string][3]uint32) error {
	want := maps.Clone(required)
	for _, ep := range m.EntryPoints {
		wg, ok := want[ep.Name]
		if !ok {
			continue
		}
		if ep.Stage != ir.StageCompute {
			return fmt.Errorf("entry point %q is not a compute shader", ep.Name)
		}
		if ep.Workgroup != wg {
			return fmt.Errorf("entry point %q has workgroup %v, want %v", ep.Name, ep.Workgroup, wg)
		}
		delete(want, ep.Name)
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		slices.Sort(missing)
		return fmt.Errorf("missing entry points %q", missing)
	}
	return nil
}

// Words converts little-endian SPIR-V bytes to 32-bit words.
func Words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("shaders: SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}
