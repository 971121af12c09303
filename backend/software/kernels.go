package software

import (
	"fmt"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/kernel"
)

// threadGroupSize is the edge length of the square thread groups the
// main entry points are authored for.
const threadGroupSize = 8

// entryFunc executes one recorded dispatch. It runs with d.mu held.
type entryFunc func(d *Device, cmd *gpucore.DispatchCommand) error

// cpuKernel is a compute kernel with its two entry points.
type cpuKernel struct {
	name    string
	entries [2]entryFunc
}

// cpuKernels is the fixed set of kernels this device provides.
var cpuKernels = map[string]*cpuKernel{
	gpucore.KernelEASU: {
		name:    gpucore.KernelEASU,
		entries: [2]entryFunc{gpucore.KernelMain: easuMain, gpucore.KernelInit: easuInit},
	},
	gpucore.KernelRCAS: {
		name:    gpucore.KernelRCAS,
		entries: [2]entryFunc{gpucore.KernelMain: rcasMain, gpucore.KernelInit: rcasInit},
	},
}

// Bind point lookup helpers. Errors name the kernel, entry and bind point.

func (d *Device) bufferArg(k string, cmd *gpucore.DispatchCommand, name gpucore.PropertyID, words int) ([]uint32, error) {
	buf, ok := d.buffers[cmd.Buffer(name)]
	if !ok {
		return nil, fmt.Errorf("software: %s[%d]: %s: %w", k, cmd.Index, name, gpucore.ErrInvalidResource)
	}
	if len(buf) < words {
		return nil, fmt.Errorf("software: %s[%d]: %s holds %d words, need %d", k, cmd.Index, name, len(buf), words)
	}
	return buf, nil
}

func (d *Device) textureArg(k string, cmd *gpucore.DispatchCommand, name gpucore.PropertyID) (*target, error) {
	t, ok := d.targets[cmd.Texture(name)]
	if !ok {
		return nil, fmt.Errorf("software: %s[%d]: %s: %w", k, cmd.Index, name, gpucore.ErrInvalidResource)
	}
	return t, nil
}

func vectorArg(k string, cmd *gpucore.DispatchCommand, name gpucore.PropertyID) ([4]float32, error) {
	v, ok := cmd.Vector(name)
	if !ok {
		return v, fmt.Errorf("software: %s[%d]: vector %s not set", k, cmd.Index, name)
	}
	return v, nil
}

// easuInit packs _EASUParameters from the three size vectors.
func easuInit(d *Device, cmd *gpucore.DispatchCommand) error {
	const k = gpucore.KernelEASU
	viewport, err := vectorArg(k, cmd, gpucore.PropEASUViewportSize)
	if err != nil {
		return err
	}
	input, err := vectorArg(k, cmd, gpucore.PropEASUInputImageSize)
	if err != nil {
		return err
	}
	output, err := vectorArg(k, cmd, gpucore.PropEASUOutputSize)
	if err != nil {
		return err
	}
	if output[2] == 0 || output[3] == 0 || input[2] == 0 || input[3] == 0 {
		return fmt.Errorf("software: %s[%d]: zero reciprocal in size vectors", k, cmd.Index)
	}
	buf, err := d.bufferArg(k, cmd, gpucore.PropEASUParameters, 16)
	if err != nil {
		return err
	}

	con := kernel.EasuCon(viewport, input, output)
	copy(buf, con.Words())
	return nil
}

// easuMain upsamples InputTexture into OutputTexture.
func easuMain(d *Device, cmd *gpucore.DispatchCommand) error {
	const k = gpucore.KernelEASU
	buf, err := d.bufferArg(k, cmd, gpucore.PropEASUParameters, 16)
	if err != nil {
		return err
	}
	src, err := d.textureArg(k, cmd, gpucore.PropInputTexture)
	if err != nil {
		return err
	}
	dst, err := d.textureArg(k, cmd, gpucore.PropOutputTexture)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("software: %s[%d]: input and output alias", k, cmd.Index)
	}

	con := kernel.EasuConFromWords(buf)
	d.pool.Dispatch(cmd.Groups, func(x, y, _ uint32) {
		x0, y0 := int(x)*threadGroupSize, int(y)*threadGroupSize
		kernel.EasuRun(dst.surf, src.surf, &con, x0, y0, x0+threadGroupSize, y0+threadGroupSize)
	})
	return nil
}

// rcasInit packs _RCASParameters from _RCASScale.
func rcasInit(d *Device, cmd *gpucore.DispatchCommand) error {
	const k = gpucore.KernelRCAS
	scale, ok := cmd.Float(gpucore.PropRCASScale)
	if !ok {
		return fmt.Errorf("software: %s[%d]: float %s not set", k, cmd.Index, gpucore.PropRCASScale)
	}
	buf, err := d.bufferArg(k, cmd, gpucore.PropRCASParameters, 4)
	if err != nil {
		return err
	}
	con := kernel.RcasCon(scale)
	copy(buf, con[:])
	return nil
}

// rcasMain sharpens InputTexture into OutputTexture.
func rcasMain(d *Device, cmd *gpucore.DispatchCommand) error {
	const k = gpucore.KernelRCAS
	buf, err := d.bufferArg(k, cmd, gpucore.PropRCASParameters, 4)
	if err != nil {
		return err
	}
	src, err := d.textureArg(k, cmd, gpucore.PropInputTexture)
	if err != nil {
		return err
	}
	dst, err := d.textureArg(k, cmd, gpucore.PropOutputTexture)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("software: %s[%d]: input and output alias", k, cmd.Index)
	}

	con := kernel.RcasConstants{buf[0], buf[1], buf[2], buf[3]}
	d.pool.Dispatch(cmd.Groups, func(x, y, _ uint32) {
		x0, y0 := int(x)*threadGroupSize, int(y)*threadGroupSize
		kernel.RcasRun(dst.surf, src.surf, con, x0, y0, x0+threadGroupSize, y0+threadGroupSize)
	})
	return nil
}
