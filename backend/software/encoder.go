package software

import (
	"fmt"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/color"
)

// encoder records commands and executes them on Submit.
type encoder struct {
	gpucore.Recording
	dev *Device
}

// Submit executes the recorded commands in order. Each dispatch finishes
// before the next command starts. Execution stops at the first failing
// command.
func (e *encoder) Submit() error {
	cmds, err := e.Finish()
	if err != nil {
		return err
	}

	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("software: submit: device destroyed")
	}

	for i, c := range cmds {
		switch cmd := c.(type) {
		case *gpucore.DispatchCommand:
			err = d.dispatch(cmd)
		case *gpucore.BlitCommand:
			err = d.blit(cmd)
		default:
			err = fmt.Errorf("software: unknown command %T", c)
		}
		if err != nil {
			return fmt.Errorf("software: command %d: %w", i, err)
		}
	}
	slogger().Debug("software: submitted", "commands", len(cmds))
	return nil
}

func (d *Device) dispatch(cmd *gpucore.DispatchCommand) error {
	k, ok := d.kernels[cmd.Kernel]
	if !ok {
		return fmt.Errorf("kernel %d: %w", cmd.Kernel, gpucore.ErrInvalidResource)
	}
	if cmd.Index < 0 || cmd.Index >= len(k.entries) || k.entries[cmd.Index] == nil {
		return fmt.Errorf("%s has no entry point %d", k.name, cmd.Index)
	}
	if err := k.entries[cmd.Index](d, cmd); err != nil {
		return err
	}
	d.stats.Dispatches++
	return nil
}

func (d *Device) blit(cmd *gpucore.BlitCommand) error {
	src, ok := d.targets[cmd.Src]
	if !ok {
		return fmt.Errorf("blit source %d: %w", cmd.Src, gpucore.ErrInvalidResource)
	}
	dst, ok := d.targets[cmd.Dst]
	if !ok {
		return fmt.Errorf("blit destination %d: %w", cmd.Dst, gpucore.ErrInvalidResource)
	}
	if src.desc.Width != dst.desc.Width || src.desc.Height != dst.desc.Height {
		return fmt.Errorf("blit %dx%d to %dx%d: size mismatch",
			src.desc.Width, src.desc.Height, dst.desc.Width, dst.desc.Height)
	}
	if src != dst {
		copy(dst.surf.Pix, src.surf.Pix)
		color.Convert(dst.surf.Pix, src.desc.ColorSpace, dst.desc.ColorSpace)
	}
	d.stats.Blits++
	return nil
}
