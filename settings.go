package fsr

import (
	"fmt"
	"math"
)

// Configuration ranges. Values outside them are clamped.
const (
	MinScaleFactor = 1.3
	MaxScaleFactor = 2.0
	MinSharpness   = 0.0
	MaxSharpness   = 2.0
)

// QualityMode is a named scale factor preset.
type QualityMode int

const (
	// UltraQuality renders at 1/1.3 of the output size.
	UltraQuality QualityMode = iota
	// Quality renders at 1/1.5 of the output size.
	Quality
	// Balanced renders at 1/1.7 of the output size.
	Balanced
	// Performance renders at half the output size.
	Performance
)

var qualityScales = [...]float32{
	UltraQuality: 1.3,
	Quality:      1.5,
	Balanced:     1.7,
	Performance:  2.0,
}

// String returns the preset name.
func (q QualityMode) String() string {
	switch q {
	case UltraQuality:
		return "UltraQuality"
	case Quality:
		return "Quality"
	case Balanced:
		return "Balanced"
	case Performance:
		return "Performance"
	default:
		return fmt.Sprintf("QualityMode(%d)", int(q))
	}
}

// ScaleFactor returns the preset's scale factor. Unknown presets return
// the UltraQuality factor.
func (q QualityMode) ScaleFactor() float32 {
	if q < 0 || int(q) >= len(qualityScales) {
		return qualityScales[UltraQuality]
	}
	return qualityScales[q]
}

// Settings is the user-facing configuration of a pipeline.
type Settings struct {
	// ScaleFactor is the ratio of output size to rendered size, in [1.3, 2].
	ScaleFactor float32

	// Sharpening enables the RCAS stage.
	Sharpening bool

	// Sharpness is the RCAS strength in stops, in [0, 2].
	// 0 is the strongest sharpening, 2 the weakest.
	Sharpness float32
}

// DefaultSettings returns UltraQuality scaling with light sharpening.
func DefaultSettings() Settings {
	return Settings{
		ScaleFactor: MinScaleFactor,
		Sharpening:  true,
		Sharpness:   0.2,
	}
}

// QualitySettings returns DefaultSettings with the preset's scale factor.
func QualitySettings(q QualityMode) Settings {
	s := DefaultSettings()
	s.ScaleFactor = q.ScaleFactor()
	return s
}

// Clamped returns s with every field moved into its documented range.
// NaN values fall back to the defaults.
func (s Settings) Clamped() Settings {
	def := DefaultSettings()
	s.ScaleFactor = clampFloat(s.ScaleFactor, MinScaleFactor, MaxScaleFactor, def.ScaleFactor)
	s.Sharpness = clampFloat(s.Sharpness, MinSharpness, MaxSharpness, def.Sharpness)
	return s
}

func clampFloat(v, lo, hi, fallback float32) float32 {
	if math.IsNaN(float64(v)) {
		return fallback
	}
	return min(max(v, lo), hi)
}

// ReducedSize returns the render size for a full-resolution output:
// floor(full / ScaleFactor), never below 1 in either dimension.
// The scale factor is clamped first.
func (s Settings) ReducedSize(fullWidth, fullHeight int) (width, height int) {
	// float32 division: float64(float32(1.7)) would floor 1700 to 999.
	scale := s.Clamped().ScaleFactor
	width = int(float32(fullWidth) / scale)
	height = int(float32(fullHeight) / scale)
	return max(width, 1), max(height, 1)
}

// MipBias returns the texture LOD bias that matches the scale factor:
// -0.38 at 1.3 down to -1 at 2.0. The kernels do not read it; renderers
// apply it when sampling textures for the low-resolution scene.
func (s Settings) MipBias() float32 {
	t := (s.Clamped().ScaleFactor - MinScaleFactor) / (MaxScaleFactor - MinScaleFactor)
	return -lerp(0.38, 1, t)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
