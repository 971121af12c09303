package fsr

import "fmt"

// EASUInputs holds the three vectors the EASU init kernel packs into
// _EASUParameters. Each is (width, height, 1/width, 1/height) so that the
// kernel never divides.
type EASUInputs struct {
	ViewportSize   [4]float32
	InputImageSize [4]float32
	OutputSize     [4]float32
}

// NewEASUInputs computes the EASU vectors for an upsample from
// inWidth x inHeight to outWidth x outHeight. The scene fills the whole
// input image, so the viewport and input vectors are equal.
//
// Dimensions below 1 return ErrInvalidDimensions: their reciprocals would
// be infinite.
func NewEASUInputs(inWidth, inHeight, outWidth, outHeight int) (EASUInputs, error) {
	if inWidth < 1 || inHeight < 1 || outWidth < 1 || outHeight < 1 {
		return EASUInputs{}, fmt.Errorf("%w: easu %dx%d -> %dx%d",
			ErrInvalidDimensions, inWidth, inHeight, outWidth, outHeight)
	}
	in := sizeVector(inWidth, inHeight)
	return EASUInputs{
		ViewportSize:   in,
		InputImageSize: in,
		OutputSize:     sizeVector(outWidth, outHeight),
	}, nil
}

func sizeVector(w, h int) [4]float32 {
	fw, fh := float32(w), float32(h)
	return [4]float32{fw, fh, 1 / fw, 1 / fh}
}

// RCASScale returns the _RCASScale value for a sharpness setting, clamped
// to [MinSharpness, MaxSharpness].
func RCASScale(sharpness float32) float32 {
	return clampFloat(sharpness, MinSharpness, MaxSharpness, DefaultSettings().Sharpness)
}
