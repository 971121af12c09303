package color

import "github.com/gogpu/fsr/gpucore"

// Unpack converts tightly packed sRGB RGBA8 pixels to float RGBA stored in
// the given color space. Alpha is always linear.
func Unpack(dst []float32, src []byte, space gpucore.ColorSpace) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		if space == gpucore.ColorSpaceLinear && i%4 != 3 {
			dst[i] = DecodeSRGB8(src[i])
			continue
		}
		dst[i] = float32(src[i]) / 255
	}
}

// Pack converts float RGBA stored in the given color space to sRGB RGBA8.
func Pack(dst []byte, src []float32, space gpucore.ColorSpace) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		if space == gpucore.ColorSpaceLinear && i%4 != 3 {
			dst[i] = EncodeSRGB8(src[i])
			continue
		}
		dst[i] = unorm8(src[i])
	}
}

// Convert re-encodes float RGBA pixels in place from one color space to
// another. It is a no-op when the spaces match.
func Convert(pix []float32, from, to gpucore.ColorSpace) {
	if from == to {
		return
	}
	conv := LinearToSRGB
	if from == gpucore.ColorSpaceSRGB {
		conv = SRGBToLinear
	}
	for i := 0; i < len(pix); i++ {
		if i%4 == 3 {
			continue
		}
		pix[i] = conv(min(max(pix[i], 0), 1))
	}
}

// unorm8 clamps to [0,1] and rounds to the nearest byte.
func unorm8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
