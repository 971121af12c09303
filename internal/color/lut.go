// Package color converts pixel data between the 8-bit host representation
// and the float surfaces used by the software device.
//
// Host pixel data is always sRGB-encoded RGBA8. Targets store either
// sRGB-encoded or linear values depending on their color space; the lookup
// tables below make the 8-bit conversions O(1).
//
// References:
//   - sRGB specification: https://www.w3.org/Graphics/Color/sRGB
package color

import "math"

// decodeLUT converts an sRGB byte [0-255] to a linear float32 [0.0-1.0].
var decodeLUT [256]float32

// encodeLUT converts a linear float32 quantized to 12 bits to an sRGB byte.
var encodeLUT [4096]uint8

func init() {
	for i := 0; i < 256; i++ {
		decodeLUT[i] = SRGBToLinear(float32(i) / 255)
	}
	for i := 0; i < 4096; i++ {
		s := int(LinearToSRGB(float32(i)/4095)*255 + 0.5)
		//nolint:gosec // G115: s is clamped to [0,255] by LinearToSRGB on [0,1]
		encodeLUT[i] = uint8(min(max(s, 0), 255))
	}
}

// SRGBToLinear converts an sRGB component in [0,1] to linear.
func SRGBToLinear(s float32) float32 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// LinearToSRGB converts a linear component in [0,1] to sRGB.
func LinearToSRGB(l float32) float32 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

// DecodeSRGB8 converts an sRGB byte to linear using the lookup table.
func DecodeSRGB8(s uint8) float32 {
	return decodeLUT[s]
}

// EncodeSRGB8 converts a linear value to an sRGB byte using the lookup table.
// Input is clamped to [0, 1].
func EncodeSRGB8(l float32) uint8 {
	l = min(max(l, 0), 1)
	return encodeLUT[int(l*4095+0.5)]
}
