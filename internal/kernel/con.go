package kernel

import "math"

// RcasLimit bounds the negative lobe of the RCAS filter.
const RcasLimit = 0.25 - 1.0/16.0

// EasuConstants is the packed EASU parameter block: four uint4 rows
// holding float32 bit patterns.
type EasuConstants [4][4]uint32

// RcasConstants is the packed RCAS parameter block: one uint4 row.
type RcasConstants [4]uint32

// EasuCon packs the EASU constant block.
//
// viewport is the rendered region of the input in pixels (x, y).
// input is (width, height, 1/width, 1/height) of the input image.
// output is (width, height, 1/width, 1/height) of the output image.
//
// Row 0 maps an output pixel to its input-space position. Rows 1-3 hold the
// normalized offsets of the four 2x2 gather quads around that position.
func EasuCon(viewport, input, output [4]float32) EasuConstants {
	var con EasuConstants

	sx := viewport[0] * output[2]
	sy := viewport[1] * output[3]
	con[0] = [4]uint32{
		f2u(sx),
		f2u(sy),
		f2u(0.5*sx - 0.5),
		f2u(0.5*sy - 0.5),
	}

	rx, ry := input[2], input[3]
	con[1] = [4]uint32{f2u(rx), f2u(ry), f2u(rx), f2u(-ry)}
	con[2] = [4]uint32{f2u(-rx), f2u(2 * ry), f2u(rx), f2u(2 * ry)}
	con[3] = [4]uint32{f2u(0), f2u(4 * ry), 0, 0}
	return con
}

// Scale returns the output-to-input scale stored in row 0.
func (c *EasuConstants) Scale() (x, y float32) {
	return u2f(c[0][0]), u2f(c[0][1])
}

// Offset returns the output-to-input offset stored in row 0.
func (c *EasuConstants) Offset() (x, y float32) {
	return u2f(c[0][2]), u2f(c[0][3])
}

// Words returns the block as a flat slice of 16 words.
func (c *EasuConstants) Words() []uint32 {
	out := make([]uint32, 0, 16)
	for _, row := range c {
		out = append(out, row[:]...)
	}
	return out
}

// EasuConFromWords rebuilds a block from 16 words.
func EasuConFromWords(w []uint32) EasuConstants {
	var c EasuConstants
	for i := 0; i < 4 && i*4+3 < len(w); i++ {
		c[i] = [4]uint32{w[i*4], w[i*4+1], w[i*4+2], w[i*4+3]}
	}
	return c
}

// RcasCon packs the RCAS constant block.
//
// scale is in stops: 0 is the strongest sharpening, each +1 halves it.
// Word 0 holds exp2(-scale) as float32 bits, word 1 the same value as a
// pair of float16 for half-precision kernels.
func RcasCon(scale float32) RcasConstants {
	sharp := float32(math.Exp2(float64(-scale)))
	return RcasConstants{
		f2u(sharp),
		pack2x16float(sharp, sharp),
		0,
		0,
	}
}

// Sharpness returns the linear sharpening amount stored in word 0.
func (c RcasConstants) Sharpness() float32 {
	return u2f(c[0])
}

func f2u(f float32) uint32 { return math.Float32bits(f) }
func u2f(u uint32) float32 { return math.Float32frombits(u) }

// pack2x16float packs two float32 values as IEEE half floats, a in the
// low 16 bits.
func pack2x16float(a, b float32) uint32 {
	return uint32(float32ToHalf(a)) | uint32(float32ToHalf(b))<<16
}

// float32ToHalf converts with round-to-nearest-even.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	rawExp := (bits >> 23) & 0xff
	mant := bits & 0x7fffff

	if rawExp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	exp := int(rawExp) - 127 + 15
	switch {
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | half
	}

	half := sign | uint16(exp)<<10 | uint16(mant>>13)
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return half
}
