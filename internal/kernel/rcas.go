package kernel

// RcasPixel evaluates the RCAS filter for pixel (x, y).
//
// RCAS sharpens with a 5-tap cross
//
//	  b
//	d e f
//	  h
//
// whose negative lobe is solved per channel as the largest value that
// does not push the result outside [0, 1], then limited by RcasLimit and
// scaled by the sharpness stored in con.
func RcasPixel(src *Surface, con RcasConstants, x, y int) [4]float32 {
	b := src.Load(x, y-1)
	d := src.Load(x-1, y)
	e := src.Load(x, y)
	f := src.Load(x+1, y)
	h := src.Load(x, y+1)

	lobe := float32(-1)
	for ch := 0; ch < 3; ch++ {
		mn4 := min(b[ch], d[ch], f[ch], h[ch])
		mx4 := max(b[ch], d[ch], f[ch], h[ch])
		hitMin := min(mn4, e[ch]) * rcp(4*mx4)
		hitMax := (1 - max(mx4, e[ch])) * rcp(4*mn4-4)
		lobe = max(lobe, -hitMin, hitMax)
	}
	lobe = max(-RcasLimit, min(lobe, 0)) * con.Sharpness()

	inv := rcp(4*lobe + 1)
	var out [4]float32
	for ch := 0; ch < 3; ch++ {
		out[ch] = saturate((lobe*(b[ch]+d[ch]+f[ch]+h[ch]) + e[ch]) * inv)
	}
	out[3] = e[3]
	return out
}

// RcasRun evaluates RcasPixel for every pixel of the tile
// [x0, x1) x [y0, y1), clipped to dst.
func RcasRun(dst, src *Surface, con RcasConstants, x0, y0, x1, y1 int) {
	x1 = min(x1, dst.Width)
	y1 = min(y1, dst.Height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dst.Store(x, y, RcasPixel(src, con, x, y))
		}
	}
}
