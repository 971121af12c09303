package kernel

import "math"

// easuLuma approximates luma as 0.5*B + 0.5*R + G, which is all the edge
// detector needs.
func easuLuma(c [4]float32) float32 {
	return c[2]*0.5 + (c[0]*0.5 + c[1])
}

// easuDir accumulates gradient direction and edge length over the four
// bilinear quadrants of the 2x2 center.
type easuDir struct {
	dirX, dirY float32
	length     float32
}

// accumulate adds one quadrant. The five lumas form a plus shape:
//
//	  a
//	b c d
//	  e
//
// and w is the bilinear weight of the quadrant center c.
func (d *easuDir) accumulate(w, la, lb, lc, ld, le float32) {
	dc := ld - lc
	cb := lc - lb
	lenX := max(abs32(dc), abs32(cb))
	dirX := ld - lb
	d.dirX += dirX * w
	lenX = saturate(abs32(dirX) * rcp(lenX))
	d.length += lenX * lenX * w

	ec := le - lc
	ca := lc - la
	lenY := max(abs32(ec), abs32(ca))
	dirY := le - la
	d.dirY += dirY * w
	lenY = saturate(abs32(dirY) * rcp(lenY))
	d.length += lenY * lenY * w
}

// easuAccum is the running weighted color sum of the 12-tap filter.
type easuAccum struct {
	color  [3]float32
	weight float32
}

// tap adds one sample at offset (ox, oy) from the resolve position using
// the rotated, anisotropically stretched lanczos-like lobe.
func (a *easuAccum) tap(ox, oy, dirX, dirY, lenX, lenY, lob, clp float32, c [4]float32) {
	vx := ox*dirX + oy*dirY
	vy := ox*(-dirY) + oy*dirX
	vx *= lenX
	vy *= lenY
	d2 := min(vx*vx+vy*vy, clp)

	wB := float32(2.0/5.0)*d2 - 1
	wA := lob*d2 - 1
	wB *= wB
	wA *= wA
	wB = float32(25.0/16.0)*wB - float32(25.0/16.0-1.0)
	w := wB * wA

	a.color[0] += c[0] * w
	a.color[1] += c[1] * w
	a.color[2] += c[2] * w
	a.weight += w
}

// EasuPixel evaluates the EASU filter for output pixel (x, y).
//
// The 12 taps around the resolve position are laid out as
//
//	    b c
//	  e f g h
//	  i j k l
//	    n o
//
// where f is the input pixel at floor(position).
func EasuPixel(src *Surface, con *EasuConstants, x, y int) [4]float32 {
	sx, sy := con.Scale()
	ox, oy := con.Offset()
	ppx := float32(x)*sx + ox
	ppy := float32(y)*sy + oy
	fpx := float32(math.Floor(float64(ppx)))
	fpy := float32(math.Floor(float64(ppy)))
	ppx -= fpx
	ppy -= fpy
	ix, iy := int(fpx), int(fpy)

	b := src.Load(ix, iy-1)
	c := src.Load(ix+1, iy-1)
	e := src.Load(ix-1, iy)
	f := src.Load(ix, iy)
	g := src.Load(ix+1, iy)
	h := src.Load(ix+2, iy)
	i := src.Load(ix-1, iy+1)
	j := src.Load(ix, iy+1)
	k := src.Load(ix+1, iy+1)
	l := src.Load(ix+2, iy+1)
	n := src.Load(ix, iy+2)
	o := src.Load(ix+1, iy+2)

	bL, cL := easuLuma(b), easuLuma(c)
	eL, fL, gL, hL := easuLuma(e), easuLuma(f), easuLuma(g), easuLuma(h)
	iL, jL, kL, lL := easuLuma(i), easuLuma(j), easuLuma(k), easuLuma(l)
	nL, oL := easuLuma(n), easuLuma(o)

	var dir easuDir
	dir.accumulate((1-ppx)*(1-ppy), bL, eL, fL, gL, jL)
	dir.accumulate(ppx*(1-ppy), cL, fL, gL, hL, kL)
	dir.accumulate((1-ppx)*ppy, fL, iL, jL, kL, nL)
	dir.accumulate(ppx*ppy, gL, jL, kL, lL, oL)

	// Normalize the direction; near-zero gradients fall back to +X.
	dirX, dirY := dir.dirX, dir.dirY
	dirR := dirX*dirX + dirY*dirY
	if dirR < 1.0/32768.0 {
		dirR = 1
		dirX = 1
	} else {
		dirR = float32(1 / math.Sqrt(float64(dirR)))
	}
	dirX *= dirR
	dirY *= dirR

	length := dir.length * 0.5
	length *= length

	// Stretch the kernel along the edge, shrink it across.
	stretch := (dirX*dirX + dirY*dirY) * rcp(max(abs32(dirX), abs32(dirY)))
	lenX := 1 + (stretch-1)*length
	lenY := 1 - 0.5*length
	lob := 0.5 + float32(1.0/4.0-0.04-0.5)*length
	clp := rcp(lob)

	var acc easuAccum
	acc.tap(0-ppx, -1-ppy, dirX, dirY, lenX, lenY, lob, clp, b)
	acc.tap(1-ppx, -1-ppy, dirX, dirY, lenX, lenY, lob, clp, c)
	acc.tap(-1-ppx, 1-ppy, dirX, dirY, lenX, lenY, lob, clp, i)
	acc.tap(0-ppx, 1-ppy, dirX, dirY, lenX, lenY, lob, clp, j)
	acc.tap(0-ppx, 0-ppy, dirX, dirY, lenX, lenY, lob, clp, f)
	acc.tap(-1-ppx, 0-ppy, dirX, dirY, lenX, lenY, lob, clp, e)
	acc.tap(1-ppx, 1-ppy, dirX, dirY, lenX, lenY, lob, clp, k)
	acc.tap(2-ppx, 1-ppy, dirX, dirY, lenX, lenY, lob, clp, l)
	acc.tap(2-ppx, 0-ppy, dirX, dirY, lenX, lenY, lob, clp, h)
	acc.tap(1-ppx, 0-ppy, dirX, dirY, lenX, lenY, lob, clp, g)
	acc.tap(1-ppx, 2-ppy, dirX, dirY, lenX, lenY, lob, clp, o)
	acc.tap(0-ppx, 2-ppy, dirX, dirY, lenX, lenY, lob, clp, n)

	// Deringing: clamp to the range of the 2x2 center.
	var out [4]float32
	inv := rcp(acc.weight)
	for ch := 0; ch < 3; ch++ {
		lo := min(f[ch], g[ch], j[ch], k[ch])
		hi := max(f[ch], g[ch], j[ch], k[ch])
		out[ch] = min(hi, max(lo, acc.color[ch]*inv))
	}
	out[3] = f[3]
	return out
}

// EasuRun evaluates EasuPixel for every pixel of the tile
// [x0, x1) x [y0, y1), clipped to dst.
func EasuRun(dst, src *Surface, con *EasuConstants, x0, y0, x1, y1 int) {
	x1 = min(x1, dst.Width)
	y1 = min(y1, dst.Height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dst.Store(x, y, EasuPixel(src, con, x, y))
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func saturate(v float32) float32 {
	return min(max(v, 0), 1)
}

// rcp returns 1/v, or 0 for v == 0. The kernels only divide by
// quantities that are zero on perfectly flat input, where the
// contribution must vanish.
func rcp(v float32) float32 {
	if v == 0 {
		return 0
	}
	return 1 / v
}
