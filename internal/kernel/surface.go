package kernel

// Surface is an RGBA float image. Pixels are stored row-major, four
// float32 channels per pixel.
type Surface struct {
	Width  int
	Height int
	Pix    []float32
}

// NewSurface allocates a zeroed surface.
func NewSurface(width, height int) *Surface {
	return &Surface{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*4),
	}
}

// offset returns the index of the first channel of (x, y).
func (s *Surface) offset(x, y int) int {
	return (y*s.Width + x) * 4
}

// Load returns the pixel at (x, y) with coordinates clamped to the edge.
func (s *Surface) Load(x, y int) [4]float32 {
	x = clampInt(x, 0, s.Width-1)
	y = clampInt(y, 0, s.Height-1)
	i := s.offset(x, y)
	return [4]float32{s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3]}
}

// Store writes the pixel at (x, y). Out-of-bounds writes are dropped.
func (s *Surface) Store(x, y int, c [4]float32) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	i := s.offset(x, y)
	s.Pix[i] = c[0]
	s.Pix[i+1] = c[1]
	s.Pix[i+2] = c[2]
	s.Pix[i+3] = c[3]
}

// Fill sets every pixel to c.
func (s *Surface) Fill(c [4]float32) {
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i] = c[0]
		s.Pix[i+1] = c[1]
		s.Pix[i+2] = c[2]
		s.Pix[i+3] = c[3]
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
