package fsr

import "github.com/gogpu/fsr/gpucore"

// TileSize is the edge length of the square pixel tile one thread group
// of a main kernel covers. The kernels are authored for 8x8 groups.
const TileSize = 8

// Plan returns the thread groups a main kernel needs to cover a
// width x height output: ceil(width/TileSize) x ceil(height/TileSize) x 1.
// Boundary groups overhang the output; the kernels discard those pixels.
// Non-positive sizes plan zero groups.
func Plan(width, height int) gpucore.Groups {
	return gpucore.Groups{
		X: tiles(width),
		Y: tiles(height),
		Z: 1,
	}
}

func tiles(n int) uint32 {
	if n <= 0 {
		return 0
	}
	//nolint:gosec // G115: n > 0, result fits in uint32 for any texture size
	return uint32((n + TileSize - 1) / TileSize)
}
