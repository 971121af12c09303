// Command fsrdemo upscales an image with FSR and writes the result as PNG.
//
// Without -input a test pattern is rendered at the reduced resolution, so
// the output shows what EASU and RCAS do to hard edges and fine lines.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	_ "github.com/gogpu/fsr/backend/native"
	_ "github.com/gogpu/fsr/backend/software"
	"github.com/gogpu/fsr/gpucore"
)

func main() {
	var (
		input     = flag.String("input", "", "input PNG (default: test pattern)")
		width     = flag.Int("width", 1280, "output width")
		height    = flag.Int("height", 720, "output height")
		quality   = flag.String("quality", "quality", "ultra, quality, balanced or performance")
		scale     = flag.Float64("scale", 0, "scale factor, overrides -quality")
		sharpness = flag.Float64("sharpness", 0.2, "RCAS sharpness in stops, negative disables sharpening")
		name      = flag.String("backend", "", "backend name (default: best available)")
		output    = flag.String("output", "fsr.png", "output file")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		fsr.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	settings, err := buildSettings(*quality, *scale, *sharpness)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	var src image.Image
	if *input != "" {
		if src, err = loadPNG(*input); err != nil {
			log.Fatalf("Failed to load input: %v", err)
		}
	}

	dev, used, err := openDevice(*name)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer dev.Destroy()

	uploader, ok := dev.(gpucore.TargetUploader)
	if !ok {
		log.Fatalf("Backend %s cannot upload pixels", used)
	}
	reader, ok := dev.(gpucore.TargetReader)
	if !ok {
		log.Fatalf("Backend %s cannot read pixels back", used)
	}

	p, err := fsr.New(dev, fsr.WithSettings(settings))
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Teardown()
	if err := p.Initialize(); err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	screen, err := dev.AllocateTarget(&gpucore.TargetDesc{
		Label:       "screen",
		Width:       *width,
		Height:      *height,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		ColorSpace:  gpucore.ColorSpaceSRGB,
		RandomWrite: true,
	})
	if err != nil {
		log.Fatalf("Failed to allocate output: %v", err)
	}
	defer dev.ReleaseTarget(screen)

	scene := fsr.SceneFunc(func(target gpucore.TargetID, w, h int) error {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		if src != nil {
			draw.CatmullRom.Scale(img, img.Bounds(), src, src.Bounds(), draw.Src, nil)
		} else {
			drawPattern(img)
		}
		return uploader.UploadTarget(target, img.Pix, img.Stride)
	})

	fs, err := p.RenderFrame(fsr.Frame{
		Width:       *width,
		Height:      *height,
		Destination: screen,
		Scene:       scene,
	})
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	pix, err := reader.ReadTarget(screen)
	if err != nil {
		log.Fatalf("Failed to read output: %v", err)
	}
	out := &image.RGBA{Pix: pix, Stride: *width * 4, Rect: image.Rect(0, 0, *width, *height)}
	drawLabel(out, used, p.Settings(), fs)

	if err := savePNG(*output, out); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Saved %s (%dx%d from %dx%d, %s backend, stages %v)\n",
		*output, *width, *height, fs.ReducedWidth, fs.ReducedHeight, used, fs.Stages)
}

func openDevice(name string) (backend.Device, string, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	dev, err := backend.Open(name)
	return dev, name, err
}

func buildSettings(quality string, scale, sharpness float64) (fsr.Settings, error) {
	modes := map[string]fsr.QualityMode{
		"ultra":       fsr.UltraQuality,
		"quality":     fsr.Quality,
		"balanced":    fsr.Balanced,
		"performance": fsr.Performance,
	}
	q, ok := modes[quality]
	if !ok {
		return fsr.Settings{}, errors.New("unknown quality mode " + quality)
	}
	s := fsr.QualitySettings(q)
	if scale > 0 {
		s.ScaleFactor = float32(scale)
	}
	s.Sharpening = sharpness >= 0
	if s.Sharpening {
		s.Sharpness = float32(sharpness)
	}
	return s.Clamped(), nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied input path
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // user-supplied output path
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// drawPattern renders a gradient with a zone plate, thin lines and a
// checkerboard, the content where upscaling artifacts show first.
func drawPattern(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)*0.75, float64(h)*0.5
	r := float64(min(w, h)) * 0.4

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(y) / float64(h)
			c := color.RGBA{uint8(25 + t*100), uint8(50 + t*75), uint8(100 + t*50), 255}

			dx, dy := float64(x)-cx, float64(y)-cy
			if d2 := dx*dx + dy*dy; d2 < r*r {
				v := uint8(127.5 + 127.5*math.Cos(d2*math.Pi/(r*4)))
				c = color.RGBA{v, v, v, 255}
			}
			if x < w/2 && y < h/2 && (x/8+y/8)%2 == 0 {
				c = color.RGBA{230, 230, 230, 255}
			}
			if x < w/2 && y >= h/2 && (x+y)%12 == 0 {
				c = color.RGBA{255, 80, 40, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
}

// drawLabel writes the backend and frame parameters in the top-left corner.
func drawLabel(img *image.RGBA, used string, s fsr.Settings, fs fsr.FrameStats) {
	face := basicfont.Face7x13
	text := fmt.Sprintf("%s  x%.2f  sharpen=%v(%.2f)  from %dx%d",
		used, s.ScaleFactor, s.Sharpening, s.Sharpness, fs.ReducedWidth, fs.ReducedHeight)
	bg := image.Rect(0, 0, font.MeasureString(face, text).Ceil()+8, face.Height+6)
	draw.Draw(img, bg.Intersect(img.Bounds()), image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(4, face.Ascent+3),
	}
	d.DrawString(text)
}
