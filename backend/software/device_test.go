package software

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/kernel"
)

func rgbaDesc(w, h int) *gpucore.TargetDesc {
	return &gpucore.TargetDesc{
		Label:       "test",
		Width:       w,
		Height:      h,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		ColorSpace:  gpucore.ColorSpaceSRGB,
		RandomWrite: true,
	}
}

func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d := New(append([]Option{WithWorkers(2)}, opts...)...)
	t.Cleanup(d.Destroy)
	return d
}

// =============================================================================
// Resources
// =============================================================================

func TestAllocateRelease(t *testing.T) {
	d := newTestDevice(t)

	id, err := d.AllocateTarget(rgbaDesc(16, 8))
	if err != nil {
		t.Fatalf("AllocateTarget() error = %v", err)
	}
	desc, ok := d.TargetInfo(id)
	if !ok || desc.Width != 16 || desc.Height != 8 {
		t.Errorf("TargetInfo() = %+v, %v, want 16x8", desc, ok)
	}
	if got := d.Stats().BytesInUse; got != 16*8*4 {
		t.Errorf("BytesInUse = %d, want %d", got, 16*8*4)
	}

	d.ReleaseTarget(id)
	d.ReleaseTarget(id) // idempotent
	d.ReleaseTarget(gpucore.InvalidID)

	st := d.Stats()
	if st.LiveTargets != 0 || st.TargetsReleased != 1 || st.BytesInUse != 0 {
		t.Errorf("Stats() = %+v, want no live targets and one release", st)
	}
	if _, ok := d.TargetInfo(id); ok {
		t.Error("TargetInfo() found a released target")
	}
}

func TestAllocateTargetErrors(t *testing.T) {
	tests := []struct {
		name string
		desc *gpucore.TargetDesc
		want error
	}{
		{"zero size", rgbaDesc(0, 4), nil},
		{"unsupported format", &gpucore.TargetDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatR8Unorm}, gpucore.ErrUnsupportedFormat},
		{"over budget", rgbaDesc(64, 64), gpucore.ErrAllocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t, WithMemoryLimit(1024))
			id, err := d.AllocateTarget(tt.desc)
			if err == nil {
				t.Fatalf("AllocateTarget() = %d, want error", id)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("AllocateTarget() error = %v, want %v", err, tt.want)
			}
			if id != gpucore.InvalidID {
				t.Errorf("AllocateTarget() id = %d on error, want InvalidID", id)
			}
		})
	}
}

func TestTemporaryPool(t *testing.T) {
	d := newTestDevice(t)

	a, err := d.AcquireTemporary(8, 8, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatalf("AcquireTemporary() error = %v", err)
	}
	d.ReleaseTemporary(a)
	d.ReleaseTemporary(a) // double release must not duplicate the pool entry

	b, _ := d.AcquireTemporary(8, 8, gputypes.TextureFormatRGBA8Unorm)
	c, _ := d.AcquireTemporary(8, 8, gputypes.TextureFormatRGBA8Unorm)
	if b != a {
		t.Errorf("second acquire = %d, want pooled %d", b, a)
	}
	if c == a {
		t.Error("third acquire reused a target that is still in use")
	}
	if got := d.Stats().TemporariesCreated; got != 2 {
		t.Errorf("TemporariesCreated = %d, want 2", got)
	}

	// ReleaseTarget must not destroy pooled temporaries.
	d.ReleaseTarget(b)
	if _, ok := d.TargetInfo(b); !ok {
		t.Error("ReleaseTarget destroyed a temporary")
	}

	d.ReleaseTemporary(b)
	d.ReleaseTemporary(c)
	d.TrimTemporaries()
	if got := d.Stats().LiveTargets; got != 0 {
		t.Errorf("LiveTargets after TrimTemporaries = %d, want 0", got)
	}
}

func TestTemporaryPoolEvictsOtherSizes(t *testing.T) {
	d := newTestDevice(t)
	format := gputypes.TextureFormatRGBA8Unorm

	// A resize drag: each frame acquires and releases one new size.
	for w := 8; w < 16; w++ {
		id, err := d.AcquireTemporary(w, 8, format)
		if err != nil {
			t.Fatalf("AcquireTemporary(%d) error = %v", w, err)
		}
		d.ReleaseTemporary(id)
		if got := d.Stats().LiveTargets; got != 1 {
			t.Fatalf("width %d: LiveTargets = %d, want 1", w, got)
		}
	}

	// A size that is still in use survives releases of other sizes.
	held, _ := d.AcquireTemporary(4, 4, format)
	other, _ := d.AcquireTemporary(6, 6, format)
	d.ReleaseTemporary(other)
	if _, ok := d.TargetInfo(held); !ok {
		t.Error("ReleaseTemporary() evicted a temporary still in use")
	}
	d.ReleaseTemporary(held)
	d.TrimTemporaries()
	if got := d.Stats().LiveTargets; got != 0 {
		t.Errorf("LiveTargets after TrimTemporaries = %d, want 0", got)
	}
}

func TestBuffers(t *testing.T) {
	d := newTestDevice(t)

	if _, err := d.CreateBuffer(0, 16, "bad"); err == nil {
		t.Error("CreateBuffer(0, 16) error = nil, want error")
	}

	id, err := d.CreateBuffer(4, gpucore.UintVectorSize, "params")
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	words, ok := d.BufferWords(id)
	if !ok || len(words) != 16 {
		t.Errorf("BufferWords() len = %d, %v, want 16", len(words), ok)
	}
	d.DestroyBuffer(id)
	d.DestroyBuffer(id)
	if d.Stats().LiveBuffers != 0 {
		t.Errorf("LiveBuffers = %d, want 0", d.Stats().LiveBuffers)
	}
}

func TestLoadKernel(t *testing.T) {
	d := newTestDevice(t)

	easu, err := d.LoadKernel(gpucore.KernelEASU)
	if err != nil {
		t.Fatalf("LoadKernel(EASU) error = %v", err)
	}
	again, _ := d.LoadKernel(gpucore.KernelEASU)
	if again != easu {
		t.Errorf("LoadKernel twice = %d, %d, want the same id", easu, again)
	}
	rcas, _ := d.LoadKernel(gpucore.KernelRCAS)
	if rcas == easu {
		t.Error("EASU and RCAS share a kernel id")
	}
	if _, err := d.LoadKernel("Missing"); !errors.Is(err, gpucore.ErrUnknownKernel) {
		t.Errorf("LoadKernel(Missing) error = %v, want ErrUnknownKernel", err)
	}
}

// =============================================================================
// Upload / readback
// =============================================================================

func TestUploadReadTarget(t *testing.T) {
	d := newTestDevice(t)
	id, _ := d.AllocateTarget(rgbaDesc(2, 2))

	pix := []byte{
		10, 20, 30, 255, 40, 50, 60, 255, 0, 0, // 2 pad bytes
		70, 80, 90, 255, 100, 110, 120, 255, 0, 0,
	}
	if err := d.UploadTarget(id, pix, 10); err != nil {
		t.Fatalf("UploadTarget() error = %v", err)
	}
	got, err := d.ReadTarget(id)
	if err != nil {
		t.Fatalf("ReadTarget() error = %v", err)
	}
	want := []byte{10, 20, 30, 255, 40, 50, 60, 255, 70, 80, 90, 255, 100, 110, 120, 255}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadTarget()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if err := d.UploadTarget(id, pix[:4], 8); err == nil {
		t.Error("UploadTarget() with short data error = nil")
	}
	if err := d.UploadTarget(999, pix, 10); !errors.Is(err, gpucore.ErrInvalidResource) {
		t.Errorf("UploadTarget(unknown) error = %v, want ErrInvalidResource", err)
	}
}

func TestUploadImageResamples(t *testing.T) {
	d := newTestDevice(t)
	id, _ := d.AllocateTarget(rgbaDesc(4, 4))

	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	if err := d.UploadImage(id, src, nil); err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}
	img, err := d.Image(id)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("Image() width = %d, want 4", img.Bounds().Dx())
	}
	got := img.RGBAAt(2, 2)
	for i, c := range []uint8{got.R, got.G, got.B, got.A} {
		if c < 199 || c > 201 {
			t.Errorf("RGBAAt(2,2)[%d] = %d, want 200 +/- 1", i, c)
		}
	}
}

// =============================================================================
// Command execution
// =============================================================================

type fsrSetup struct {
	dev        *Device
	easu, rcas gpucore.KernelID
	easuParams gpucore.BufferID
	rcasParams gpucore.BufferID
	low, out   gpucore.TargetID
	sharp      gpucore.TargetID
}

func newFSRSetup(t *testing.T, inW, inH, outW, outH int) *fsrSetup {
	t.Helper()
	d := newTestDevice(t)
	s := &fsrSetup{dev: d}
	var err error
	if s.easu, err = d.LoadKernel(gpucore.KernelEASU); err != nil {
		t.Fatal(err)
	}
	if s.rcas, err = d.LoadKernel(gpucore.KernelRCAS); err != nil {
		t.Fatal(err)
	}
	s.easuParams, _ = d.CreateBuffer(4, gpucore.UintVectorSize, "easu")
	s.rcasParams, _ = d.CreateBuffer(1, gpucore.UintVectorSize, "rcas")
	s.low, _ = d.AllocateTarget(rgbaDesc(inW, inH))
	s.out, _ = d.AllocateTarget(rgbaDesc(outW, outH))
	s.sharp, _ = d.AllocateTarget(rgbaDesc(outW, outH))
	return s
}

func (s *fsrSetup) recordEASU(enc gpucore.Encoder, inW, inH, outW, outH int) {
	in := [4]float32{float32(inW), float32(inH), 1 / float32(inW), 1 / float32(inH)}
	enc.SetVector(s.easu, gpucore.PropEASUViewportSize, in)
	enc.SetVector(s.easu, gpucore.PropEASUInputImageSize, in)
	enc.SetVector(s.easu, gpucore.PropEASUOutputSize,
		[4]float32{float32(outW), float32(outH), 1 / float32(outW), 1 / float32(outH)})
	enc.SetBuffer(s.easu, gpucore.KernelInit, gpucore.PropEASUParameters, s.easuParams)
	enc.Dispatch(s.easu, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})

	enc.SetTexture(s.easu, gpucore.KernelMain, gpucore.PropInputTexture, s.low)
	enc.SetTexture(s.easu, gpucore.KernelMain, gpucore.PropOutputTexture, s.out)
	enc.SetBuffer(s.easu, gpucore.KernelMain, gpucore.PropEASUParameters, s.easuParams)
	enc.Dispatch(s.easu, gpucore.KernelMain, gpucore.Groups{
		X: uint32((outW + 7) / 8), Y: uint32((outH + 7) / 8), Z: 1,
	})
}

func TestSubmitEASUMatchesReference(t *testing.T) {
	const inW, inH, outW, outH = 10, 6, 15, 9
	s := newFSRSetup(t, inW, inH, outW, outH)

	pix := make([]byte, inW*inH*4)
	for i := range pix {
		pix[i] = byte((i * 37) % 251)
	}
	if err := s.dev.UploadTarget(s.low, pix, inW*4); err != nil {
		t.Fatal(err)
	}

	enc := s.dev.NewEncoder()
	s.recordEASU(enc, inW, inH, outW, outH)
	if err := enc.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// The packed buffer must hold exactly what the init kernel computes.
	in := [4]float32{inW, inH, 1.0 / inW, 1.0 / inH}
	out := [4]float32{outW, outH, 1.0 / outW, 1.0 / outH}
	want := kernel.EasuCon(in, in, out)
	words, _ := s.dev.BufferWords(s.easuParams)
	if got := kernel.EasuConFromWords(words); got != want {
		t.Errorf("packed EASU constants = %v, want %v", got, want)
	}

	// Every output pixel must match the reference kernel.
	src := kernel.NewSurface(inW, inH)
	for i, b := range pix {
		src.Pix[i] = float32(b) / 255
	}
	ref := kernel.NewSurface(outW, outH)
	kernel.EasuRun(ref, src, &want, 0, 0, outW, outH)
	refBytes := make([]byte, len(ref.Pix))
	for i, v := range ref.Pix {
		refBytes[i] = byte(min(max(v, 0), 1)*255 + 0.5)
	}
	got, _ := s.dev.ReadTarget(s.out)
	for i := range refBytes {
		if got[i] != refBytes[i] {
			t.Fatalf("output byte %d = %d, want %d", i, got[i], refBytes[i])
		}
	}
	if st := s.dev.Stats(); st.Dispatches != 2 {
		t.Errorf("Dispatches = %d, want 2", st.Dispatches)
	}
}

func TestSubmitRCASSharpnessChangesParameters(t *testing.T) {
	s := newFSRSetup(t, 4, 4, 8, 8)

	pack := func(scale float32) []uint32 {
		enc := s.dev.NewEncoder()
		enc.SetFloat(s.rcas, gpucore.PropRCASScale, scale)
		enc.SetBuffer(s.rcas, gpucore.KernelInit, gpucore.PropRCASParameters, s.rcasParams)
		enc.Dispatch(s.rcas, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
		if err := enc.Submit(); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		words, _ := s.dev.BufferWords(s.rcasParams)
		return words
	}

	strong := pack(0)
	weak := pack(2)
	if strong[0] == weak[0] {
		t.Errorf("RCAS parameters for sharpness 0 and 2 are identical: %#x", strong[0])
	}
	if got := (kernel.RcasConstants{strong[0]}).Sharpness(); got != 1 {
		t.Errorf("sharpness 0 packs %v, want 1", got)
	}
}

func TestSubmitFullChainAndBlit(t *testing.T) {
	s := newFSRSetup(t, 4, 4, 8, 8)
	flat := make([]byte, 4*4*4)
	for i := range flat {
		flat[i] = 128
	}
	_ = s.dev.UploadTarget(s.low, flat, 16)

	dst, _ := s.dev.AllocateTarget(&gpucore.TargetDesc{
		Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8UnormSrgb, ColorSpace: gpucore.ColorSpaceSRGB,
	})

	enc := s.dev.NewEncoder()
	s.recordEASU(enc, 4, 4, 8, 8)
	enc.SetFloat(s.rcas, gpucore.PropRCASScale, 0.2)
	enc.SetBuffer(s.rcas, gpucore.KernelInit, gpucore.PropRCASParameters, s.rcasParams)
	enc.Dispatch(s.rcas, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
	enc.SetTexture(s.rcas, gpucore.KernelMain, gpucore.PropInputTexture, s.out)
	enc.SetTexture(s.rcas, gpucore.KernelMain, gpucore.PropOutputTexture, s.sharp)
	enc.SetBuffer(s.rcas, gpucore.KernelMain, gpucore.PropRCASParameters, s.rcasParams)
	enc.Dispatch(s.rcas, gpucore.KernelMain, gpucore.Groups{X: 1, Y: 1, Z: 1})
	enc.Blit(s.sharp, dst)
	if err := enc.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got, _ := s.dev.ReadTarget(dst)
	for i, b := range got {
		if b != 128 {
			t.Fatalf("flat input produced byte %d = %d, want 128", i, b)
		}
	}
	if err := enc.Submit(); !errors.Is(err, gpucore.ErrSubmitted) {
		t.Errorf("second Submit() error = %v, want ErrSubmitted", err)
	}
}

func TestBlitConvertsColorSpace(t *testing.T) {
	d := newTestDevice(t)
	lin, _ := d.AllocateTarget(&gpucore.TargetDesc{
		Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA16Float, ColorSpace: gpucore.ColorSpaceLinear,
	})
	srgb, _ := d.AllocateTarget(rgbaDesc(1, 1))

	_ = d.UploadTarget(lin, []byte{188, 188, 188, 255}, 4)
	enc := d.NewEncoder()
	enc.Blit(lin, srgb)
	if err := enc.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got, _ := d.ReadTarget(srgb)
	if got[0] != 188 || got[3] != 255 {
		t.Errorf("blit linear->sRGB = %v, want [188 188 188 255]", got)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		record func(s *fsrSetup, enc gpucore.Encoder)
	}{
		{"missing vectors", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.SetBuffer(s.easu, gpucore.KernelInit, gpucore.PropEASUParameters, s.easuParams)
			enc.Dispatch(s.easu, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"missing buffer", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.SetFloat(s.rcas, gpucore.PropRCASScale, 1)
			enc.Dispatch(s.rcas, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"buffer too small", func(s *fsrSetup, enc gpucore.Encoder) {
			in := [4]float32{4, 4, 0.25, 0.25}
			enc.SetVector(s.easu, gpucore.PropEASUViewportSize, in)
			enc.SetVector(s.easu, gpucore.PropEASUInputImageSize, in)
			enc.SetVector(s.easu, gpucore.PropEASUOutputSize, in)
			enc.SetBuffer(s.easu, gpucore.KernelInit, gpucore.PropEASUParameters, s.rcasParams)
			enc.Dispatch(s.easu, gpucore.KernelInit, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"aliased textures", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.SetBuffer(s.rcas, gpucore.KernelMain, gpucore.PropRCASParameters, s.rcasParams)
			enc.SetTexture(s.rcas, gpucore.KernelMain, gpucore.PropInputTexture, s.out)
			enc.SetTexture(s.rcas, gpucore.KernelMain, gpucore.PropOutputTexture, s.out)
			enc.Dispatch(s.rcas, gpucore.KernelMain, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"bad entry point", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.Dispatch(s.rcas, 5, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"unknown kernel", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.Dispatch(12345, gpucore.KernelMain, gpucore.Groups{X: 1, Y: 1, Z: 1})
		}},
		{"blit size mismatch", func(s *fsrSetup, enc gpucore.Encoder) {
			enc.Blit(s.low, s.out)
		}},
		{"blit released target", func(s *fsrSetup, enc gpucore.Encoder) {
			s.dev.ReleaseTarget(s.sharp)
			enc.Blit(s.out, s.sharp)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFSRSetup(t, 4, 4, 8, 8)
			enc := s.dev.NewEncoder()
			tt.record(s, enc)
			if err := enc.Submit(); err == nil {
				t.Error("Submit() error = nil, want error")
			}
		})
	}
}

func TestResizeBuffersAndDestroy(t *testing.T) {
	d := New(WithWorkers(1))
	d.ResizeBuffers(0.5, 0.5)
	if x, y := d.RenderScale(); x != 0.5 || y != 0.5 {
		t.Errorf("RenderScale() = (%v, %v), want (0.5, 0.5)", x, y)
	}

	id, _ := d.AllocateTarget(rgbaDesc(4, 4))
	d.Destroy()
	d.Destroy()
	if _, ok := d.TargetInfo(id); ok {
		t.Error("target survived Destroy")
	}
	if _, err := d.AllocateTarget(rgbaDesc(4, 4)); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("AllocateTarget after Destroy error = %v, want ErrAllocation", err)
	}
}
