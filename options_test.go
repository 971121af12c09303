package fsr

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.settings != DefaultSettings() {
		t.Errorf("settings = %+v, want DefaultSettings()", o.settings)
	}
	if o.format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("format = %v, want RGBA8Unorm", o.format)
	}
	if o.alwaysInit {
		t.Error("alwaysInit = true, want false")
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		check func(o options) bool
	}{
		{"settings", WithSettings(QualitySettings(Balanced)), func(o options) bool {
			return o.settings.ScaleFactor == 1.7
		}},
		{"format", WithSourceFormat(gputypes.TextureFormatRGBA16Float), func(o options) bool {
			return o.format == gputypes.TextureFormatRGBA16Float
		}},
		{"undefined format ignored", WithSourceFormat(gputypes.TextureFormatUndefined), func(o options) bool {
			return o.format == gputypes.TextureFormatRGBA8Unorm
		}},
		{"always init", WithAlwaysInit(true), func(o options) bool {
			return o.alwaysInit
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option not applied: %+v", o)
			}
		})
	}
}

func TestNewClampsSettings(t *testing.T) {
	p, err := New(newMockDevice(), WithSettings(Settings{ScaleFactor: 0.5, Sharpness: 5}))
	if err != nil {
		t.Fatal(err)
	}
	if s := p.Settings(); s.ScaleFactor != 1.3 || s.Sharpness != 2 {
		t.Errorf("Settings() = %+v, want clamped", s)
	}
}

func TestFrameFormatOverridesDefault(t *testing.T) {
	dev := newMockDevice()
	p := newTestPipeline(t, dev, WithSourceFormat(gputypes.TextureFormatRGBA16Float))

	if _, err := p.RenderFrame(Frame{Width: 16, Height: 16}); err != nil {
		t.Fatal(err)
	}
	if got := p.Targets().Format; got != gputypes.TextureFormatRGBA16Float {
		t.Errorf("target format = %v, want RGBA16Float", got)
	}
	if _, err := p.RenderFrame(Frame{Width: 16, Height: 16, Format: gputypes.TextureFormatBGRA8Unorm}); err != nil {
		t.Fatal(err)
	}
	if got := p.Targets().Format; got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("target format = %v, want BGRA8Unorm", got)
	}
}
